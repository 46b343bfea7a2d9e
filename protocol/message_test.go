package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskfabric/taskfabric/task"
)

func TestCodec_RoundTrip(t *testing.T) {
	body := task.New("fn-1", "cGF5bG9hZA==")
	body.FunctionPayload = "ZGVzY3JpcHRvcg=="

	messages := []Message{
		NewMessage(TypeRegistration, "worker-1", nil),
		NewMessage(TypeAck, "MASTER", nil),
		NewMessage(TypeRequestTask, "worker-1", nil),
		NewMessage(TypeNoTask, "MASTER", nil),
		NewMessage(TypeNewTask, "MASTER", body),
		NewMessage(TypeResultReady, "worker-1", body),
	}

	for _, m := range messages {
		b, err := Encode(m)
		require.NoError(t, err, "encode %s", m.Type)

		got, err := Decode(b)
		require.NoError(t, err, "decode %s", m.Type)
		require.Equal(t, m, got)
	}
}

func TestCodec_BlobsTravelVerbatim(t *testing.T) {
	body := task.New("fn-1", "AAECAwQ=")
	body.FunctionPayload = "BQYHCAk="
	require.NoError(t, body.MarkRunning())

	b, err := Encode(NewMessage(TypeNewTask, "MASTER", body))
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	require.Equal(t, "AAECAwQ=", got.Body.Payload)
	require.Equal(t, "BQYHCAk=", got.Body.FunctionPayload)
	require.Equal(t, task.StatusRunning, got.Body.Status)
}

func TestCodec_UnknownType(t *testing.T) {
	_, err := Encode(Message{Type: "HEARTBEAT", Sender: "worker-1"})
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = Decode([]byte(`{"type":"HEARTBEAT","sender":"worker-1"}`))
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestCodec_MalformedFrame(t *testing.T) {
	_, err := Decode([]byte("not json"))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestTaskRecord_ChannelRoundTrip(t *testing.T) {
	orig := task.New("fn-1", "cGF5bG9hZA==")
	orig.FunctionPayload = "ZGVzY3JpcHRvcg=="

	b, err := EncodeTask(orig)
	require.NoError(t, err)

	got, err := DecodeTask(b)
	require.NoError(t, err)
	require.Equal(t, orig, got)
}
