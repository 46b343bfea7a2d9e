package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/taskfabric/taskfabric/protocol"
	"github.com/taskfabric/taskfabric/registry"
	"github.com/taskfabric/taskfabric/store"
	"github.com/taskfabric/taskfabric/task"
)

func newTestGateway(t *testing.T) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemory()
	srv := httptest.NewServer(New(st).Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func registerDouble(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	desc, err := registry.EncodeDescriptor("double")
	require.NoError(t, err)

	resp := postJSON(t, srv.URL+"/register_function", map[string]string{
		"name":    "double",
		"payload": desc,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var fn task.Function
	decodeBody(t, resp, &fn)
	require.Equal(t, "double", fn.Name)
	require.NotEmpty(t, fn.FunctionID)
	require.Equal(t, desc, fn.Payload)
	return fn.FunctionID
}

func TestGateway_RegisterFunction(t *testing.T) {
	srv, st := newTestGateway(t)
	id := registerDouble(t, srv)

	b, err := st.Get(context.Background(), id)
	require.NoError(t, err)
	fn, err := task.UnmarshalFunction(b)
	require.NoError(t, err)
	require.Equal(t, "double", fn.Name)
}

func TestGateway_RegisterFunctionValidation(t *testing.T) {
	srv, _ := newTestGateway(t)

	resp := postJSON(t, srv.URL+"/register_function", map[string]string{"name": "x"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGateway_ExecutePersistsThenPublishes(t *testing.T) {
	srv, st := newTestGateway(t)
	id := registerDouble(t, srv)

	sub, err := st.Subscribe(context.Background(), store.TasksChannel)
	require.NoError(t, err)

	payload, err := task.EncodeArgs([]any{float64(21)}, nil)
	require.NoError(t, err)
	resp := postJSON(t, srv.URL+"/execute_function", map[string]string{
		"function_id": id,
		"payload":     payload,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		TaskID string      `json:"task_id"`
		Status task.Status `json:"status"`
	}
	decodeBody(t, resp, &created)
	require.NotEmpty(t, created.TaskID)
	require.Equal(t, task.StatusQueued, created.Status)

	// record persisted in QUEUED state
	b, err := st.Get(context.Background(), created.TaskID)
	require.NoError(t, err)
	tk, err := task.UnmarshalRecord(b)
	require.NoError(t, err)
	require.Equal(t, task.StatusQueued, tk.Status)

	// the published wire form carries the function payload for the workers
	select {
	case wire := <-sub:
		published, err := protocol.DecodeTask(wire)
		require.NoError(t, err)
		require.Equal(t, created.TaskID, published.TaskID)
		require.NotEmpty(t, published.FunctionPayload)
	case <-time.After(time.Second):
		t.Fatal("task was not published on the notification channel")
	}
}

func TestGateway_ExecuteUnknownFunction(t *testing.T) {
	srv, _ := newTestGateway(t)

	payload, err := task.EncodeArgs(nil, nil)
	require.NoError(t, err)
	resp := postJSON(t, srv.URL+"/execute_function", map[string]string{
		"function_id": "no-such-function",
		"payload":     payload,
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGateway_StatusAndResult(t *testing.T) {
	srv, st := newTestGateway(t)

	tk := task.New("fn-1", "cGF5bG9hZA==")
	require.NoError(t, tk.MarkRunning())
	result, err := task.EncodeResult(float64(42))
	require.NoError(t, err)
	require.NoError(t, tk.Complete(result))
	b, err := tk.MarshalRecord()
	require.NoError(t, err)
	require.NoError(t, st.Put(context.Background(), tk.TaskID, b))

	resp, err := http.Get(srv.URL + "/status/" + tk.TaskID)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status struct {
		TaskID string      `json:"task_id"`
		Status task.Status `json:"status"`
	}
	decodeBody(t, resp, &status)
	require.Equal(t, tk.TaskID, status.TaskID)
	require.Equal(t, task.StatusCompleted, status.Status)

	resp2, err := http.Get(srv.URL + "/result/" + tk.TaskID)
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	var res struct {
		Result string `json:"result"`
	}
	decodeBody(t, resp2, &res)
	v, err := task.DecodeResult(res.Result)
	require.NoError(t, err)
	require.Equal(t, float64(42), v)
}

func TestGateway_UnknownTask(t *testing.T) {
	srv, _ := newTestGateway(t)

	resp, err := http.Get(srv.URL + "/status/missing")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}
