package task

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTask_Lifecycle(t *testing.T) {
	tk := New("fn-1", "cGF5bG9hZA==")
	require.NotEmpty(t, tk.TaskID)
	require.Equal(t, StatusQueued, tk.Status)
	require.Empty(t, tk.Result)
	require.False(t, tk.Terminal())

	require.NoError(t, tk.MarkRunning())
	require.Equal(t, StatusRunning, tk.Status)

	require.NoError(t, tk.Complete("cmVzdWx0"))
	require.Equal(t, StatusCompleted, tk.Status)
	require.Equal(t, "cmVzdWx0", tk.Result)
	require.True(t, tk.Terminal())
}

func TestTask_RejectsBackwardsTransitions(t *testing.T) {
	tk := New("fn-1", "cGF5bG9hZA==")

	// terminal before running
	require.ErrorIs(t, tk.Complete("cmVzdWx0"), ErrTransition)
	require.ErrorIs(t, tk.Fail("cmVzdWx0"), ErrTransition)

	require.NoError(t, tk.MarkRunning())
	require.ErrorIs(t, tk.MarkRunning(), ErrTransition)

	require.NoError(t, tk.Fail("cmVzdWx0"))
	// terminal states are absorbing
	require.ErrorIs(t, tk.MarkRunning(), ErrTransition)
	require.ErrorIs(t, tk.Complete("b3RoZXI="), ErrTransition)
	require.Equal(t, "cmVzdWx0", tk.Result)
}

func TestTask_TerminalRequiresResult(t *testing.T) {
	tk := New("fn-1", "cGF5bG9hZA==")
	require.NoError(t, tk.MarkRunning())
	require.ErrorIs(t, tk.Complete(""), ErrEmptyResult)
	require.Equal(t, StatusRunning, tk.Status)
}

func TestTask_RecordExcludesWireFields(t *testing.T) {
	tk := New("fn-1", "cGF5bG9hZA==")
	tk.FunctionPayload = "ZGVzY3JpcHRvcg=="

	b, err := tk.MarshalRecord()
	require.NoError(t, err)
	require.NotContains(t, string(b), "function_payload")

	got, err := UnmarshalRecord(b)
	require.NoError(t, err)
	require.Equal(t, tk.TaskID, got.TaskID)
	require.Equal(t, tk.FunctionID, got.FunctionID)
	require.Equal(t, tk.Payload, got.Payload)
	require.Empty(t, got.FunctionPayload)
}

func TestFunction_Record(t *testing.T) {
	fn := NewFunction("double", "ZGVzY3JpcHRvcg==")
	require.NotEmpty(t, fn.FunctionID)

	b, err := MarshalFunction(fn)
	require.NoError(t, err)
	got, err := UnmarshalFunction(b)
	require.NoError(t, err)
	require.Equal(t, fn, got)
}
