package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskfabric/taskfabric/task"
)

func runningTask(t *testing.T, entrypoint string, args []any) *task.Task {
	t.Helper()
	desc, err := EncodeDescriptor(entrypoint)
	require.NoError(t, err)
	payload, err := task.EncodeArgs(args, nil)
	require.NoError(t, err)

	tk := task.New("fn-1", payload)
	tk.FunctionPayload = desc
	require.NoError(t, tk.MarkRunning())
	return tk
}

func TestExecute_Double(t *testing.T) {
	r := NewBuiltin()
	tk := r.Execute(context.Background(), runningTask(t, "double", []any{float64(21)}))

	require.Equal(t, task.StatusCompleted, tk.Status)
	v, err := task.DecodeResult(tk.Result)
	require.NoError(t, err)
	require.Equal(t, float64(42), v)
}

func TestExecute_NoopReturnsNull(t *testing.T) {
	r := NewBuiltin()
	tk := r.Execute(context.Background(), runningTask(t, "noop", nil))

	require.Equal(t, task.StatusCompleted, tk.Status)
	v, err := task.DecodeResult(tk.Result)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestExecute_NotImplementedKind(t *testing.T) {
	r := NewBuiltin()
	tk := r.Execute(context.Background(), runningTask(t, "not_implemented", nil))

	require.Equal(t, task.StatusFailed, tk.Status)
	ev, err := task.DecodeError(tk.Result)
	require.NoError(t, err)
	require.Equal(t, "not implemented", ev.Kind)
	require.NotEmpty(t, ev.Message)
}

func TestExecute_UnknownEntrypoint(t *testing.T) {
	r := NewBuiltin()
	tk := r.Execute(context.Background(), runningTask(t, "no_such_function", nil))

	require.Equal(t, task.StatusFailed, tk.Status)
	ev, err := task.DecodeError(tk.Result)
	require.NoError(t, err)
	require.Equal(t, KindDecodeError, ev.Kind)
}

func TestExecute_MalformedPayload(t *testing.T) {
	r := NewBuiltin()
	desc, err := EncodeDescriptor("noop")
	require.NoError(t, err)

	tk := task.New("fn-1", "!!!not a payload!!!")
	tk.FunctionPayload = desc
	require.NoError(t, tk.MarkRunning())

	out := r.Execute(context.Background(), tk)
	require.Equal(t, task.StatusFailed, out.Status)
	ev, err := task.DecodeError(out.Result)
	require.NoError(t, err)
	require.Equal(t, KindDecodeError, ev.Kind)
}

func TestExecute_PanicBecomesFailure(t *testing.T) {
	r := New()
	r.Register("explode", func(context.Context, []any, map[string]any) (any, error) {
		panic("boom")
	})

	tk := r.Execute(context.Background(), runningTask(t, "explode", nil))
	require.Equal(t, task.StatusFailed, tk.Status)
	ev, err := task.DecodeError(tk.Result)
	require.NoError(t, err)
	require.Equal(t, KindPanic, ev.Kind)
	require.Contains(t, ev.Message, "boom")
}

func TestExecute_PlainErrorKind(t *testing.T) {
	r := NewBuiltin()
	// wrong arity surfaces as a generic function error
	tk := r.Execute(context.Background(), runningTask(t, "double", nil))

	require.Equal(t, task.StatusFailed, tk.Status)
	ev, err := task.DecodeError(tk.Result)
	require.NoError(t, err)
	require.Equal(t, KindFunctionError, ev.Kind)
}

func TestBuiltin_Bruteforce(t *testing.T) {
	sum := sha256.Sum256([]byte("4242"))
	hash := hex.EncodeToString(sum[:])

	v, err := Bruteforce(context.Background(), []any{hash, float64(4000), float64(5000)}, nil)
	require.NoError(t, err)
	require.Equal(t, 4242, v)

	v, err = Bruteforce(context.Background(), []any{hash, float64(0), float64(100)}, nil)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestBuiltin_Fibonacci(t *testing.T) {
	v, err := Fibonacci(context.Background(), []any{float64(10)}, nil)
	require.NoError(t, err)
	require.Equal(t, 55, v)

	_, err = Fibonacci(context.Background(), []any{float64(0)}, nil)
	require.Error(t, err)
}

func TestRegistry_Resolve(t *testing.T) {
	r := NewBuiltin()
	_, err := r.Resolve("double")
	require.NoError(t, err)

	_, err = r.Resolve("missing")
	require.ErrorIs(t, err, ErrUnknownEntrypoint)
}
