// Package registry holds the callables a worker binary knows at build time.
//
// The fabric does not ship executable code over the wire: a registered
// function's payload is a serialized descriptor naming an entrypoint, and
// workers resolve that name against their registry when a task arrives.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/taskfabric/taskfabric/task"
)

// Callable is the signature every registered function implements. Positional
// and keyword arguments arrive deserialized from the task payload; the return
// value must be JSON-representable.
type Callable func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// ErrUnknownEntrypoint reports a descriptor naming a function this binary
// does not carry.
var ErrUnknownEntrypoint = errors.New("registry: unknown entrypoint")

// Failure kinds recorded in FAILED task results.
const (
	KindFunctionError = "function_error"
	KindDecodeError   = "deserialization_error"
	KindPanic         = "panic"
)

// Descriptor is the deserialized form of a function record's payload.
type Descriptor struct {
	Entrypoint string `json:"entrypoint"`
}

// EncodeDescriptor serializes a descriptor for registration payloads.
func EncodeDescriptor(entrypoint string) (string, error) {
	return task.Serialize(Descriptor{Entrypoint: entrypoint})
}

// DecodeDescriptor deserializes a function payload into a descriptor.
func DecodeDescriptor(payload string) (Descriptor, error) {
	var d Descriptor
	if err := task.Deserialize(payload, &d); err != nil {
		return Descriptor{}, err
	}
	if d.Entrypoint == "" {
		return Descriptor{}, errors.New("registry: descriptor without entrypoint")
	}
	return d, nil
}

// Registry maps entrypoint names to callables. Safe for concurrent use.
type Registry struct {
	mu  sync.RWMutex
	fns map[string]Callable
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{fns: make(map[string]Callable)}
}

// Register binds a callable to an entrypoint name, replacing any previous
// binding.
func (r *Registry) Register(name string, fn Callable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fns[name] = fn
}

// Resolve returns the callable bound to name.
func (r *Registry) Resolve(name string) (Callable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEntrypoint, name)
	}
	return fn, nil
}

// Execute runs t's callable and moves the task to a terminal state, recording
// the serialized return value on success or the serialized error value on any
// failure. The task must be RUNNING when handed in; the dispatcher marks it so
// before placement. Exactly one terminal record is produced per call.
func (r *Registry) Execute(ctx context.Context, t *task.Task) (out *task.Task) {
	defer func() {
		if p := recover(); p != nil {
			_ = t.Fail(task.EncodeError(KindPanic, fmt.Sprintf("%v", p)))
			out = t
		}
	}()

	desc, err := DecodeDescriptor(t.FunctionPayload)
	if err != nil {
		_ = t.Fail(task.EncodeError(KindDecodeError, err.Error()))
		return t
	}

	fn, err := r.Resolve(desc.Entrypoint)
	if err != nil {
		_ = t.Fail(task.EncodeError(KindDecodeError, err.Error()))
		return t
	}

	args, kwargs, err := task.DecodeArgs(t.Payload)
	if err != nil {
		_ = t.Fail(task.EncodeError(KindDecodeError, err.Error()))
		return t
	}

	v, err := fn(ctx, args, kwargs)
	if err != nil {
		var f *task.Failure
		if errors.As(err, &f) {
			_ = t.Fail(task.EncodeError(f.Kind, f.Message))
		} else {
			_ = t.Fail(task.EncodeError(KindFunctionError, err.Error()))
		}
		return t
	}

	result, err := task.EncodeResult(v)
	if err != nil {
		_ = t.Fail(task.EncodeError(KindFunctionError, err.Error()))
		return t
	}
	_ = t.Complete(result)
	return t
}
