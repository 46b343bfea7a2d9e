// Package task defines the function and task records persisted in the store
// and transported between the dispatcher and workers, together with the
// task lifecycle transitions and payload serialization.
package task

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

var (
	// ErrTransition reports an attempt to move a task against its lifecycle.
	ErrTransition = errors.New("task: invalid state transition")

	// ErrEmptyResult reports a terminal transition without a result value.
	ErrEmptyResult = errors.New("task: terminal transition requires a result")
)

// Function is an immutable registered callable. Payload is the serialized
// descriptor naming the entrypoint workers resolve at execution time.
type Function struct {
	Name       string `json:"name"`
	FunctionID string `json:"function_id"`
	Payload    string `json:"payload"`
}

// NewFunction creates a function record with a fresh identifier.
func NewFunction(name, payload string) *Function {
	return &Function{
		Name:       name,
		FunctionID: uuid.NewString(),
		Payload:    payload,
	}
}

// MarshalFunction encodes a function record for storage.
func MarshalFunction(f *Function) ([]byte, error) {
	return json.Marshal(f)
}

// UnmarshalFunction decodes a stored function record.
func UnmarshalFunction(b []byte) (*Function, error) {
	var f Function
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("decode function record: %w", err)
	}
	return &f, nil
}

// Task is one requested execution of a registered function.
//
// FunctionPayload rides along on the wire so workers can resolve the callable
// without a store round trip; it is not part of the persisted record.
type Task struct {
	TaskID          string `json:"task_id"`
	FunctionID      string `json:"function_id"`
	Payload         string `json:"payload"`
	Status          Status `json:"status"`
	Result          string `json:"result"`
	FunctionPayload string `json:"function_payload,omitempty"`
}

// New creates a task in the QUEUED state with a fresh identifier.
func New(functionID, payload string) *Task {
	return &Task{
		TaskID:     uuid.NewString(),
		FunctionID: functionID,
		Payload:    payload,
		Status:     StatusQueued,
	}
}

// record is the persisted shape: exactly the stored fields, nothing from the
// wire form.
type record struct {
	TaskID     string `json:"task_id"`
	FunctionID string `json:"function_id"`
	Payload    string `json:"payload"`
	Status     Status `json:"status"`
	Result     string `json:"result"`
}

// MarshalRecord encodes the persisted form of the task.
func (t *Task) MarshalRecord() ([]byte, error) {
	return json.Marshal(record{
		TaskID:     t.TaskID,
		FunctionID: t.FunctionID,
		Payload:    t.Payload,
		Status:     t.Status,
		Result:     t.Result,
	})
}

// UnmarshalRecord decodes a stored task record.
func UnmarshalRecord(b []byte) (*Task, error) {
	var r record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode task record: %w", err)
	}
	return &Task{
		TaskID:     r.TaskID,
		FunctionID: r.FunctionID,
		Payload:    r.Payload,
		Status:     r.Status,
		Result:     r.Result,
	}, nil
}

// MarkRunning moves the task from QUEUED to RUNNING.
func (t *Task) MarkRunning() error {
	if t.Status != StatusQueued {
		return fmt.Errorf("%w: %s -> %s", ErrTransition, t.Status, StatusRunning)
	}
	t.Status = StatusRunning
	return nil
}

// Complete moves the task from RUNNING to COMPLETED with the serialized
// return value. The result is written exactly once, here.
func (t *Task) Complete(result string) error {
	return t.terminate(StatusCompleted, result)
}

// Fail moves the task from RUNNING to FAILED with the serialized error value.
func (t *Task) Fail(result string) error {
	return t.terminate(StatusFailed, result)
}

func (t *Task) terminate(s Status, result string) error {
	if t.Status != StatusRunning {
		return fmt.Errorf("%w: %s -> %s", ErrTransition, t.Status, s)
	}
	if result == "" {
		return ErrEmptyResult
	}
	t.Status = s
	t.Result = result
	return nil
}

// Terminal reports whether the task reached an absorbing state.
func (t *Task) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}
