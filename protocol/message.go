// Package protocol defines the message vocabulary spoken between the
// dispatcher and its workers and the symmetric codec that frames it.
//
// Every transport frame and every task-notification channel payload carries
// exactly one encoded value. Embedded payload blobs travel verbatim; the
// codec never re-encodes the inner callable or argument blobs.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/taskfabric/taskfabric/task"
)

// Type tags a protocol message.
type Type string

const (
	TypeRegistration Type = "REGISTRATION"
	TypeAck          Type = "ACK"
	TypeRequestTask  Type = "REQUEST_TASK"
	TypeNoTask       Type = "NO_TASK"
	TypeNewTask      Type = "NEW_TASK"
	TypeResultReady  Type = "RESULT_READY"
)

var (
	// ErrUnknownType reports a message whose type is outside the
	// vocabulary. Receivers treat it as a protocol violation.
	ErrUnknownType = errors.New("protocol: unknown message type")

	// ErrMalformed reports a frame that does not parse as a message.
	ErrMalformed = errors.New("protocol: malformed frame")
)

var validTypes = map[Type]struct{}{
	TypeRegistration: {},
	TypeAck:          {},
	TypeRequestTask:  {},
	TypeNoTask:       {},
	TypeNewTask:      {},
	TypeResultReady:  {},
}

// Message is one protocol exchange unit. Body is present only on NEW_TASK and
// RESULT_READY messages and carries the full task record.
type Message struct {
	Type   Type       `json:"type"`
	Sender string     `json:"sender"`
	Body   *task.Task `json:"body,omitempty"`
}

// NewMessage composes a message from the given sender, optionally carrying a
// task body.
func NewMessage(t Type, sender string, body *task.Task) Message {
	return Message{Type: t, Sender: sender, Body: body}
}

// Encode frames a message for the wire.
func Encode(m Message) ([]byte, error) {
	if _, ok := validTypes[m.Type]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return json.Marshal(m)
}

// Decode parses a wire frame. A frame carrying a type outside the vocabulary
// decodes to ErrUnknownType.
func Decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, ok := validTypes[m.Type]; !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
	return m, nil
}

// EncodeTask frames a task record for the task-notification channel.
func EncodeTask(t *task.Task) ([]byte, error) {
	return json.Marshal(t)
}

// DecodeTask parses a task record published on the task-notification channel.
func DecodeTask(b []byte) (*task.Task, error) {
	var t task.Task
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("protocol: malformed task record: %w", err)
	}
	return &t, nil
}
