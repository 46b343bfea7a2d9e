package task

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Serialize encodes an arbitrary JSON-representable value into the opaque
// payload form: JSON wrapped in a base64 envelope. The envelope keeps payloads
// safe to embed verbatim inside records and wire messages.
func Serialize(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("serialize payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Deserialize decodes a payload produced by Serialize into v.
func Deserialize(payload string, v any) error {
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("deserialize payload: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("deserialize payload: %w", err)
	}
	return nil
}

// EncodeArgs packs positional and keyword arguments into a task payload.
// The payload is a two-element array: [args, kwargs].
func EncodeArgs(args []any, kwargs map[string]any) (string, error) {
	if args == nil {
		args = []any{}
	}
	if kwargs == nil {
		kwargs = map[string]any{}
	}
	return Serialize([2]any{args, kwargs})
}

// DecodeArgs unpacks a task payload into positional and keyword arguments.
func DecodeArgs(payload string) ([]any, map[string]any, error) {
	var pair [2]json.RawMessage
	if err := Deserialize(payload, &pair); err != nil {
		return nil, nil, err
	}
	var args []any
	if err := json.Unmarshal(pair[0], &args); err != nil {
		return nil, nil, fmt.Errorf("decode args: %w", err)
	}
	var kwargs map[string]any
	if err := json.Unmarshal(pair[1], &kwargs); err != nil {
		return nil, nil, fmt.Errorf("decode kwargs: %w", err)
	}
	return args, kwargs, nil
}

// EncodeResult serializes a callable's return value for the task record.
func EncodeResult(v any) (string, error) {
	return Serialize(v)
}

// DecodeResult deserializes a terminal task's result value.
func DecodeResult(result string) (any, error) {
	var v any
	if err := Deserialize(result, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// ErrorValue is the serialized form of a task failure: the failure kind plus
// the human-readable message.
type ErrorValue struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// EncodeError serializes a failure for the task record. Encoding an
// ErrorValue cannot fail, so the result is returned directly.
func EncodeError(kind, message string) string {
	s, _ := Serialize(ErrorValue{Kind: kind, Message: message})
	return s
}

// DecodeError deserializes a FAILED task's result value.
func DecodeError(result string) (ErrorValue, error) {
	var ev ErrorValue
	if err := Deserialize(result, &ev); err != nil {
		return ErrorValue{}, err
	}
	return ev, nil
}

// Failure is an error with an explicit failure kind. Callables return it when
// they want the kind surfaced in the task result; plain errors are recorded
// under a generic kind.
type Failure struct {
	Kind    string
	Message string
}

// NewFailure constructs a Failure error.
func NewFailure(kind, message string) *Failure {
	return &Failure{Kind: kind, Message: message}
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}
