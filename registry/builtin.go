package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/taskfabric/taskfabric/task"
)

// NewBuiltin creates a registry preloaded with the functions every worker
// binary in this deployment carries.
func NewBuiltin() *Registry {
	r := New()
	r.Register("double", Double)
	r.Register("noop", Noop)
	r.Register("sleep", Sleep)
	r.Register("not_implemented", NotImplemented)
	r.Register("bruteforce", Bruteforce)
	r.Register("fibonacci", Fibonacci)
	return r
}

// Double returns twice its single numeric argument.
func Double(_ context.Context, args []any, _ map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("double: want 1 argument, got %d", len(args))
	}
	x, ok := args[0].(float64)
	if !ok {
		return nil, fmt.Errorf("double: argument is not a number: %v", args[0])
	}
	return 2 * x, nil
}

// Noop does nothing and returns nothing.
func Noop(_ context.Context, _ []any, _ map[string]any) (any, error) {
	return nil, nil
}

// Sleep blocks for the given number of seconds.
func Sleep(_ context.Context, args []any, _ map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("sleep: want 1 argument, got %d", len(args))
	}
	seconds, ok := args[0].(float64)
	if !ok {
		return nil, fmt.Errorf("sleep: argument is not a number: %v", args[0])
	}
	time.Sleep(time.Duration(seconds * float64(time.Second)))
	return nil, nil
}

// NotImplemented always fails with the "not implemented" kind.
func NotImplemented(_ context.Context, _ []any, _ map[string]any) (any, error) {
	return nil, task.NewFailure("not implemented", "this function is not implemented")
}

// Fibonacci returns the nth Fibonacci number; the sequence starts at 1.
func Fibonacci(_ context.Context, args []any, _ map[string]any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("fibonacci: want 1 argument, got %d", len(args))
	}
	n, ok := args[0].(float64)
	if !ok {
		return nil, fmt.Errorf("fibonacci: argument is not a number: %v", args[0])
	}
	if n <= 0 {
		return nil, fmt.Errorf("fibonacci: sequence starts at 1, got %v", n)
	}
	a, b := 1, 1
	for i := 3; i <= int(n); i++ {
		a, b = b, a+b
	}
	return b, nil
}

// Bruteforce scans [lo, hi) for the integer whose decimal SHA-256 digest
// equals hash, returning the integer or nil when the range misses.
func Bruteforce(_ context.Context, args []any, _ map[string]any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("bruteforce: want 3 arguments, got %d", len(args))
	}
	hash, ok := args[0].(string)
	if !ok {
		return nil, fmt.Errorf("bruteforce: hash is not a string: %v", args[0])
	}
	lo, ok := args[1].(float64)
	if !ok {
		return nil, fmt.Errorf("bruteforce: lo is not a number: %v", args[1])
	}
	hi, ok := args[2].(float64)
	if !ok {
		return nil, fmt.Errorf("bruteforce: hi is not a number: %v", args[2])
	}
	for n := int(lo); n < int(hi); n++ {
		sum := sha256.Sum256([]byte(strconv.Itoa(n)))
		if hex.EncodeToString(sum[:]) == hash {
			return n, nil
		}
	}
	return nil, nil
}
