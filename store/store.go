// Package store abstracts the external key/value store and pub/sub channel
// the fabric persists records to and receives task notifications from.
//
// The dispatcher serializes all task writes per task_id, so the contract
// requires no transaction primitives; last-writer-wins suffices.
package store

import (
	"context"
	"errors"
)

// TasksChannel is the pub/sub topic producers publish new task records on and
// the dispatcher subscribes to at startup.
const TasksChannel = "tasks"

// ErrNotFound reports a Get on a key the store does not hold.
var ErrNotFound = errors.New("store: key not found")

// Store is the adapter contract consumed by the dispatcher and the gateway.
type Store interface {
	// Put durably inserts or overwrites the value under key.
	Put(ctx context.Context, key string, value []byte) error

	// Get reads the value under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Publish fans the payload out to current subscribers of channel.
	Publish(ctx context.Context, channel string, payload []byte) error

	// Subscribe returns a stream of payloads published on channel. The
	// stream closes when ctx is done.
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}
