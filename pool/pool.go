// Package pool provides the bounded pool of execution slots that runs user
// callables in workers and in the local dispatcher.
package pool

// Pool hands out execution slots. Get blocks while every slot is in use;
// Put returns a slot for reuse.
type Pool interface {
	// Get returns a slot from the pool.
	Get() any

	// Put returns a slot back to the pool.
	Put(any)
}
