package dispatch

import (
	"sync"

	"github.com/taskfabric/taskfabric/protocol"
	"github.com/taskfabric/taskfabric/task"
)

// entry pairs a queued task with its prepared NEW_TASK message so the reply
// path does no composition work.
type entry struct {
	t   *task.Task
	msg protocol.Message
}

// fifo is the pull dispatcher's assignment queue: intake produces, the wire
// service consumes, order is preserved across a dispatcher run.
type fifo struct {
	mu    sync.Mutex
	items []entry
}

func (q *fifo) push(e entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, e)
}

func (q *fifo) pop() (entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return entry{}, false
	}
	e := q.items[0]
	q.items = q.items[1:]
	return e, true
}
