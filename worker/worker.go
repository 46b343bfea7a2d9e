// Package worker implements the remote worker runtime: a bounded execution
// pool behind a single socket to the dispatcher, driven by the shared message
// vocabulary in either pull or push mechanism.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"goa.design/clue/log"

	"github.com/taskfabric/taskfabric/metrics"
	"github.com/taskfabric/taskfabric/pool"
	"github.com/taskfabric/taskfabric/protocol"
	"github.com/taskfabric/taskfabric/registry"
	"github.com/taskfabric/taskfabric/task"
)

// Mechanism selects how the worker acquires tasks. It must match the
// dispatcher's placement policy.
type Mechanism string

const (
	MechanismPull Mechanism = "pull"
	MechanismPush Mechanism = "push"
)

// ParseMechanism validates a mechanism string.
func ParseMechanism(s string) (Mechanism, error) {
	switch Mechanism(s) {
	case MechanismPull, MechanismPush:
		return Mechanism(s), nil
	}
	return "", fmt.Errorf("worker: invalid mechanism %q", s)
}

// noTaskInterval is how long a pull worker waits after NO_TASK before asking
// again.
const noTaskInterval = 50 * time.Millisecond

// Config assembles a worker.
type Config struct {
	// Mechanism must match the dispatcher's mode. Required.
	Mechanism Mechanism
	// DispatcherURL is the websocket endpoint of the dispatcher. Required.
	DispatcherURL string
	// Processes is the execution pool size P. Required.
	Processes uint
	// Registry resolves task entrypoints. Required.
	Registry *registry.Registry
	// Metrics receives fabric instruments. Defaults to the noop provider.
	Metrics metrics.Provider
}

// Worker is one worker process: a fresh identity, P execution slots, a local
// result queue, and a single socket shared by the intake and reporting loops.
type Worker struct {
	id   string
	mech Mechanism
	url  string

	pool     pool.Pool
	capacity uint

	// slots is the capacity semaphore: acquired when a task is accepted,
	// released after its result is reported. Outstanding never exceeds P.
	slots   chan struct{}
	results chan *task.Task

	conn *websocket.Conn
	// connMu serializes socket exchanges. Held across one atomic
	// send-or-send/recv exchange, never during task execution. In push
	// mechanism reads belong exclusively to the intake loop and only
	// writes take the lock.
	connMu sync.Mutex

	executed metrics.Counter
}

// New creates a worker with a fresh identity.
func New(cfg Config) (*Worker, error) {
	if cfg.Mechanism != MechanismPull && cfg.Mechanism != MechanismPush {
		return nil, fmt.Errorf("worker: invalid mechanism %q", cfg.Mechanism)
	}
	if cfg.DispatcherURL == "" {
		return nil, errors.New("worker: dispatcher URL is required")
	}
	if cfg.Processes == 0 {
		return nil, errors.New("worker: pool size is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("worker: registry is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopProvider()
	}

	hist := cfg.Metrics.Histogram(metrics.ExecutionSeconds)
	return &Worker{
		id:   uuid.NewString(),
		mech: cfg.Mechanism,
		url:  cfg.DispatcherURL,
		pool: pool.NewFixed(cfg.Processes, func() any {
			return &slot{reg: cfg.Registry, execSeconds: hist}
		}),
		capacity: cfg.Processes,
		slots:    make(chan struct{}, cfg.Processes),
		results:  make(chan *task.Task, cfg.Processes),
		executed: cfg.Metrics.Counter(metrics.TasksExecuted),
	}, nil
}

// ID returns the worker's identity string.
func (w *Worker) ID() string { return w.id }

// slot executes one task at a time against the registry.
type slot struct {
	reg         *registry.Registry
	execSeconds metrics.Histogram
}

func (s *slot) run(ctx context.Context, t *task.Task) *task.Task {
	start := time.Now()
	out := s.reg.Execute(ctx, t)
	s.execSeconds.Record(time.Since(start).Seconds())
	return out
}

// Run connects to the dispatcher, registers, and drives the intake and
// reporting loops until ctx ends or the transport fails.
func (w *Worker) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("worker: connect to dispatcher: %w", err)
	}
	w.conn = conn
	defer func() { _ = conn.Close() }()

	// Unblock socket reads when the context ends.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	if err := w.register(); err != nil {
		return err
	}
	log.Printf(ctx, "worker %s registered (%s, P=%d)", w.id, w.mech, w.capacity)

	errs := make(chan error, 2)
	go func() { errs <- w.report(ctx) }()
	go func() {
		if w.mech == MechanismPull {
			errs <- w.pullIntake(ctx)
		} else {
			errs <- w.pushIntake(ctx)
		}
	}()

	err = <-errs
	externallyStopped := ctx.Err() != nil
	cancel()
	<-errs
	if externallyStopped {
		return nil
	}
	return err
}

// register announces the worker's identity. In pull mechanism the dispatcher
// answers with an ACK.
func (w *Worker) register() error {
	w.connMu.Lock()
	defer w.connMu.Unlock()

	if err := w.write(protocol.NewMessage(protocol.TypeRegistration, w.id, nil)); err != nil {
		return fmt.Errorf("worker: register: %w", err)
	}
	if w.mech == MechanismPull {
		m, err := w.read()
		if err != nil {
			return fmt.Errorf("worker: register: %w", err)
		}
		if m.Type != protocol.TypeAck {
			return fmt.Errorf("worker: register: want ACK, got %s", m.Type)
		}
	}
	return nil
}

// write sends one encoded message. Callers hold connMu.
func (w *Worker) write(m protocol.Message) error {
	b, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, b)
}

// read receives and decodes one message. Callers hold connMu in pull
// mechanism; in push mechanism only the intake loop reads.
func (w *Worker) read() (protocol.Message, error) {
	_, b, err := w.conn.ReadMessage()
	if err != nil {
		return protocol.Message{}, err
	}
	return protocol.Decode(b)
}

// execute hands an accepted task to a pool slot. The capacity token is
// already held and is released by the reporting loop after RESULT_READY.
func (w *Worker) execute(ctx context.Context, t *task.Task) {
	go func() {
		s := w.pool.Get().(*slot)
		out := s.run(ctx, t)
		w.pool.Put(s)
		w.results <- out
	}()
}

// report drains the local result queue, transmitting RESULT_READY for each
// terminal task and releasing its capacity token.
func (w *Worker) report(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t := <-w.results:
			m := protocol.NewMessage(protocol.TypeResultReady, w.id, t)

			w.connMu.Lock()
			err := w.write(m)
			if err == nil && w.mech == MechanismPull {
				var reply protocol.Message
				reply, err = w.read()
				if err == nil && reply.Type != protocol.TypeAck {
					log.Printf(ctx, "protocol violation: want ACK for result, got %s", reply.Type)
				}
			}
			w.connMu.Unlock()

			if err != nil {
				return fmt.Errorf("worker: report result: %w", err)
			}
			<-w.slots
			w.executed.Add(1)
		}
	}
}
