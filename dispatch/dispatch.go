// Package dispatch implements the dispatcher: task intake from the
// notification channel, worker membership, placement, and terminal writes.
//
// Three placement policies share the same outward contract. Local runs an
// in-process execution pool; push transmits to the least-loaded registered
// worker; pull parks tasks in a FIFO until a worker asks. The policy is
// chosen once at startup and the deployment's workers must match it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"goa.design/clue/log"

	"github.com/taskfabric/taskfabric/metrics"
	"github.com/taskfabric/taskfabric/protocol"
	"github.com/taskfabric/taskfabric/registry"
	"github.com/taskfabric/taskfabric/store"
	"github.com/taskfabric/taskfabric/task"
)

// Mode selects the placement policy.
type Mode string

const (
	ModeLocal Mode = "local"
	ModePush  Mode = "push"
	ModePull  Mode = "pull"
)

// dispatcherIdentity is the sender identity on every dispatcher-originated
// message.
const dispatcherIdentity = "MASTER"

// errViolation tags protocol violations: the offending interaction is
// aborted and logged, no task state changes.
var errViolation = errors.New("dispatch: protocol violation")

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLocal, ModePush, ModePull:
		return Mode(s), nil
	}
	return "", fmt.Errorf("dispatch: invalid mode %q", s)
}

// Dispatcher services task intake and worker interactions until its context
// ends or an unrecoverable store error occurs.
type Dispatcher interface {
	Run(ctx context.Context) error
}

// Config assembles a dispatcher.
type Config struct {
	// Mode selects the placement policy. Required.
	Mode Mode
	// Port is the listen port for push and pull modes.
	Port int
	// Workers is the execution pool size for local mode.
	Workers uint
	// Store persists records and carries the task-notification channel.
	// Required.
	Store store.Store
	// Registry resolves entrypoints in local mode.
	Registry *registry.Registry
	// Metrics receives fabric instruments. Defaults to the noop provider.
	Metrics metrics.Provider
}

// New constructs the dispatcher for cfg.Mode.
func New(cfg Config) (Dispatcher, error) {
	if cfg.Store == nil {
		return nil, errors.New("dispatch: store is required")
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoopProvider()
	}
	c := newCore(cfg.Store, cfg.Metrics)

	switch cfg.Mode {
	case ModeLocal:
		if cfg.Workers == 0 {
			return nil, errors.New("dispatch: local mode requires a pool size")
		}
		if cfg.Registry == nil {
			return nil, errors.New("dispatch: local mode requires a registry")
		}
		return newLocal(cfg, c), nil
	case ModePush:
		if cfg.Port == 0 {
			return nil, errors.New("dispatch: push mode requires a port")
		}
		return newPush(cfg, c), nil
	case ModePull:
		if cfg.Port == 0 {
			return nil, errors.New("dispatch: pull mode requires a port")
		}
		return newPull(cfg, c), nil
	}
	return nil, fmt.Errorf("dispatch: invalid mode %q", cfg.Mode)
}

// core holds the state and store plumbing shared by all placement policies.
type core struct {
	store store.Store

	completed   metrics.Counter
	failed      metrics.Counter
	outstanding metrics.UpDownCounter

	cancel  context.CancelFunc
	errOnce sync.Once
	runErr  error
}

func newCore(st store.Store, m metrics.Provider) core {
	return core{
		store:       st,
		completed:   m.Counter(metrics.TasksCompleted),
		failed:      m.Counter(metrics.TasksFailed),
		outstanding: m.UpDownCounter(metrics.TasksOutstanding),
	}
}

// fatal records the first unrecoverable error and stops the dispatcher.
func (c *core) fatal(err error) {
	c.errOnce.Do(func() {
		c.runErr = err
		if c.cancel != nil {
			c.cancel()
		}
	})
}

// intake reads the task-notification channel and hands each decoded task to
// submit. The channel is the only source of new work; intake is
// single-threaded.
func (c *core) intake(ctx context.Context, submit func(context.Context, *task.Task) error) {
	msgs, err := c.store.Subscribe(ctx, store.TasksChannel)
	if err != nil {
		c.fatal(err)
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-msgs:
			if !ok {
				return
			}
			t, err := protocol.DecodeTask(b)
			if err != nil {
				log.Error(ctx, err, log.KV{K: "event", V: "malformed task notification"})
				continue
			}
			if err := submit(ctx, t); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				c.fatal(err)
				return
			}
		}
	}
}

// markRunning transitions the task to RUNNING and flushes the record before
// any wire send or reply. A transition error is a protocol violation; a
// store error is fatal to the caller.
func (c *core) markRunning(ctx context.Context, t *task.Task) error {
	if err := t.MarkRunning(); err != nil {
		return fmt.Errorf("%w: %v", errViolation, err)
	}
	b, err := t.MarshalRecord()
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, t.TaskID, b); err != nil {
		return err
	}
	c.outstanding.Add(1)
	return nil
}

// writeTerminal flushes a terminal task record to the store.
func (c *core) writeTerminal(ctx context.Context, t *task.Task) error {
	if !t.Terminal() {
		return fmt.Errorf("%w: result for non-terminal task %s", errViolation, t.TaskID)
	}
	b, err := t.MarshalRecord()
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, t.TaskID, b); err != nil {
		return err
	}
	if t.Status == task.StatusCompleted {
		c.completed.Add(1)
	} else {
		c.failed.Add(1)
	}
	c.outstanding.Add(-1)
	return nil
}
