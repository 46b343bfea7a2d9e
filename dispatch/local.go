package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"goa.design/clue/log"

	"github.com/taskfabric/taskfabric/metrics"
	"github.com/taskfabric/taskfabric/pool"
	"github.com/taskfabric/taskfabric/registry"
	"github.com/taskfabric/taskfabric/task"
)

// localDispatcher degrades the fabric to a single-node executor: tasks run on
// an in-process bounded pool with the same lifecycle guarantees and no
// network.
type localDispatcher struct {
	core

	pool     pool.Pool
	inflight sync.WaitGroup
}

// execSlot runs one task at a time against the registry.
type execSlot struct {
	reg         *registry.Registry
	execSeconds metrics.Histogram
}

func (s *execSlot) run(ctx context.Context, t *task.Task) *task.Task {
	start := time.Now()
	out := s.reg.Execute(ctx, t)
	s.execSeconds.Record(time.Since(start).Seconds())
	return out
}

func newLocal(cfg Config, c core) *localDispatcher {
	hist := cfg.Metrics.Histogram(metrics.ExecutionSeconds)
	return &localDispatcher{
		core: c,
		pool: pool.NewFixed(cfg.Workers, func() any {
			return &execSlot{reg: cfg.Registry, execSeconds: hist}
		}),
	}
}

func (d *localDispatcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	log.Printf(ctx, "dispatcher running in local mode")
	d.intake(ctx, d.submit)
	d.inflight.Wait()
	return d.runErr
}

func (d *localDispatcher) submit(ctx context.Context, t *task.Task) error {
	if err := d.markRunning(ctx, t); err != nil {
		if errors.Is(err, errViolation) {
			log.Error(ctx, err, log.KV{K: "task_id", V: t.TaskID})
			return nil
		}
		return err
	}

	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		s := d.pool.Get().(*execSlot)
		out := s.run(ctx, t)
		d.pool.Put(s)
		if err := d.writeTerminal(ctx, out); err != nil {
			d.fatal(err)
		}
	}()
	return nil
}
