package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"goa.design/clue/log"

	"github.com/taskfabric/taskfabric/protocol"
)

// protocolViolation reports errors the worker recovers from by dropping the
// offending frame rather than terminating.
func protocolViolation(err error) bool {
	return errors.Is(err, protocol.ErrUnknownType) || errors.Is(err, protocol.ErrMalformed)
}

// pullIntake acquires tasks by asking for them: REQUEST_TASK, then NEW_TASK
// or NO_TASK. Capacity is acquired before asking so a full worker never asks.
func (w *Worker) pullIntake(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case w.slots <- struct{}{}:
		}

		w.connMu.Lock()
		err := w.write(protocol.NewMessage(protocol.TypeRequestTask, w.id, nil))
		var m protocol.Message
		if err == nil {
			m, err = w.read()
		}
		w.connMu.Unlock()

		if err != nil {
			<-w.slots
			if protocolViolation(err) {
				log.Error(ctx, err, log.KV{K: "event", V: "dropping frame"})
				continue
			}
			return fmt.Errorf("worker: request task: %w", err)
		}

		switch m.Type {
		case protocol.TypeNewTask:
			if m.Body == nil {
				log.Printf(ctx, "protocol violation: NEW_TASK without body")
				<-w.slots
				continue
			}
			w.execute(ctx, m.Body)

		case protocol.TypeNoTask:
			<-w.slots
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(noTaskInterval):
			}

		default:
			log.Printf(ctx, "protocol violation: unexpected %s in pull intake", m.Type)
			<-w.slots
		}
	}
}

// pushIntake reads unsolicited NEW_TASK messages. It is the connection's
// only reader, so no lock is taken; acceptance still blocks on capacity so
// outstanding never exceeds P.
func (w *Worker) pushIntake(ctx context.Context) error {
	for {
		m, err := w.read()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if protocolViolation(err) {
				log.Error(ctx, err, log.KV{K: "event", V: "dropping frame"})
				continue
			}
			return fmt.Errorf("worker: receive task: %w", err)
		}
		if m.Type != protocol.TypeNewTask || m.Body == nil {
			log.Printf(ctx, "protocol violation: unexpected %s in push intake", m.Type)
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case w.slots <- struct{}{}:
		}
		w.execute(ctx, m.Body)
	}
}
