package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"goa.design/clue/log"

	"github.com/taskfabric/taskfabric/protocol"
	"github.com/taskfabric/taskfabric/task"
)

// pullDispatcher parks tasks in a FIFO and hands them out in strict
// request/reply discipline: a task is marked RUNNING only at the moment it is
// dequeued into a NEW_TASK reply, so no task is ever RUNNING without a worker
// holding it.
type pullDispatcher struct {
	core

	port     int
	upgrader websocket.Upgrader
	queue    *fifo
}

func newPull(cfg Config, c core) *pullDispatcher {
	return &pullDispatcher{
		core:  c,
		port:  cfg.Port,
		queue: &fifo{},
	}
}

func (d *pullDispatcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	srv := &http.Server{
		Addr: fmt.Sprintf(":%d", d.port),
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d.serve(ctx, w, r)
		}),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.fatal(err)
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	log.Printf(ctx, "dispatcher running in pull mode on port %d", d.port)
	d.intake(ctx, d.submit)
	return d.runErr
}

// submit enqueues without contacting workers. The NEW_TASK message is
// composed here so the reply path just sends it.
func (d *pullDispatcher) submit(_ context.Context, t *task.Task) error {
	d.queue.push(entry{
		t:   t,
		msg: protocol.NewMessage(protocol.TypeNewTask, dispatcherIdentity, t),
	})
	return nil
}

// serve owns one worker connection, answering one request at a time.
func (d *pullDispatcher) serve(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "event", V: "websocket upgrade failed"})
		return
	}
	defer func() { _ = conn.Close() }()

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return
		}
		m, err := protocol.Decode(b)
		if err != nil {
			log.Error(ctx, err, log.KV{K: "event", V: "protocol violation; closing connection"})
			return
		}

		reply, err := d.handle(ctx, m)
		if err != nil {
			if errors.Is(err, errViolation) {
				log.Error(ctx, err, log.KV{K: "sender", V: m.Sender})
				return
			}
			d.fatal(err)
			return
		}

		payload, err := protocol.Encode(reply)
		if err != nil {
			d.fatal(err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

// handle maps one request to its synchronous reply.
func (d *pullDispatcher) handle(ctx context.Context, m protocol.Message) (protocol.Message, error) {
	switch m.Type {
	case protocol.TypeRegistration:
		log.Printf(ctx, "registered worker %s", m.Sender)
		return protocol.NewMessage(protocol.TypeAck, dispatcherIdentity, nil), nil

	case protocol.TypeRequestTask:
		for {
			e, ok := d.queue.pop()
			if !ok {
				return protocol.NewMessage(protocol.TypeNoTask, dispatcherIdentity, nil), nil
			}
			if err := d.markRunning(ctx, e.t); err != nil {
				if errors.Is(err, errViolation) {
					log.Error(ctx, err, log.KV{K: "task_id", V: e.t.TaskID})
					continue
				}
				return protocol.Message{}, err
			}
			return e.msg, nil
		}

	case protocol.TypeResultReady:
		if m.Body == nil || !m.Body.Terminal() {
			return protocol.Message{}, fmt.Errorf("%w: RESULT_READY without terminal task body", errViolation)
		}
		if err := d.writeTerminal(ctx, m.Body); err != nil {
			return protocol.Message{}, err
		}
		return protocol.NewMessage(protocol.TypeAck, dispatcherIdentity, nil), nil
	}

	return protocol.Message{}, fmt.Errorf("%w: unexpected %s from %s", errViolation, m.Type, m.Sender)
}
