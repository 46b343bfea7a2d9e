package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"goa.design/clue/log"

	"github.com/taskfabric/taskfabric/protocol"
	"github.com/taskfabric/taskfabric/task"
)

// member is one registered worker: its identity, its outstanding-task count,
// and a serialized send path to its socket.
type member struct {
	id   string
	load int
	send func(protocol.Message) error
}

// pushDispatcher transmits each task to the least-loaded registered worker as
// soon as intake produces it. Workers connect once, register, and receive
// unsolicited NEW_TASK messages addressed to their identity.
type pushDispatcher struct {
	core

	port     int
	upgrader websocket.Upgrader

	// mu guards members and every load read-min-update-send sequence.
	mu      sync.Mutex
	cond    *sync.Cond
	members map[string]*member
}

func newPush(cfg Config, c core) *pushDispatcher {
	d := &pushDispatcher{
		core:    c,
		port:    cfg.Port,
		members: make(map[string]*member),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *pushDispatcher) Run(ctx context.Context) error {
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
		d.cond.Broadcast()
		_ = srv.Close()
	}()

	log.Printf(ctx, "dispatcher running in push mode on port %d", d.port)
	d.intake(ctx, d.submit)
	return d.runErr
}

// serve owns one worker connection: registration first, then result intake
// until the socket dies.
func (d *pushDispatcher) serve(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	conn, err := d.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error(ctx, err, log.KV{K: "event", V: "websocket upgrade failed"})
		return
	}
	defer func() { _ = conn.Close() }()

	_, b, err := conn.ReadMessage()
	if err != nil {
		return
	}
	m, err := protocol.Decode(b)
	if err != nil || m.Type != protocol.TypeRegistration || m.Sender == "" {
		log.Printf(ctx, "protocol violation: connection did not open with registration")
		return
	}
	id := m.Sender

	var writeMu sync.Mutex
	mem := &member{
		id: id,
		send: func(msg protocol.Message) error {
			payload, err := protocol.Encode(msg)
			if err != nil {
				return err
			}
			writeMu.Lock()
			defer writeMu.Unlock()
			return conn.WriteMessage(websocket.TextMessage, payload)
		},
	}

	d.mu.Lock()
	if _, known := d.members[id]; known {
		d.mu.Unlock()
		log.Printf(ctx, "protocol violation: re-registration of known worker %s", id)
		return
	}
	d.members[id] = mem
	d.cond.Broadcast()
	d.mu.Unlock()
	log.Printf(ctx, "registered worker %s", id)

	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			d.drop(ctx, id)
			return
		}
		m, err := protocol.Decode(b)
		if err != nil {
			log.Error(ctx, err, log.KV{K: "worker", V: id})
			continue
		}
		switch m.Type {
		case protocol.TypeResultReady:
			if err := d.handleResult(ctx, id, m); err != nil {
				if errors.Is(err, errViolation) {
					log.Error(ctx, err, log.KV{K: "worker", V: id})
					continue
				}
				d.fatal(err)
				return
			}
		default:
			log.Printf(ctx, "protocol violation: unexpected %s from worker %s", m.Type, id)
		}
	}
}

// handleResult applies one RESULT_READY: terminal write, then decrement.
// Violations leave task state untouched.
func (d *pushDispatcher) handleResult(ctx context.Context, id string, m protocol.Message) error {
	if m.Sender != id {
		return fmt.Errorf("%w: sender %q does not match connection identity %q", errViolation, m.Sender, id)
	}
	if m.Body == nil || !m.Body.Terminal() {
		return fmt.Errorf("%w: RESULT_READY without terminal task body", errViolation)
	}

	d.mu.Lock()
	mem, known := d.members[id]
	if !known {
		d.mu.Unlock()
		return fmt.Errorf("%w: RESULT_READY from unknown worker %s", errViolation, id)
	}
	if mem.load == 0 {
		d.mu.Unlock()
		return fmt.Errorf("%w: outstanding count for %s would drop below zero", errViolation, id)
	}
	d.mu.Unlock()

	if err := d.writeTerminal(ctx, m.Body); err != nil {
		return err
	}

	d.mu.Lock()
	mem.load--
	d.mu.Unlock()
	return nil
}

// drop removes a lost worker from membership. Tasks assigned to it stay
// RUNNING; there is no re-dispatch.
func (d *pushDispatcher) drop(ctx context.Context, id string) {
	d.mu.Lock()
	_, known := d.members[id]
	delete(d.members, id)
	d.mu.Unlock()
	if known {
		log.Printf(ctx, "worker %s lost; its in-flight tasks remain running", id)
	}
}

// submit blocks until at least one worker is registered, then marks the task
// running and transmits it to the least-loaded worker. The membership mutex
// covers the whole read-min-update-send sequence.
func (d *pushDispatcher) submit(ctx context.Context, t *task.Task) error {
	d.mu.Lock()
	for len(d.members) == 0 {
		if ctx.Err() != nil {
			d.mu.Unlock()
			return ctx.Err()
		}
		d.cond.Wait()
	}
	mem := d.leastLoaded()

	if err := d.markRunning(ctx, t); err != nil {
		d.mu.Unlock()
		if errors.Is(err, errViolation) {
			log.Error(ctx, err, log.KV{K: "task_id", V: t.TaskID})
			return nil
		}
		return err
	}

	msg := protocol.NewMessage(protocol.TypeNewTask, dispatcherIdentity, t)
	if err := mem.send(msg); err != nil {
		delete(d.members, mem.id)
		d.mu.Unlock()
		log.Error(ctx, err, log.KV{K: "event", V: "send failed; worker dropped"}, log.KV{K: "worker", V: mem.id})
		return nil
	}
	mem.load++
	d.mu.Unlock()
	return nil
}

// leastLoaded picks the argmin outstanding count, ties broken by lowest
// identity. Callers hold d.mu.
func (d *pushDispatcher) leastLoaded() *member {
	var best *member
	for _, mem := range d.members {
		if best == nil || mem.load < best.load || (mem.load == best.load && mem.id < best.id) {
			best = mem
		}
	}
	return best
}
