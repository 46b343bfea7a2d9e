// Package gateway exposes the HTTP surface clients use to register functions,
// request executions, and poll task status and results.
//
// The gateway is a producer against the store: it persists records and
// publishes new tasks on the notification channel; it never mutates a task
// after publishing.
package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"goa.design/clue/log"

	"github.com/taskfabric/taskfabric/protocol"
	"github.com/taskfabric/taskfabric/store"
	"github.com/taskfabric/taskfabric/task"
)

// Gateway routes client requests onto the store.
type Gateway struct {
	st     store.Store
	router *mux.Router
}

// New creates a gateway over the given store.
func New(st store.Store) *Gateway {
	g := &Gateway{st: st, router: mux.NewRouter()}
	g.router.HandleFunc("/register_function", g.registerFunction).Methods(http.MethodPost)
	g.router.HandleFunc("/execute_function", g.executeFunction).Methods(http.MethodPost)
	g.router.HandleFunc("/status/{task_id}", g.status).Methods(http.MethodGet)
	g.router.HandleFunc("/result/{task_id}", g.result).Methods(http.MethodGet)
	return g
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler { return g.router }

type registerRequest struct {
	Name    string `json:"name"`
	Payload string `json:"payload"`
}

type executeRequest struct {
	FunctionID string `json:"function_id"`
	Payload    string `json:"payload"`
}

func (g *Gateway) registerFunction(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Name == "" || req.Payload == "" {
		writeError(w, http.StatusBadRequest, "name and payload are required")
		return
	}

	fn := task.NewFunction(req.Name, req.Payload)
	b, err := task.MarshalFunction(fn)
	if err != nil {
		g.internalError(w, r, err)
		return
	}
	if err := g.st.Put(r.Context(), fn.FunctionID, b); err != nil {
		g.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, fn)
}

func (g *Gateway) executeFunction(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.FunctionID == "" || req.Payload == "" {
		writeError(w, http.StatusBadRequest, "function_id and payload are required")
		return
	}

	fb, err := g.st.Get(r.Context(), req.FunctionID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown function")
		return
	}
	if err != nil {
		g.internalError(w, r, err)
		return
	}
	fn, err := task.UnmarshalFunction(fb)
	if err != nil {
		g.internalError(w, r, err)
		return
	}

	t := task.New(req.FunctionID, req.Payload)
	record, err := t.MarshalRecord()
	if err != nil {
		g.internalError(w, r, err)
		return
	}
	// The record is flushed before anything downstream can observe the task.
	if err := g.st.Put(r.Context(), t.TaskID, record); err != nil {
		g.internalError(w, r, err)
		return
	}

	t.FunctionPayload = fn.Payload
	wire, err := protocol.EncodeTask(t)
	if err != nil {
		g.internalError(w, r, err)
		return
	}
	if err := g.st.Publish(r.Context(), store.TasksChannel, wire); err != nil {
		g.internalError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(record)
}

func (g *Gateway) status(w http.ResponseWriter, r *http.Request) {
	t, ok := g.lookupTask(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id": t.TaskID,
		"status":  t.Status,
	})
}

func (g *Gateway) result(w http.ResponseWriter, r *http.Request) {
	t, ok := g.lookupTask(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_id": t.TaskID,
		"status":  t.Status,
		"result":  t.Result,
	})
}

func (g *Gateway) lookupTask(w http.ResponseWriter, r *http.Request) (*task.Task, bool) {
	id := mux.Vars(r)["task_id"]
	b, err := g.st.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "unknown task")
		return nil, false
	}
	if err != nil {
		g.internalError(w, r, err)
		return nil, false
	}
	t, err := task.UnmarshalRecord(b)
	if err != nil {
		g.internalError(w, r, err)
		return nil, false
	}
	return t, true
}

func (g *Gateway) internalError(w http.ResponseWriter, r *http.Request, err error) {
	log.Error(r.Context(), err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
