// Package api exposes the ops HTTP surface: task CRUD, advisory
// cancellation, stream-token issuance, and the SSE event stream.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vmeassist/opsd/internal/dashboard"
	"github.com/vmeassist/opsd/internal/events"
	"github.com/vmeassist/opsd/internal/httputil"
	"github.com/vmeassist/opsd/internal/metrics"
	"github.com/vmeassist/opsd/internal/repository"
	"github.com/vmeassist/opsd/internal/runner"
	"github.com/vmeassist/opsd/internal/store"
	"github.com/vmeassist/opsd/internal/task"
	"github.com/vmeassist/opsd/internal/token"
)

type API struct {
	store      *store.Store
	events     *events.Log
	runner     *runner.Runner
	eventRepo  repository.EventRepository // nil without a persistent backend
	codec      *token.Codec
	auth       *AdminAuth
	fakeStream bool
	streamPoll time.Duration
	mux        *http.ServeMux
}

type CreateTaskRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type StreamTokenRequest struct {
	TaskID *int64 `json:"task_id"`
}

func NewAPI(s *store.Store, l *events.Log, r *runner.Runner, eventRepo repository.EventRepository, codec *token.Codec, auth *AdminAuth, fakeStream bool) *API {
	a := &API{
		store:      s,
		events:     l,
		runner:     r,
		eventRepo:  eventRepo,
		codec:      codec,
		auth:       auth,
		fakeStream: fakeStream,
		streamPoll: 500 * time.Millisecond,
		mux:        http.NewServeMux(),
	}

	a.setupRoutes()

	return a
}

func (a *API) setupRoutes() {
	a.mux.HandleFunc("/ops/tasks", a.requireAdmin(a.handleTasks))
	a.mux.HandleFunc("/ops/tasks/", a.handleTaskByID)
	a.mux.HandleFunc("/ops/stream_tokens", a.requireAdmin(a.createStreamToken))

	dash := dashboard.NewDashboard(a.store)
	a.mux.HandleFunc("/ops/dashboard/stats", a.requireAdmin(dash.GetStats))
	a.mux.HandleFunc("/ops/dashboard/history", a.requireAdmin(dash.GetRecentTasks))

	a.mux.Handle("/metrics", promhttp.Handler())
}

func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mux.ServeHTTP(w, r)
}

func (a *API) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !a.auth.IsAdmin(r) {
			httputil.WriteJSONError(w, "admin token required", http.StatusForbidden)
			return
		}

		next(w, r)
	}
}

func (a *API) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createTask(w, r)
	case http.MethodGet:
		a.listTasks(w, r)
	default:
		httputil.WriteJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) createTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSONError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Title == "" {
		httputil.WriteJSONError(w, "title required", http.StatusBadRequest)
		return
	}

	id := a.store.Create(r.Context(), req.Title, req.Body)

	// Submission already succeeded from the caller's point of view; a
	// failed enqueue leaves the task queued for an operator to resubmit.
	t := &task.Task{ID: id, Title: req.Title, Body: req.Body}
	if err := a.runner.Submit(t); err != nil {
		log.Printf("Failed to enqueue task %d: %v", id, err)
		metrics.BackendErrors.WithLabelValues("enqueue").Inc()
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"id": id})
}

func (a *API) listTasks(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	items := a.store.List(r.Context(), limit)
	if items == nil {
		items = []*task.Task{}
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleTaskByID dispatches /ops/tasks/{id}, /ops/tasks/{id}/cancel, and
// /ops/tasks/{id}/stream. The stream endpoint does its own auth since it
// also accepts capability tokens.
func (a *API) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/ops/tasks/")
	parts := strings.SplitN(rest, "/", 2)

	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		httputil.WriteJSONError(w, "invalid task id", http.StatusBadRequest)
		return
	}

	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		a.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
			a.getTask(w, r, id)
		})(w, r)
	case action == "cancel" && r.Method == http.MethodPost:
		a.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
			a.cancelTask(w, r, id)
		})(w, r)
	case action == "stream" && r.Method == http.MethodGet:
		a.streamTask(w, r, id)
	default:
		httputil.WriteJSONError(w, "not found", http.StatusNotFound)
	}
}

func (a *API) getTask(w http.ResponseWriter, r *http.Request, id int64) {
	httputil.WriteJSON(w, http.StatusOK, a.store.Get(r.Context(), id))
}

func (a *API) cancelTask(w http.ResponseWriter, r *http.Request, id int64) {
	a.store.UpdateStatus(r.Context(), id, task.StatusCancelled, repository.StatusUpdate{})
	a.events.Append(id, task.KindLog, map[string]any{"msg": "cancelled"})
	metrics.TasksCancelled.Inc()

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) createStreamToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.WriteJSONError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req StreamTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSONError(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	if req.TaskID == nil {
		httputil.WriteJSONError(w, "task_id required", http.StatusBadRequest)
		return
	}

	tok, expiresAt, err := a.codec.Make(*req.TaskID, token.DefaultTTL)
	if err != nil {
		httputil.WriteJSONError(w, "failed to issue token", http.StatusInternalServerError)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"token":      tok,
		"expires_at": expiresAt.Unix(),
	})
}
