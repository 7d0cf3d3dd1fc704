package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/driftware/harvester/internal/dispatch"
	"github.com/driftware/harvester/internal/queue"
	"github.com/driftware/harvester/internal/session"
	"github.com/driftware/harvester/pkg/models"
)

// Handler holds the dependencies behind the orchestrator's HTTP surface.
type Handler struct {
	registry   *session.Registry
	dispatcher *dispatch.Dispatcher
	driver     *queue.Driver
}

func NewHandler(registry *session.Registry, dispatcher *dispatch.Dispatcher, driver *queue.Driver) *Handler {
	return &Handler{
		registry:   registry,
		dispatcher: dispatcher,
		driver:     driver,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// AcquireSession handles POST /v1/sessions. With a session id in the body
// it reuses the live sandbox when the probe passes, replaces it when not;
// without one it always provisions fresh.
func (h *Handler) AcquireSession(w http.ResponseWriter, r *http.Request) {
	var req models.AcquireSessionRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	sess, reused, err := h.registry.Acquire(r.Context(), req.SessionID, req.Timeout)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	status := http.StatusCreated
	if reused {
		status = http.StatusOK
	}
	writeJSON(w, status, models.AcquireSessionResponse{Session: sess, Reused: reused})
}

// ListSessions handles GET /v1/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.List())
}

// GetSession handles GET /v1/sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	sess, err := h.registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// ReleaseSession handles DELETE /v1/sessions/{id}. Unknown ids release
// cleanly.
func (h *Handler) ReleaseSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.registry.Release(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExecuteOperations handles POST /v1/sessions/{id}/execute. The batch
// result always carries one entry per submitted operation.
func (h *Handler) ExecuteOperations(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Operations) == 0 {
		writeError(w, http.StatusBadRequest, "operations list is empty")
		return
	}

	sess, err := h.registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	result := h.dispatcher.Execute(r.Context(), sess, req.Operations)
	h.registry.Touch(id)

	writeJSON(w, http.StatusOK, result)
}

// RunBatch handles POST /v1/batch/process: drain pending work items
// through an existing session.
func (h *Handler) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	report, err := h.driver.RunBatch(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// RunDiscovery handles POST /v1/batch/discover: scroll the listing and
// enqueue the visible posts as work items.
func (h *Handler) RunDiscovery(w http.ResponseWriter, r *http.Request) {
	var req models.DiscoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	report, err := h.driver.RunDiscovery(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetViewer handles GET /v1/sessions/{id}/viewer: where a human can watch
// the session's browser live.
func (h *Handler) GetViewer(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	sess, err := h.registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"session_id": sess.ID,
		"viewer_url": sess.ViewerURL,
		"status":     string(sess.Status),
	})
}
