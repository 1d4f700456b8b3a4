package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/creditoya/whatsapp-gateway/internal/cache"
	"github.com/creditoya/whatsapp-gateway/internal/dispatch"
	"github.com/creditoya/whatsapp-gateway/internal/model"
	"github.com/creditoya/whatsapp-gateway/internal/registry"
)

type SessionService interface {
	CreateSession(ctx context.Context, id string) (model.SessionInfo, error)
	GetSession(id string) (model.SessionInfo, error)
	DeleteSession(ctx context.Context, id string) error
	ReconnectSession(ctx context.Context, id string) (model.SessionInfo, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, job dispatch.Job) (model.DispatchReport, error)
}

type Handler struct {
	sessions SessionService
	engine   Dispatcher
	reports  cache.ReportCache
}

func NewHandler(sessions SessionService, engine Dispatcher, reports cache.ReportCache) *Handler {
	return &Handler{sessions: sessions, engine: engine, reports: reports}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type createSessionRequest struct {
	ID string `json:"id"`
}

func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	info, err := h.sessions.CreateSession(r.Context(), req.ID)
	switch {
	case errors.Is(err, registry.ErrAlreadyExists):
		writeJSON(w, http.StatusOK, map[string]any{"session": info, "message": "session already tracked"})
	case err != nil:
		// The session stays tracked in state Failed; report both.
		writeJSON(w, http.StatusBadGateway, map[string]any{"session": info, "error": err.Error()})
	default:
		writeJSON(w, http.StatusCreated, map[string]any{"session": info})
	}
}

func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.sessions.GetSession(r.PathValue("id"))
	if errors.Is(err, registry.ErrNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": info})
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ReconnectSession(w http.ResponseWriter, r *http.Request) {
	info, err := h.sessions.ReconnectSession(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, registry.ErrNoCredentials):
		http.Error(w, "no credentials persisted for session", http.StatusNotFound)
	case errors.Is(err, registry.ErrNotDisconnected):
		http.Error(w, "session is live; reconnect requires a disconnected session", http.StatusConflict)
	case err != nil:
		writeJSON(w, http.StatusBadGateway, map[string]any{"session": info, "error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"session": info})
	}
}

func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var job dispatch.Job
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	job.SessionID = r.PathValue("id")

	report, err := h.engine.Dispatch(r.Context(), job)
	switch {
	case errors.Is(err, dispatch.ErrNoRecipients):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, registry.ErrSessionNotReady):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"report": report})
	}
}

func (h *Handler) LastReport(w http.ResponseWriter, r *http.Request) {
	if h.reports == nil {
		http.Error(w, "report cache not configured", http.StatusNotFound)
		return
	}

	report, err := h.reports.LastReport(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, cache.ErrNoReport):
		http.Error(w, err.Error(), http.StatusNotFound)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"report": report})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
