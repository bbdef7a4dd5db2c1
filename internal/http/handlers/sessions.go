package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nullshard/hlspackager/internal/session"
)

// SessionAPIHandler exposes session lifecycle and push-engine stats for
// operators: list, get, and stop.
type SessionAPIHandler struct {
	sup *session.Supervisor
}

// NewSessionAPIHandler creates a SessionAPIHandler over sup.
func NewSessionAPIHandler(sup *session.Supervisor) *SessionAPIHandler {
	return &SessionAPIHandler{sup: sup}
}

// Register mounts the /api/sessions routes onto r.
func (h *SessionAPIHandler) Register(r chi.Router) {
	r.Get("/api/sessions", h.List)
	r.Get("/api/sessions/{name}", h.Get)
	r.Post("/api/sessions/{name}/stop", h.Stop)
}

func (h *SessionAPIHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sup.List())
}

func (h *SessionAPIHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	st, err := h.sup.Status(name)
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *SessionAPIHandler) Stop(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := h.sup.Stop(name); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func writeSessionError(w http.ResponseWriter, err error) {
	if errors.Is(err, session.ErrSessionNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
