package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nullshard/hlspackager/pkg/httpclient"
)

// PushStatusHandler exposes the circuit breaker state of every registered
// HTTP push destination, for operators diagnosing a stalled or degraded
// delivery target.
type PushStatusHandler struct {
	registry *httpclient.Registry
}

// NewPushStatusHandler creates a PushStatusHandler over registry
// (httpclient.DefaultRegistry if nil).
func NewPushStatusHandler(registry *httpclient.Registry) *PushStatusHandler {
	if registry == nil {
		registry = httpclient.DefaultRegistry
	}
	return &PushStatusHandler{registry: registry}
}

// Register mounts /api/push/circuits onto r.
func (h *PushStatusHandler) Register(r chi.Router) {
	r.Get("/api/push/circuits", h.List)
}

func (h *PushStatusHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.GetCircuitBreakerStatuses())
}
