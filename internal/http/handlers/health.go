// Package handlers provides the HTTP handlers for hlspackager's playlist,
// segment, and operational endpoints, routed from internal/http's chi
// router.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	version   string
	startTime time.Time
}

// NewHealthHandler creates a HealthHandler reporting version.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version, startTime: time.Now()}
}

type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "healthy",
		Version: h.version,
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
