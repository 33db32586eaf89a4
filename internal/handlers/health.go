package handlers

import (
	"context"
	"net/http"
	"time"
)

const healthCheckTimeout = 2 * time.Second

// HealthStatus is reported by GET /health
type HealthStatus string

const (
	Healthy   HealthStatus = "healthy"
	Unhealthy HealthStatus = "unhealthy"
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status HealthStatus `json:"status"`
}

// GetHealth handles GET /health
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	pingCtx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.healthChecker.PingContext(pingCtx); err != nil {
		h.logger.Error("health check failed: database unreachable", "error", err)
		h.writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: Unhealthy})
		return
	}

	h.writeJSON(w, http.StatusOK, HealthResponse{Status: Healthy})
}
