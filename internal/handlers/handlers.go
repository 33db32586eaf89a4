// Package handlers serves the ledger's operational HTTP endpoints.
package handlers

import (
	"log/slog"

	"github.com/benx421/bank-ledger/internal/service"
)

// Handler serves the ops endpoints
type Handler struct {
	healthChecker service.HealthChecker
	logger        *slog.Logger
}

// NewHandler creates a new handler
func NewHandler(healthChecker service.HealthChecker, logger *slog.Logger) *Handler {
	return &Handler{
		healthChecker: healthChecker,
		logger:        logger,
	}
}
