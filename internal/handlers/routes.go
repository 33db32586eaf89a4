package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/benx421/bank-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates the ops router
func NewRouter(healthChecker service.HealthChecker, logger *slog.Logger) http.Handler {
	handler := NewHandler(healthChecker, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", handler.GetHealth)

	return r
}
