package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benx421/bank-ledger/internal/config"
	"github.com/benx421/bank-ledger/internal/db"
	"github.com/benx421/bank-ledger/internal/events"
	"github.com/benx421/bank-ledger/internal/handlers"
	"github.com/benx421/bank-ledger/internal/ledger"
	"github.com/benx421/bank-ledger/internal/repository"
	"github.com/benx421/bank-ledger/internal/service"
	"github.com/benx421/bank-ledger/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting ledger",
		"ops_port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()
	database, err := db.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	if cfg.Database.Migrate {
		if err := database.Migrate(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
	}

	opts := []ledger.Option{
		ledger.WithRetryPolicy(ledger.RetryPolicy{
			MaxRetries: cfg.Ledger.MaxRetries,
			BaseDelay:  cfg.Ledger.RetryBaseDelay,
		}),
	}
	if cfg.Outbox.Enabled {
		opts = append(opts, ledger.WithOutbox(cfg.Outbox.Exchange))
	}
	if cfg.Ledger.FaultRate > 0 {
		logger.Warn("fault injection enabled", "rate", cfg.Ledger.FaultRate)
		opts = append(opts, ledger.WithFaultInjector(ledger.RandomFaults(cfg.Ledger.FaultRate)))
	}
	store := ledger.NewPostgresStore(database, logger, opts...)

	dispatcher := events.NewDispatcher(
		repository.NewOutboxRepository(database),
		newPublisherDialer(cfg.Outbox.RabbitMQURL, logger),
		cfg.Outbox.BatchSize,
		cfg.Outbox.StaleAfter,
		logger,
	)
	defer dispatcher.Close()

	scheduler := worker.NewScheduler(logger)
	reconciler := service.NewReconciler(store, logger)
	if err := worker.RegisterJobs(scheduler, cfg, dispatcher, reconciler, logger); err != nil {
		logger.Error("failed to register jobs", "error", err)
		os.Exit(1)
	}
	scheduler.Start()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handlers.NewRouter(database, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("ops server listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("background jobs did not finish before shutdown")
	}

	logger.Info("ledger stopped")
}

// newPublisherDialer dials RabbitMQ, or logs events when no broker is configured
func newPublisherDialer(amqpURL string, logger *slog.Logger) events.Dialer {
	if amqpURL == "" {
		logger.Info("RABBITMQ_URL not set, ledger events will be logged")
		return func() (events.Publisher, error) {
			return events.NewLogPublisher(logger), nil
		}
	}
	return func() (events.Publisher, error) {
		return events.DialRabbit(amqpURL)
	}
}
