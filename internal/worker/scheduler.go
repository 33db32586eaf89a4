// Package worker runs the ledger's background jobs on cron schedules.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is one run of a background job
type JobFunc func(ctx context.Context) error

// Scheduler runs registered jobs. A job that is still running when its next
// tick fires is skipped for that tick.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a scheduler. Jobs see a context that is canceled by Stop.
func NewScheduler(logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   c,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register schedules fn under name. Each run is bounded by timeout when it is positive.
func (s *Scheduler) Register(name, schedule string, timeout time.Duration, fn JobFunc) error {
	_, err := s.cron.AddFunc(schedule, func() {
		ctx := s.ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		start := time.Now()
		if err := fn(ctx); err != nil {
			s.logger.Error("job failed", "job", name, "error", err)
			return
		}
		s.logger.Debug("job finished", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("failed to schedule %s job: %w", name, err)
	}

	s.logger.Info("scheduled job", "job", name, "schedule", schedule)
	return nil
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and returns a context that is done once they return
func (s *Scheduler) Stop() context.Context {
	s.cancel()
	return s.cron.Stop()
}
