package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/benx421/bank-ledger/internal/models"
	"github.com/benx421/bank-ledger/internal/repository"
)

const (
	defaultBatchSize  = 50
	defaultStaleAfter = 2 * time.Minute
	maxRetryDelay     = 5 * time.Minute
)

// Dialer opens a Publisher. It is called lazily and again after a publish fails.
type Dialer func() (Publisher, error)

// Dispatcher moves events from the outbox to the broker
type Dispatcher struct {
	repo       repository.OutboxRepository
	dial       Dialer
	publisher  Publisher
	logger     *slog.Logger
	batchSize  int
	staleAfter time.Duration
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(repo repository.OutboxRepository, dial Dialer, batchSize int, staleAfter time.Duration, logger *slog.Logger) *Dispatcher {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	return &Dispatcher{
		repo:       repo,
		dial:       dial,
		logger:     logger,
		batchSize:  batchSize,
		staleAfter: staleAfter,
	}
}

// FlushOnce publishes one batch of due events and returns how many were published
func (d *Dispatcher) FlushOnce(ctx context.Context) (int, error) {
	batch, err := d.repo.Claim(ctx, d.batchSize, d.staleAfter)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, event := range batch {
		if err := d.publish(ctx, event); err != nil {
			retryAfter := RetryDelay(event.Attempts)
			d.logger.Warn("failed to publish outbox event",
				"event_id", event.ID,
				"attempts", event.Attempts,
				"retry_after", retryAfter,
				"error", err,
			)
			if markErr := d.repo.MarkFailed(ctx, event.ID, retryAfter, err.Error()); markErr != nil {
				d.logger.Error("failed to reschedule outbox event", "event_id", event.ID, "error", markErr)
			}
			continue
		}
		if err := d.repo.MarkPublished(ctx, event.ID); err != nil {
			d.logger.Error("failed to mark outbox event published", "event_id", event.ID, "error", err)
			continue
		}
		published++
	}

	if published > 0 {
		d.logger.Debug("published outbox events", "count", published)
	}
	return published, nil
}

func (d *Dispatcher) publish(ctx context.Context, event models.OutboxEvent) error {
	if d.publisher == nil {
		publisher, err := d.dial()
		if err != nil {
			return err
		}
		d.publisher = publisher
	}

	if err := d.publisher.Publish(ctx, event.Exchange, event.RoutingKey, event.Payload); err != nil {
		d.Close()
		return err
	}
	return nil
}

// Close releases the current publisher
func (d *Dispatcher) Close() {
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			d.logger.Debug("failed to close publisher", "error", err)
		}
		d.publisher = nil
	}
}

// RetryDelay doubles with each attempt up to five minutes
func RetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		return time.Second
	}
	delay := time.Duration(1<<min(attempt, 9)) * time.Second
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}
