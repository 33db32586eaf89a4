package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/benx421/bank-ledger/internal/db"
	"github.com/benx421/bank-ledger/internal/models"
)

const maxOutboxErrorLength = 2000

// OutboxRepository stores ledger events until they are published
type OutboxRepository interface {
	Enqueue(ctx context.Context, exchange, routingKey string, payload any) error
	Claim(ctx context.Context, limit int, staleAfter time.Duration) ([]models.OutboxEvent, error)
	MarkPublished(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, retryAfter time.Duration, reason string) error
}

type outboxRepository struct {
	db db.DBTX
}

// NewOutboxRepository creates a new OutboxRepository
func NewOutboxRepository(database db.DBTX) OutboxRepository {
	return &outboxRepository{db: database}
}

// Enqueue inserts an event. Call it on the transaction that makes the change
// the event describes.
func (r *outboxRepository) Enqueue(ctx context.Context, exchange, routingKey string, payload any) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO event_outbox (exchange, routing_key, payload)
		VALUES ($1, $2, $3::jsonb)
	`, strings.TrimSpace(exchange), strings.TrimSpace(routingKey), string(blob))
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}

	return nil
}

// Claim marks up to limit due events as processing and returns them. Events
// stuck in processing for longer than staleAfter are reclaimed.
func (r *outboxRepository) Claim(ctx context.Context, limit int, staleAfter time.Duration) ([]models.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if staleAfter <= 0 {
		staleAfter = 2 * time.Minute
	}

	query := `
		WITH candidates AS (
			SELECT id
			FROM event_outbox
			WHERE (
				(status = 'pending' AND next_attempt_at <= NOW())
				OR (status = 'processing' AND processing_started_at < NOW() - ($2 * INTERVAL '1 second'))
			)
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE event_outbox AS o
		SET status = 'processing',
		    processing_started_at = NOW(),
		    attempts = o.attempts + 1
		FROM candidates
		WHERE o.id = candidates.id
		RETURNING o.id, o.exchange, o.routing_key, o.payload::text, o.status, o.attempts, o.created_at
	`

	rows, err := r.db.QueryContext(ctx, query, limit, int(staleAfter.Seconds()))
	if err != nil {
		return nil, fmt.Errorf("failed to claim outbox events: %w", err)
	}
	defer rows.Close() //nolint:errcheck // rows.Err is checked below

	events := make([]models.OutboxEvent, 0, limit)
	for rows.Next() {
		var (
			event   models.OutboxEvent
			payload string
		)
		if err := rows.Scan(
			&event.ID,
			&event.Exchange,
			&event.RoutingKey,
			&payload,
			&event.Status,
			&event.Attempts,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		event.Payload = []byte(payload)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox events: %w", err)
	}

	return events, nil
}

// MarkPublished records a successful publish
func (r *outboxRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE event_outbox
		SET status = 'published',
		    published_at = NOW(),
		    processing_started_at = NULL,
		    last_error = NULL
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event published: %w", err)
	}
	return nil
}

// MarkFailed returns the event to pending and schedules the next attempt
func (r *outboxRepository) MarkFailed(ctx context.Context, id int64, retryAfter time.Duration, reason string) error {
	seconds := int(retryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	if len(reason) > maxOutboxErrorLength {
		reason = reason[:maxOutboxErrorLength]
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE event_outbox
		SET status = 'pending',
		    next_attempt_at = NOW() + ($2 * INTERVAL '1 second'),
		    processing_started_at = NULL,
		    last_error = $3
		WHERE id = $1
	`, id, seconds, reason)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event failed: %w", err)
	}
	return nil
}
