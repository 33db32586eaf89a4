package models

import "time"

// OutboxStatus is the delivery state of an outbox event
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "pending"
	OutboxStatusProcessing OutboxStatus = "processing"
	OutboxStatusPublished  OutboxStatus = "published"
)

// OutboxEvent is a ledger event waiting to be published to the broker
type OutboxEvent struct {
	CreatedAt  time.Time    `db:"created_at"`
	Exchange   string       `db:"exchange"`
	RoutingKey string       `db:"routing_key"`
	Status     OutboxStatus `db:"status"`
	Payload    []byte       `db:"payload"`
	Attempts   int          `db:"attempts"`
	ID         int64        `db:"id"`
}
