// Package events publishes committed ledger events from the outbox to RabbitMQ.
package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends an already encoded JSON event to an exchange
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body []byte) error
	Close() error
}

// RabbitPublisher publishes persistent messages to durable topic exchanges
type RabbitPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	declared map[string]bool
}

// SanitizeAMQPURL trims quotes and whitespace and checks the scheme
func SanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if !strings.HasSuffix(clean, "/") {
		clean += "/"
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// DialRabbit connects to the broker at amqpURL
func DialRabbit(amqpURL string) (*RabbitPublisher, error) {
	cleanURL, err := SanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.Dial(cleanURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}

	return &RabbitPublisher{
		conn:     conn,
		channel:  channel,
		declared: make(map[string]bool),
	}, nil
}

// Publish declares the exchange on first use and publishes body
func (p *RabbitPublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	if !p.declared[exchange] {
		err := p.channel.ExchangeDeclare(
			exchange, // name
			"topic",  // type
			true,     // durable
			false,    // auto-deleted
			false,    // internal
			false,    // no-wait
			nil,      // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
		}
		p.declared[exchange] = true
	}

	err := p.channel.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", exchange, err)
	}

	return nil
}

// Close closes the channel and connection
func (p *RabbitPublisher) Close() error {
	var errs []error
	if p.channel != nil {
		errs = append(errs, p.channel.Close())
	}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}

// LogPublisher writes events to the log. It stands in for the broker when no
// RabbitMQ URL is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs the event
func (p *LogPublisher) Publish(_ context.Context, exchange, routingKey string, body []byte) error {
	p.logger.Info("ledger event",
		"exchange", exchange,
		"routing_key", routingKey,
		"payload", string(body),
	)
	return nil
}

// Close does nothing
func (p *LogPublisher) Close() error {
	return nil
}
