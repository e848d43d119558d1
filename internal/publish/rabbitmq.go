// Package publish forwards enriched listing events to RabbitMQ for
// downstream consumers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"adwatcher/internal/scan"
)

// Config holds broker connectivity and topology.
type Config struct {
	URL        string
	Exchange   string
	RoutingKey string
	Queue      string
}

// RabbitMQ publishes listing messages on a durable direct exchange.
type RabbitMQ struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	logger     zerolog.Logger
}

// NewRabbitMQ dials the broker and declares the exchange, queue, and binding.
func NewRabbitMQ(cfg Config, logger zerolog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	log := logger.With().Str("component", "publisher").Logger()
	log.Info().
		Str("exchange", cfg.Exchange).
		Str("queue", q.Name).
		Str("routing_key", cfg.RoutingKey).
		Msg("connected to rabbitmq")

	return &RabbitMQ{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     log,
	}, nil
}

// ListingMessage is the wire envelope for one enriched observation.
type ListingMessage struct {
	Verdict   string        `json:"verdict"`
	Listing   scan.Enriched `json:"listing"`
	Timestamp time.Time     `json:"timestamp"`
}

// Publish sends one enriched record. Messages are persistent; delivery beyond
// the broker is the consumer's problem.
func (r *RabbitMQ) Publish(ctx context.Context, enriched *scan.Enriched) error {
	msg := ListingMessage{
		Verdict:   string(enriched.Verdict),
		Listing:   *enriched,
		Timestamp: time.Now().UTC(),
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		r.routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	r.logger.Debug().
		Str("key", enriched.Record.Key).
		Str("verdict", string(enriched.Verdict)).
		Msg("published listing")

	return nil
}

// Close tears down the channel and connection.
func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
