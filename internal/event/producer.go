// Package event publishes storefront domain events and routes consumed events
// to the services that react to them.
package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/glowskin/pkg/kafka"
	"github.com/utafrali/glowskin/pkg/logger"
)

// Source identifies events emitted by this process.
const Source = "glowskin-api"

// Aggregate types.
const (
	AggregateOrder   = "order"
	AggregateProduct = "product"
	AggregateReview  = "review"
)

// TopicFor maps an event type such as "order.created" to its topic.
func TopicFor(eventType string) string {
	return kafka.TopicPrefix + "." + eventType
}

// Producer builds envelopes and hands them to a kafka.Publisher, which is
// either the Kafka producer or the in-process LocalBus.
type Producer struct {
	pub    kafka.Publisher
	logger *slog.Logger
}

// NewProducer creates a Producer.
func NewProducer(pub kafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{pub: pub, logger: logger}
}

// Publish wraps data in an event envelope and publishes it on the topic of
// eventType. The request correlation id is carried along.
func (p *Producer) Publish(ctx context.Context, eventType, aggregateID, aggregateType string, data any) error {
	evt, err := kafka.NewEvent(eventType, aggregateID, aggregateType, Source, data)
	if err != nil {
		return err
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}
	if err := p.pub.Publish(ctx, TopicFor(eventType), evt); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	p.logger.DebugContext(ctx, "event published",
		slog.String("event_type", eventType),
		slog.String("event_id", evt.EventID),
		slog.String("aggregate_id", aggregateID),
	)
	return nil
}
