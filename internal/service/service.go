// Package service implements the storefront business logic on top of the
// repository ports and the provider clients.
package service

import (
	"context"
	"log/slog"
	"time"
)

// EventPublisher publishes domain events. event.Producer satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, eventType, aggregateID, aggregateType string, data any) error
}

// Aggregate types carried on published events.
const (
	aggregateOrder   = "order"
	aggregateProduct = "product"
	aggregateReview  = "review"
)

// publish sends an event and logs failures. Publishing never fails the
// operation that produced the event.
func publish(ctx context.Context, p EventPublisher, logger *slog.Logger, eventType, aggregateID, aggregateType string, data any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, eventType, aggregateID, aggregateType, data); err != nil {
		logger.ErrorContext(ctx, "failed to publish "+eventType+" event",
			slog.String("aggregate_id", aggregateID),
			slog.String("error", err.Error()),
		)
	}
}

// utcNow is the default clock of every service.
func utcNow() time.Time { return time.Now().UTC() }
