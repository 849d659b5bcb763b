package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/pkg/kafka"
)

// Consumer groups.
const (
	GroupNotifications = "notifications"
	GroupShipments     = "shipments"
)

// OrderNotifier sends customer notifications for order events.
type OrderNotifier interface {
	NotifyOrderEvent(ctx context.Context, eventType string, evt domain.OrderEvent) error
}

// ShipmentBooker books a courier for a confirmed order.
type ShipmentBooker interface {
	BookShipment(ctx context.Context, orderID string) error
}

// Subscription binds a consumer group to its topics and handler.
type Subscription struct {
	Group   string
	Topics  []string
	Handler kafka.Handler
}

// NotificationHandler decodes order events and forwards them to n.
func NotificationHandler(n OrderNotifier, logger *slog.Logger) kafka.Handler {
	return func(ctx context.Context, evt *kafka.Event) error {
		var payload domain.OrderEvent
		if err := evt.UnmarshalData(&payload); err != nil {
			logger.ErrorContext(ctx, "dropping malformed order event",
				slog.String("event_id", evt.EventID),
				slog.String("event_type", evt.EventType),
				slog.String("error", err.Error()),
			)
			return nil
		}
		if err := n.NotifyOrderEvent(ctx, evt.EventType, payload); err != nil {
			return fmt.Errorf("notify %s for order %s: %w", evt.EventType, payload.OrderID, err)
		}
		return nil
	}
}

// ShipmentHandler books a shipment for every confirmed order.
func ShipmentHandler(b ShipmentBooker, logger *slog.Logger) kafka.Handler {
	return func(ctx context.Context, evt *kafka.Event) error {
		if evt.EventType != domain.EventOrderConfirmed {
			return nil
		}
		orderID := evt.AggregateID
		if orderID == "" {
			var payload domain.OrderEvent
			if err := evt.UnmarshalData(&payload); err != nil {
				logger.ErrorContext(ctx, "dropping malformed order.confirmed event",
					slog.String("event_id", evt.EventID),
					slog.String("error", err.Error()),
				)
				return nil
			}
			orderID = payload.OrderID
		}
		if err := b.BookShipment(ctx, orderID); err != nil {
			return fmt.Errorf("book shipment for order %s: %w", orderID, err)
		}
		return nil
	}
}

// Subscriptions lists the consumers of this process. The shipment consumer
// is omitted when booker is nil.
func Subscriptions(n OrderNotifier, b ShipmentBooker, logger *slog.Logger) []Subscription {
	subs := []Subscription{{
		Group: GroupNotifications,
		Topics: []string{
			TopicFor(domain.EventOrderCreated),
			TopicFor(domain.EventOrderConfirmed),
			TopicFor(domain.EventOrderStatusChanged),
			TopicFor(domain.EventOrderShipped),
		},
		Handler: NotificationHandler(n, logger),
	}}
	if b != nil {
		subs = append(subs, Subscription{
			Group:   GroupShipments,
			Topics:  []string{TopicFor(domain.EventOrderConfirmed)},
			Handler: ShipmentHandler(b, logger),
		})
	}
	return subs
}

// SubscribeLocal wires subs into a LocalBus. When store is non-nil every
// handler is made idempotent per group.
func SubscribeLocal(bus *LocalBus, subs []Subscription, store kafka.IdempotencyStore, logger *slog.Logger) {
	for _, s := range subs {
		h := s.Handler
		if store != nil {
			h = kafka.IdempotentHandler(store, s.Group, h, logger)
		}
		for _, topic := range s.Topics {
			bus.Subscribe(topic, h)
		}
	}
}
