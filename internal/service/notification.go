package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/notify"
	"github.com/utafrali/glowskin/internal/repository"
)

const defaultNotificationBackoff = 2 * time.Second

// NotificationService renders and delivers customer notifications and keeps
// a log of every send.
type NotificationService struct {
	log      repository.NotificationRepository
	orders   repository.OrderRepository
	renderer *notify.Renderer
	senders  map[string]notify.Sender
	backoff  time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewNotificationService creates a new notification service. backoff is the
// wait before the second attempt and doubles after each failure.
func NewNotificationService(
	log repository.NotificationRepository,
	orders repository.OrderRepository,
	renderer *notify.Renderer,
	senders []notify.Sender,
	backoff time.Duration,
	logger *slog.Logger,
) *NotificationService {
	if backoff <= 0 {
		backoff = defaultNotificationBackoff
	}
	byName := make(map[string]notify.Sender, len(senders))
	for _, s := range senders {
		byName[s.Name()] = s
	}
	return &NotificationService{
		log:      log,
		orders:   orders,
		renderer: renderer,
		senders:  byName,
		backoff:  backoff,
		logger:   logger,
		now:      utcNow,
	}
}

// templateFor picks the customer template for an order event. COD orders
// are announced on creation, online orders once paid.
func templateFor(eventType string, evt domain.OrderEvent) (string, bool) {
	switch eventType {
	case domain.EventOrderCreated:
		if evt.PaymentMethod == domain.PaymentCOD {
			return domain.TemplateOrderPlaced, true
		}
	case domain.EventOrderConfirmed:
		if evt.PaymentMethod != domain.PaymentCOD {
			return domain.TemplateOrderConfirmed, true
		}
	case domain.EventOrderShipped:
		return domain.TemplateOrderShipped, true
	case domain.EventOrderStatusChanged:
		switch evt.Status {
		case domain.OrderDelivered:
			return domain.TemplateOrderDelivered, true
		case domain.OrderCancelled:
			return domain.TemplateOrderCancelled, true
		}
	}
	return "", false
}

// NotifyOrderEvent sends the customer notification for an order event over
// email and WhatsApp. Delivery failures are recorded, not returned; only a
// failure to load the order is returned so the event can be redelivered.
func (s *NotificationService) NotifyOrderEvent(ctx context.Context, eventType string, evt domain.OrderEvent) error {
	tmpl, ok := templateFor(eventType, evt)
	if !ok {
		return nil
	}
	order, err := s.orders.GetByID(ctx, evt.OrderID)
	if err != nil {
		return fmt.Errorf("get order for notification: %w", err)
	}

	data := notify.OrderData(order)
	data.Note = evt.Note
	msg, err := s.renderer.Render(tmpl, data)
	if err != nil {
		return fmt.Errorf("render %s: %w", tmpl, err)
	}

	s.deliver(ctx, order.ID, domain.ChannelEmail, order.Customer.Email, tmpl, msg)
	s.deliver(ctx, order.ID, domain.ChannelWhatsApp, order.Customer.Phone, tmpl, msg)
	return nil
}

// SendPasswordReset emails the reset link to user.
func (s *NotificationService) SendPasswordReset(ctx context.Context, user *domain.User, resetURL string) error {
	msg, err := s.renderer.Render(domain.TemplatePasswordReset, notify.Data{Name: user.Name, ResetURL: resetURL})
	if err != nil {
		return fmt.Errorf("render password reset: %w", err)
	}
	n := s.deliver(ctx, "", domain.ChannelEmail, user.Email, domain.TemplatePasswordReset, msg)
	if n == nil || n.Status != domain.NotificationSent {
		return errors.New("password reset email not delivered")
	}
	return nil
}

// deliver sends msg to recipient over channel with retries and records the
// outcome. It returns nil when the channel has no sender or recipient.
func (s *NotificationService) deliver(ctx context.Context, orderID, channel, recipient, tmpl string, msg *notify.Message) *domain.Notification {
	sender, ok := s.senders[channel]
	if !ok || recipient == "" {
		return nil
	}

	n := &domain.Notification{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		Channel:   channel,
		Recipient: recipient,
		Template:  tmpl,
		Subject:   msg.Subject,
		Status:    domain.NotificationPending,
		CreatedAt: s.now(),
	}
	if err := s.log.Create(ctx, n); err != nil {
		s.logger.ErrorContext(ctx, "failed to record notification",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}

	out := *msg
	out.To = recipient
	wait := s.backoff
	for n.Attempts < domain.MaxNotificationAttempts {
		n.Attempts++
		err := sender.Send(ctx, &out)
		if err == nil {
			now := s.now()
			n.Status = domain.NotificationSent
			n.SentAt = &now
			n.LastError = ""
			break
		}
		n.Status = domain.NotificationFailed
		n.LastError = err.Error()
		if errors.Is(err, notify.ErrDisabled) || n.Attempts >= domain.MaxNotificationAttempts {
			break
		}
		s.logger.WarnContext(ctx, "notification attempt failed",
			slog.String("channel", channel),
			slog.String("template", tmpl),
			slog.Int("attempt", n.Attempts),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			n.LastError = ctx.Err().Error()
			n.Attempts = domain.MaxNotificationAttempts
		case <-time.After(wait):
			wait *= 2
		}
	}

	if err := s.log.Update(ctx, n); err != nil {
		s.logger.ErrorContext(ctx, "failed to update notification",
			slog.String("notification_id", n.ID),
			slog.String("error", err.Error()),
		)
	}
	notificationOutcomes.WithLabelValues(channel, n.Status).Inc()
	if n.Status == domain.NotificationSent {
		s.logger.InfoContext(ctx, "notification sent",
			slog.String("channel", channel),
			slog.String("template", tmpl),
			slog.String("order_id", orderID),
		)
	} else {
		s.logger.ErrorContext(ctx, "notification failed",
			slog.String("channel", channel),
			slog.String("template", tmpl),
			slog.String("order_id", orderID),
			slog.String("error", n.LastError),
		)
	}
	return n
}

// OrderNotifications returns the notification log of an order.
func (s *NotificationService) OrderNotifications(ctx context.Context, orderID string) ([]domain.Notification, error) {
	list, err := s.log.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order notifications: %w", err)
	}
	return list, nil
}
