package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/notify"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
)

// --- Stub Sender ---

type stubSender struct {
	mu      sync.Mutex
	channel string
	fails   int
	err     error
	sent    []notify.Message
	calls   int
}

func (s *stubSender) Name() string { return s.channel }

func (s *stubSender) Send(_ context.Context, msg *notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= s.fails {
		if s.err != nil {
			return s.err
		}
		return errors.New("provider unavailable")
	}
	s.sent = append(s.sent, *msg)
	return nil
}

func newTestNotificationService(t *testing.T, log *mockNotificationRepository, orders *mockOrderRepository, senders ...notify.Sender) *NotificationService {
	t.Helper()
	renderer, err := notify.NewRenderer("GlowSkin", "https://glowskin.in")
	require.NoError(t, err)
	svc := NewNotificationService(log, orders, renderer, senders, time.Millisecond, newTestLogger())
	svc.now = fixedClock
	return svc
}

func expectLog(log *mockNotificationRepository) {
	log.On("Create", mock.Anything, mock.AnythingOfType("*domain.Notification")).Return(nil)
	log.On("Update", mock.Anything, mock.AnythingOfType("*domain.Notification")).Return(nil)
}

func TestTemplateFor(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		evt       domain.OrderEvent
		want      string
		ok        bool
	}{
		{"cod placed", domain.EventOrderCreated, domain.OrderEvent{PaymentMethod: domain.PaymentCOD}, domain.TemplateOrderPlaced, true},
		{"online created is silent", domain.EventOrderCreated, domain.OrderEvent{PaymentMethod: domain.PaymentRazorpay}, "", false},
		{"online confirmed", domain.EventOrderConfirmed, domain.OrderEvent{PaymentMethod: domain.PaymentRazorpay}, domain.TemplateOrderConfirmed, true},
		{"cod confirmed is silent", domain.EventOrderConfirmed, domain.OrderEvent{PaymentMethod: domain.PaymentCOD}, "", false},
		{"shipped", domain.EventOrderShipped, domain.OrderEvent{}, domain.TemplateOrderShipped, true},
		{"delivered", domain.EventOrderStatusChanged, domain.OrderEvent{Status: domain.OrderDelivered}, domain.TemplateOrderDelivered, true},
		{"cancelled", domain.EventOrderStatusChanged, domain.OrderEvent{Status: domain.OrderCancelled}, domain.TemplateOrderCancelled, true},
		{"processing is silent", domain.EventOrderStatusChanged, domain.OrderEvent{Status: domain.OrderProcessing}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := templateFor(tt.eventType, tt.evt)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNotifyOrderEvent_SendsBothChannels(t *testing.T) {
	log := new(mockNotificationRepository)
	orders := new(mockOrderRepository)
	email := &stubSender{channel: domain.ChannelEmail}
	whatsapp := &stubSender{channel: domain.ChannelWhatsApp}
	svc := newTestNotificationService(t, log, orders, email, whatsapp)

	order := testOrder("o1", domain.OrderPending, domain.PaymentCOD, domain.PaymentPending)
	orders.On("GetByID", mock.Anything, "o1").Return(order, nil)
	expectLog(log)

	err := svc.NotifyOrderEvent(context.Background(), domain.EventOrderCreated, domain.NewOrderEvent(order))
	require.NoError(t, err)

	require.Len(t, email.sent, 1)
	assert.Equal(t, "asha@example.com", email.sent[0].To)
	assert.Contains(t, email.sent[0].Subject, order.OrderNumber)
	require.Len(t, whatsapp.sent, 1)
	assert.Equal(t, "9876543210", whatsapp.sent[0].To)

	log.AssertNumberOfCalls(t, "Create", 2)
	for _, call := range log.Calls {
		if call.Method != "Update" {
			continue
		}
		n := call.Arguments.Get(1).(*domain.Notification)
		assert.Equal(t, domain.NotificationSent, n.Status)
		assert.Equal(t, 1, n.Attempts)
		assert.NotNil(t, n.SentAt)
	}
}

func TestNotifyOrderEvent_RetriesThenSucceeds(t *testing.T) {
	log := new(mockNotificationRepository)
	orders := new(mockOrderRepository)
	email := &stubSender{channel: domain.ChannelEmail, fails: 2}
	svc := newTestNotificationService(t, log, orders, email)

	order := testOrder("o1", domain.OrderShipped, domain.PaymentCOD, domain.PaymentPending)
	orders.On("GetByID", mock.Anything, "o1").Return(order, nil)
	expectLog(log)

	require.NoError(t, svc.NotifyOrderEvent(context.Background(), domain.EventOrderShipped, domain.NewOrderEvent(order)))

	assert.Equal(t, 3, email.calls)
	n := log.Calls[len(log.Calls)-1].Arguments.Get(1).(*domain.Notification)
	assert.Equal(t, domain.NotificationSent, n.Status)
	assert.Equal(t, 3, n.Attempts)
}

func TestNotifyOrderEvent_GivesUpAfterMaxAttempts(t *testing.T) {
	log := new(mockNotificationRepository)
	orders := new(mockOrderRepository)
	email := &stubSender{channel: domain.ChannelEmail, fails: 10}
	svc := newTestNotificationService(t, log, orders, email)

	order := testOrder("o1", domain.OrderDelivered, domain.PaymentCOD, domain.PaymentPaid)
	orders.On("GetByID", mock.Anything, "o1").Return(order, nil)
	expectLog(log)

	evt := domain.NewOrderEvent(order)
	require.NoError(t, svc.NotifyOrderEvent(context.Background(), domain.EventOrderStatusChanged, evt))

	assert.Equal(t, domain.MaxNotificationAttempts, email.calls)
	n := log.Calls[len(log.Calls)-1].Arguments.Get(1).(*domain.Notification)
	assert.Equal(t, domain.NotificationFailed, n.Status)
	assert.Equal(t, "provider unavailable", n.LastError)
}

func TestNotifyOrderEvent_DisabledChannelNotRetried(t *testing.T) {
	log := new(mockNotificationRepository)
	orders := new(mockOrderRepository)
	email := &stubSender{channel: domain.ChannelEmail, fails: 10, err: notify.ErrDisabled}
	svc := newTestNotificationService(t, log, orders, email)

	order := testOrder("o1", domain.OrderShipped, domain.PaymentCOD, domain.PaymentPending)
	orders.On("GetByID", mock.Anything, "o1").Return(order, nil)
	expectLog(log)

	require.NoError(t, svc.NotifyOrderEvent(context.Background(), domain.EventOrderShipped, domain.NewOrderEvent(order)))
	assert.Equal(t, 1, email.calls)
}

func TestNotifyOrderEvent_IgnoredEvent(t *testing.T) {
	log := new(mockNotificationRepository)
	orders := new(mockOrderRepository)
	svc := newTestNotificationService(t, log, orders, &stubSender{channel: domain.ChannelEmail})

	evt := domain.OrderEvent{OrderID: "o1", Status: domain.OrderProcessing}
	require.NoError(t, svc.NotifyOrderEvent(context.Background(), domain.EventOrderStatusChanged, evt))
	orders.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestNotifyOrderEvent_MissingOrder(t *testing.T) {
	log := new(mockNotificationRepository)
	orders := new(mockOrderRepository)
	svc := newTestNotificationService(t, log, orders, &stubSender{channel: domain.ChannelEmail})

	orders.On("GetByID", mock.Anything, "gone").Return(nil, apperrors.NotFound("order", "gone"))

	err := svc.NotifyOrderEvent(context.Background(), domain.EventOrderShipped, domain.OrderEvent{OrderID: "gone"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestSendPasswordReset(t *testing.T) {
	log := new(mockNotificationRepository)
	email := &stubSender{channel: domain.ChannelEmail}
	svc := newTestNotificationService(t, log, new(mockOrderRepository), email)
	expectLog(log)

	user := &domain.User{ID: "user-1", Name: "Asha", Email: "asha@example.com"}
	require.NoError(t, svc.SendPasswordReset(context.Background(), user, "https://glowskin.in/reset-password?token=abc"))
	require.Len(t, email.sent, 1)
	assert.Contains(t, email.sent[0].Text, "https://glowskin.in/reset-password?token=abc")
}

func TestSendPasswordReset_NoEmailChannel(t *testing.T) {
	svc := newTestNotificationService(t, new(mockNotificationRepository), new(mockOrderRepository))

	user := &domain.User{ID: "user-1", Name: "Asha", Email: "asha@example.com"}
	err := svc.SendPasswordReset(context.Background(), user, "https://glowskin.in/reset-password?token=abc")
	require.Error(t, err)
}
