package domain

import "time"

// Notification channels.
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

// Notification delivery statuses.
const (
	NotificationPending = "pending"
	NotificationSent    = "sent"
	NotificationFailed  = "failed"
)

// Notification templates.
const (
	TemplateOrderPlaced    = "order_placed"
	TemplateOrderConfirmed = "order_confirmed"
	TemplateOrderShipped   = "order_shipped"
	TemplateOrderDelivered = "order_delivered"
	TemplateOrderCancelled = "order_cancelled"
	TemplatePasswordReset  = "password_reset"
)

// MaxNotificationAttempts bounds delivery attempts per notification.
const MaxNotificationAttempts = 3

// Notification is a persisted outbound message.
type Notification struct {
	ID        string     `json:"id"`
	OrderID   string     `json:"order_id,omitempty"`
	Channel   string     `json:"channel"`
	Recipient string     `json:"recipient"`
	Template  string     `json:"template"`
	Subject   string     `json:"subject,omitempty"`
	Status    string     `json:"status"`
	Attempts  int        `json:"attempts"`
	LastError string     `json:"last_error,omitempty"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}
