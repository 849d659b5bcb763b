package cashfree

import "encoding/json"

// Webhook types handled by the storefront.
const (
	EventPaymentSuccess     = "PAYMENT_SUCCESS_WEBHOOK"
	EventPaymentFailed      = "PAYMENT_FAILED_WEBHOOK"
	EventPaymentUserDropped = "PAYMENT_USER_DROPPED_WEBHOOK"
)

// WebhookPayload is the subset of a Cashfree payment webhook the storefront
// reads.
type WebhookPayload struct {
	Type      string `json:"type"`
	EventTime string `json:"event_time"`
	Data      struct {
		Order struct {
			OrderID     string      `json:"order_id"`
			OrderAmount json.Number `json:"order_amount"`
		} `json:"order"`
		Payment struct {
			CFPaymentID    json.Number `json:"cf_payment_id"`
			PaymentStatus  string      `json:"payment_status"`
			PaymentAmount  json.Number `json:"payment_amount"`
			PaymentMessage string      `json:"payment_message"`
		} `json:"payment"`
	} `json:"data"`
}
