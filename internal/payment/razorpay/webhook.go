package razorpay

// Webhook events handled by the storefront.
const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventOrderPaid       = "order.paid"
)

// WebhookPayload is the subset of a Razorpay webhook body the storefront reads.
type WebhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity PaymentEntity `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID      string `json:"id"`
				Receipt string `json:"receipt"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
	CreatedAt int64 `json:"created_at"`
}

// PaymentEntity is a Razorpay payment object.
type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Method           string `json:"method"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

// GatewayOrderID returns the Razorpay order the event refers to.
func (p *WebhookPayload) GatewayOrderID() string {
	if id := p.Payload.Payment.Entity.OrderID; id != "" {
		return id
	}
	return p.Payload.Order.Entity.ID
}
