// Package payment defines the online payment gateway contract shared by the
// Razorpay and Cashfree integrations.
package payment

import (
	"context"

	"github.com/utafrali/glowskin/internal/domain"
)

// Checkout is returned to the client so it can open the gateway's checkout.
type Checkout struct {
	Gateway          string `json:"gateway"`
	GatewayOrderID   string `json:"gateway_order_id"`
	PaymentSessionID string `json:"payment_session_id,omitempty"`
	KeyID            string `json:"key_id,omitempty"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
}

// VerifyInput carries what the client received from the gateway checkout.
type VerifyInput struct {
	GatewayOrderID string `json:"razorpay_order_id"`
	PaymentID      string `json:"razorpay_payment_id"`
	Signature      string `json:"razorpay_signature"`
}

// Result is the outcome of a payment verification.
type Result struct {
	Paid      bool
	Pending   bool
	PaymentID string
	Signature string
	Reason    string
}

// Gateway is an online payment provider.
type Gateway interface {
	// Name returns the payment method the gateway serves.
	Name() string

	// CreateOrder registers the order with the gateway and returns the
	// checkout payload.
	CreateOrder(ctx context.Context, order *domain.Order) (*Checkout, error)

	// Verify confirms a checkout callback for order.
	Verify(ctx context.Context, order *domain.Order, in VerifyInput) (*Result, error)
}

// Registry resolves gateways by payment method.
type Registry map[string]Gateway

// NewRegistry indexes gateways by name, skipping nil entries.
func NewRegistry(gateways ...Gateway) Registry {
	r := Registry{}
	for _, g := range gateways {
		if g != nil {
			r[g.Name()] = g
		}
	}
	return r
}

// Get returns the gateway for method.
func (r Registry) Get(method string) (Gateway, bool) {
	g, ok := r[method]
	return g, ok
}
