// Package razorpay integrates the Razorpay Orders API and its signatures.
package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/utafrali/glowskin/internal/config"
	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/payment"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/httpclient"
)

const serviceName = "razorpay"

// Client creates Razorpay orders and verifies Razorpay signatures.
type Client struct {
	http   httpclient.Doer
	cfg    config.RazorpayConfig
	logger *slog.Logger
}

// NewClient creates a Razorpay client.
func NewClient(cfg config.RazorpayConfig, doer httpclient.Doer, logger *slog.Logger) *Client {
	return &Client{http: doer, cfg: cfg, logger: logger}
}

// Name implements payment.Gateway.
func (c *Client) Name() string { return domain.PaymentRazorpay }

type orderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// CreateOrder creates a Razorpay order for the order total. Razorpay takes
// amounts in paise.
func (c *Client) CreateOrder(ctx context.Context, o *domain.Order) (*payment.Checkout, error) {
	currency := o.Currency
	if currency == "" {
		currency = "INR"
	}

	var resp orderResponse
	err := httpclient.DoJSON(ctx, c.http, httpclient.Request{
		Method: http.MethodPost,
		URL:    c.cfg.BaseURL + "/v1/orders",
		Header: c.authHeader(),
		Body: orderRequest{
			Amount:   o.Total,
			Currency: currency,
			Receipt:  o.OrderNumber,
			Notes:    map[string]string{"order_id": o.ID, "order_number": o.OrderNumber},
		},
		Service: serviceName,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("create razorpay order: %w", err)
	}
	if resp.ID == "" {
		return nil, apperrors.ServiceUnavailable("razorpay returned no order id")
	}

	c.logger.InfoContext(ctx, "razorpay order created",
		slog.String("order_id", o.ID),
		slog.String("razorpay_order_id", resp.ID),
	)

	return &payment.Checkout{
		Gateway:        domain.PaymentRazorpay,
		GatewayOrderID: resp.ID,
		KeyID:          c.cfg.KeyID,
		Amount:         resp.Amount,
		Currency:       resp.Currency,
	}, nil
}

func (c *Client) authHeader() http.Header {
	creds := base64.StdEncoding.EncodeToString([]byte(c.cfg.KeyID + ":" + c.cfg.KeySecret))
	return http.Header{"Authorization": []string{"Basic " + creds}}
}

// Verify checks the checkout handler signature. It never calls Razorpay.
func (c *Client) Verify(_ context.Context, o *domain.Order, in payment.VerifyInput) (*payment.Result, error) {
	if in.GatewayOrderID == "" || in.PaymentID == "" || in.Signature == "" {
		return nil, apperrors.InvalidInput("razorpay_order_id, razorpay_payment_id and razorpay_signature are required")
	}
	if o.Payment.GatewayOrderID != "" && in.GatewayOrderID != o.Payment.GatewayOrderID {
		return nil, apperrors.InvalidInput("razorpay order does not belong to this order")
	}
	if !c.VerifyPaymentSignature(in.GatewayOrderID, in.PaymentID, in.Signature) {
		return &payment.Result{Reason: "invalid payment signature"}, nil
	}
	return &payment.Result{Paid: true, PaymentID: in.PaymentID, Signature: in.Signature}, nil
}

// VerifyPaymentSignature checks hex HMAC-SHA256(order_id|payment_id) keyed
// with the key secret.
func (c *Client) VerifyPaymentSignature(orderID, paymentID, signature string) bool {
	return verify(c.cfg.KeySecret, []byte(orderID+"|"+paymentID), signature)
}

// VerifyWebhook checks X-Razorpay-Signature against the raw body.
func (c *Client) VerifyWebhook(body []byte, signature string) bool {
	return verify(c.cfg.WebhookSecret, body, signature)
}

// Sign computes the hex HMAC-SHA256 Razorpay uses for both signatures.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func verify(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}
