// Package cashfree integrates the Cashfree PG orders API and webhooks.
package cashfree

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/utafrali/glowskin/internal/config"
	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/payment"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/httpclient"
	"github.com/utafrali/glowskin/pkg/money"
)

const serviceName = "cashfree"

// Cashfree order statuses.
const (
	OrderStatusActive     = "ACTIVE"
	OrderStatusPaid       = "PAID"
	OrderStatusExpired    = "EXPIRED"
	OrderStatusTerminated = "TERMINATED"
)

var customerIDUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// Client creates Cashfree orders and verifies webhook signatures.
type Client struct {
	http   httpclient.Doer
	cfg    config.CashfreeConfig
	logger *slog.Logger
}

// NewClient creates a Cashfree client.
func NewClient(cfg config.CashfreeConfig, doer httpclient.Doer, logger *slog.Logger) *Client {
	return &Client{http: doer, cfg: cfg, logger: logger}
}

// Name implements payment.Gateway.
func (c *Client) Name() string { return domain.PaymentCashfree }

type customerDetails struct {
	CustomerID    string `json:"customer_id"`
	CustomerName  string `json:"customer_name,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	CustomerPhone string `json:"customer_phone"`
}

type orderMeta struct {
	ReturnURL string `json:"return_url,omitempty"`
}

type orderRequest struct {
	OrderID         string            `json:"order_id"`
	OrderAmount     json.Number       `json:"order_amount"`
	OrderCurrency   string            `json:"order_currency"`
	CustomerDetails customerDetails   `json:"customer_details"`
	OrderMeta       orderMeta         `json:"order_meta"`
	OrderNote       string            `json:"order_note,omitempty"`
	OrderTags       map[string]string `json:"order_tags,omitempty"`
}

// Order is a Cashfree order as returned by create and fetch.
type Order struct {
	CFOrderID        json.Number `json:"cf_order_id"`
	OrderID          string      `json:"order_id"`
	OrderAmount      json.Number `json:"order_amount"`
	OrderCurrency    string      `json:"order_currency"`
	OrderStatus      string      `json:"order_status"`
	PaymentSessionID string      `json:"payment_session_id"`
}

// AmountPaise converts the rupee order amount.
func (o *Order) AmountPaise() (int64, error) {
	return money.ParsePaise(o.OrderAmount.String())
}

func (c *Client) headers() http.Header {
	h := http.Header{}
	h.Set("x-client-id", c.cfg.AppID)
	h.Set("x-client-secret", c.cfg.SecretKey)
	h.Set("x-api-version", c.cfg.APIVersion)
	return h
}

// CreateOrder creates a Cashfree order keyed by the order number and returns
// the payment session for the client checkout.
func (c *Client) CreateOrder(ctx context.Context, o *domain.Order) (*payment.Checkout, error) {
	currency := o.Currency
	if currency == "" {
		currency = "INR"
	}
	customerID := o.UserID
	if customerID == "" {
		customerID = "guest_" + o.OrderNumber
	}

	var resp Order
	err := httpclient.DoJSON(ctx, c.http, httpclient.Request{
		Method: http.MethodPost,
		URL:    c.cfg.BaseURL + "/orders",
		Header: c.headers(),
		Body: orderRequest{
			OrderID:       o.OrderNumber,
			OrderAmount:   money.Number(o.Total),
			OrderCurrency: currency,
			CustomerDetails: customerDetails{
				CustomerID:    customerIDUnsafe.ReplaceAllString(customerID, "_"),
				CustomerName:  o.Customer.Name,
				CustomerEmail: o.Customer.Email,
				CustomerPhone: o.Customer.Phone,
			},
			OrderMeta: orderMeta{ReturnURL: c.cfg.ReturnURL},
			OrderTags: map[string]string{"order_id": o.ID},
		},
		Service: serviceName,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("create cashfree order: %w", err)
	}
	if resp.PaymentSessionID == "" {
		return nil, apperrors.ServiceUnavailable("cashfree returned no payment session")
	}

	c.logger.InfoContext(ctx, "cashfree order created",
		slog.String("order_id", o.ID),
		slog.String("cf_order_id", resp.CFOrderID.String()),
	)

	return &payment.Checkout{
		Gateway:          domain.PaymentCashfree,
		GatewayOrderID:   resp.OrderID,
		PaymentSessionID: resp.PaymentSessionID,
		Amount:           o.Total,
		Currency:         currency,
	}, nil
}

// GetOrder fetches the order status from Cashfree.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	var resp Order
	err := httpclient.DoJSON(ctx, c.http, httpclient.Request{
		Method:  http.MethodGet,
		URL:     c.cfg.BaseURL + "/orders/" + url.PathEscape(orderID),
		Header:  c.headers(),
		Service: serviceName,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("get cashfree order: %w", err)
	}
	return &resp, nil
}

// Verify asks Cashfree for the order status; the browser callback carries no
// signature.
func (c *Client) Verify(ctx context.Context, o *domain.Order, _ payment.VerifyInput) (*payment.Result, error) {
	gatewayID := o.Payment.GatewayOrderID
	if gatewayID == "" {
		gatewayID = o.OrderNumber
	}
	cf, err := c.GetOrder(ctx, gatewayID)
	if err != nil {
		return nil, err
	}

	switch cf.OrderStatus {
	case OrderStatusPaid:
		paid, err := cf.AmountPaise()
		if err != nil {
			return nil, fmt.Errorf("cashfree order amount: %w", err)
		}
		if paid != o.Total {
			return &payment.Result{Reason: fmt.Sprintf("paid amount %d does not match order total %d", paid, o.Total)}, nil
		}
		return &payment.Result{Paid: true, PaymentID: cf.CFOrderID.String()}, nil
	case OrderStatusActive:
		return &payment.Result{Pending: true, Reason: "payment not completed"}, nil
	default:
		return &payment.Result{Reason: "cashfree order " + strings.ToLower(cf.OrderStatus)}, nil
	}
}

// VerifyWebhook checks x-webhook-signature: base64 HMAC-SHA256 of the
// timestamp followed by the raw body, keyed with the secret key.
func (c *Client) VerifyWebhook(timestamp string, body []byte, signature string) bool {
	if c.cfg.SecretKey == "" || signature == "" || timestamp == "" {
		return false
	}
	expected := Sign(c.cfg.SecretKey, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(strings.TrimSpace(signature)))
}

// Sign computes a Cashfree webhook signature.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
