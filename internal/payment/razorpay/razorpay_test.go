package razorpay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/glowskin/internal/config"
	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/payment"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/httpclient"
)

func newTestClient(baseURL string) *Client {
	hc := httpclient.DefaultConfig()
	hc.MaxRetries = 0
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewClient(config.RazorpayConfig{
		KeyID:         "rzp_test_key",
		KeySecret:     "key_secret",
		WebhookSecret: "wh_secret",
		BaseURL:       baseURL,
	}, httpclient.New(hc), logger)
}

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "rzp_test_key", user)
		assert.Equal(t, "key_secret", pass)

		var body orderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(54800), body.Amount)
		assert.Equal(t, "INR", body.Currency)
		assert.Equal(t, "GS261014AAAAAA", body.Receipt)
		assert.Equal(t, "ord-1", body.Notes["order_id"])

		_, _ = w.Write([]byte(`{"id":"order_RZP1","amount":54800,"currency":"INR","status":"created"}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	checkout, err := c.CreateOrder(context.Background(), &domain.Order{
		ID:          "ord-1",
		OrderNumber: "GS261014AAAAAA",
		Total:       54800,
	})
	require.NoError(t, err)
	assert.Equal(t, "order_RZP1", checkout.GatewayOrderID)
	assert.Equal(t, "rzp_test_key", checkout.KeyID)
	assert.Equal(t, domain.PaymentRazorpay, checkout.Gateway)
	assert.Equal(t, int64(54800), checkout.Amount)
}

func TestCreateOrder_GatewayRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount must be atleast INR 1.00"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).CreateOrder(context.Background(), &domain.Order{ID: "o", Total: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "amount must be atleast")
}

func TestVerify(t *testing.T) {
	c := newTestClient("http://unused")
	order := &domain.Order{Payment: domain.Payment{GatewayOrderID: "order_RZP1"}}
	sig := Sign("key_secret", []byte("order_RZP1|pay_1"))

	res, err := c.Verify(context.Background(), order, payment.VerifyInput{
		GatewayOrderID: "order_RZP1", PaymentID: "pay_1", Signature: sig,
	})
	require.NoError(t, err)
	assert.True(t, res.Paid)
	assert.Equal(t, "pay_1", res.PaymentID)

	res, err = c.Verify(context.Background(), order, payment.VerifyInput{
		GatewayOrderID: "order_RZP1", PaymentID: "pay_1", Signature: "forged",
	})
	require.NoError(t, err)
	assert.False(t, res.Paid)
	assert.Equal(t, "invalid payment signature", res.Reason)
}

func TestVerify_OrderMismatch(t *testing.T) {
	c := newTestClient("http://unused")
	order := &domain.Order{Payment: domain.Payment{GatewayOrderID: "order_RZP1"}}

	_, err := c.Verify(context.Background(), order, payment.VerifyInput{
		GatewayOrderID: "order_OTHER", PaymentID: "pay_1", Signature: "x",
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestVerifyWebhook(t *testing.T) {
	c := newTestClient("http://unused")
	body := []byte(`{"event":"payment.captured"}`)

	assert.True(t, c.VerifyWebhook(body, Sign("wh_secret", body)))
	assert.False(t, c.VerifyWebhook(body, Sign("key_secret", body)))
	assert.False(t, c.VerifyWebhook(body, ""))
}

func TestWebhookPayload_GatewayOrderID(t *testing.T) {
	var p WebhookPayload
	require.NoError(t, json.Unmarshal([]byte(`{
		"event": "order.paid",
		"payload": {"order": {"entity": {"id": "order_RZP9", "receipt": "GS1"}}}
	}`), &p))
	assert.Equal(t, "order_RZP9", p.GatewayOrderID())

	require.NoError(t, json.Unmarshal([]byte(`{
		"event": "payment.captured",
		"payload": {"payment": {"entity": {"id": "pay_1", "order_id": "order_RZP2"}}}
	}`), &p))
	assert.Equal(t, "order_RZP2", p.GatewayOrderID())
}
