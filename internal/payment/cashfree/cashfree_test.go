package cashfree

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
	"github.com/utafrali/glowskin/pkg/httpclient"
)

func newTestClient(baseURL string) *Client {
	hc := httpclient.DefaultConfig()
	hc.MaxRetries = 0
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewClient(config.CashfreeConfig{
		AppID:      "app-id",
		SecretKey:  "cf-secret",
		APIVersion: "2023-08-01",
		BaseURL:    baseURL,
		ReturnURL:  "https://glowskin.in/order-confirmation?order_id={order_id}",
	}, httpclient.New(hc), logger)
}

func sampleOrder() *domain.Order {
	return &domain.Order{
		ID:          "ord-1",
		OrderNumber: "GS261014BBBBBB",
		UserID:      "3f2b8c1e-0000-4000-8000-000000000001",
		Customer:    domain.Customer{Name: "Asha", Email: "asha@example.com", Phone: "9876543210"},
		Total:       129950,
	}
}

func TestCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orders", r.URL.Path)
		assert.Equal(t, "app-id", r.Header.Get("x-client-id"))
		assert.Equal(t, "cf-secret", r.Header.Get("x-client-secret"))
		assert.Equal(t, "2023-08-01", r.Header.Get("x-api-version"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "GS261014BBBBBB", body["order_id"])
		assert.Equal(t, 1299.5, body["order_amount"])
		cust := body["customer_details"].(map[string]any)
		assert.Equal(t, "3f2b8c1e-0000-4000-8000-000000000001", cust["customer_id"])
		assert.Equal(t, "9876543210", cust["customer_phone"])

		_, _ = w.Write([]byte(`{"cf_order_id": 2149460581, "order_id": "GS261014BBBBBB",
			"order_amount": 1299.50, "order_status": "ACTIVE", "payment_session_id": "session_abc"}`))
	}))
	defer srv.Close()

	checkout, err := newTestClient(srv.URL).CreateOrder(context.Background(), sampleOrder())
	require.NoError(t, err)
	assert.Equal(t, "session_abc", checkout.PaymentSessionID)
	assert.Equal(t, "GS261014BBBBBB", checkout.GatewayOrderID)
	assert.Equal(t, int64(129950), checkout.Amount)
}

func TestCreateOrder_GuestCustomerID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body orderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "guest_GS261014BBBBBB", body.CustomerDetails.CustomerID)
		_, _ = w.Write([]byte(`{"order_id": "GS261014BBBBBB", "payment_session_id": "s"}`))
	}))
	defer srv.Close()

	o := sampleOrder()
	o.UserID = ""
	_, err := newTestClient(srv.URL).CreateOrder(context.Background(), o)
	require.NoError(t, err)
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name     string
		response string
		paid     bool
		pending  bool
	}{
		{"paid", `{"cf_order_id": 1, "order_id": "GS261014BBBBBB", "order_amount": 1299.50, "order_status": "PAID"}`, true, false},
		{"active", `{"order_id": "GS261014BBBBBB", "order_amount": 1299.50, "order_status": "ACTIVE"}`, false, true},
		{"expired", `{"order_id": "GS261014BBBBBB", "order_amount": 1299.50, "order_status": "EXPIRED"}`, false, false},
		{"amount mismatch", `{"order_id": "GS261014BBBBBB", "order_amount": 1.00, "order_status": "PAID"}`, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/orders/GS261014BBBBBB", r.URL.Path)
				_, _ = w.Write([]byte(tt.response))
			}))
			defer srv.Close()

			res, err := newTestClient(srv.URL).Verify(context.Background(), sampleOrder(), payment.VerifyInput{})
			require.NoError(t, err)
			assert.Equal(t, tt.paid, res.Paid)
			assert.Equal(t, tt.pending, res.Pending)
		})
	}
}

func TestVerifyWebhook(t *testing.T) {
	c := newTestClient("http://unused")
	body := []byte(`{"type":"PAYMENT_SUCCESS_WEBHOOK"}`)
	sig := Sign("cf-secret", "1760000000", body)

	assert.True(t, c.VerifyWebhook("1760000000", body, sig))
	assert.False(t, c.VerifyWebhook("1760000001", body, sig))
	assert.False(t, c.VerifyWebhook("", body, sig))
	assert.False(t, c.VerifyWebhook("1760000000", []byte(`{}`), sig))
}
