package shiprocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/glowskin/internal/config"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/httpclient"
)

type memTokens struct {
	mu     sync.Mutex
	tokens map[string]string
	ttl    time.Duration
}

func newMemTokens() *memTokens { return &memTokens{tokens: map[string]string{}} }

func (m *memTokens) Get(_ context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[name], nil
}

func (m *memTokens) Set(_ context.Context, name, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[name] = token
	m.ttl = ttl
	return nil
}

func (m *memTokens) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, name)
	return nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeShiprocket issues "tok-N" on each login and accepts only the latest.
type fakeShiprocket struct {
	t       *testing.T
	logins  atomic.Int32
	current atomic.Value
	mux     *http.ServeMux
}

func newFakeShiprocket(t *testing.T) (*fakeShiprocket, *httptest.Server) {
	f := &fakeShiprocket{t: t, mux: http.NewServeMux()}
	f.current.Store("")
	f.mux.HandleFunc("/v1/external/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ops@glowskin.in", body.Email)
		n := f.logins.Add(1)
		tok := "tok-" + string(rune('0'+n))
		f.current.Store(tok)
		_ = json.NewEncoder(w).Encode(map[string]string{"token": tok})
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/external/auth/login" {
			if r.Header.Get("Authorization") != "Bearer "+f.current.Load().(string) {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"message":"Token has expired"}`))
				return
			}
		}
		f.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func newTestClient(t *testing.T, baseURL string, tokens *memTokens) *Client {
	t.Helper()
	cfg := config.ShiprocketConfig{
		Email:          "ops@glowskin.in",
		Password:       "secret",
		BaseURL:        baseURL,
		PickupLocation: "Primary",
		PickupPincode:  "110001",
		TokenTTL:       216 * time.Hour,
	}
	hc := httpclient.DefaultConfig()
	hc.MaxRetries = 0
	return NewClient(cfg, httpclient.New(hc), tokens, newTestLogger())
}

func TestClient_LoginCachesToken(t *testing.T) {
	f, srv := newFakeShiprocket(t)
	f.mux.HandleFunc("/v1/external/orders/cancel", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	})
	tokens := newMemTokens()
	c := newTestClient(t, srv.URL, tokens)

	require.NoError(t, c.CancelOrder(context.Background(), 1))
	require.NoError(t, c.CancelOrder(context.Background(), 2))

	assert.Equal(t, int32(1), f.logins.Load())
	assert.Equal(t, "tok-1", tokens.tokens["shiprocket"])
	assert.Equal(t, 216*time.Hour, tokens.ttl)
}

func TestClient_RefreshesTokenOn401(t *testing.T) {
	f, srv := newFakeShiprocket(t)
	f.mux.HandleFunc("/v1/external/orders/cancel", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})
	tokens := newMemTokens()
	tokens.tokens["shiprocket"] = "stale"
	c := newTestClient(t, srv.URL, tokens)

	require.NoError(t, c.CancelOrder(context.Background(), 7))

	assert.Equal(t, int32(1), f.logins.Load())
	assert.Equal(t, "tok-1", tokens.tokens["shiprocket"])
}

func TestClient_CreateOrder(t *testing.T) {
	f, srv := newFakeShiprocket(t)
	f.mux.HandleFunc("/v1/external/orders/create/adhoc", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "GS261014ABC123", body["order_id"])
		assert.Equal(t, "Primary", body["pickup_location"])
		assert.Equal(t, 499.0, body["sub_total"])
		_, _ = w.Write([]byte(`{"order_id": 9001, "shipment_id": 7001, "status": "NEW", "status_code": 1}`))
	})
	c := newTestClient(t, srv.URL, newMemTokens())

	resp, err := c.CreateOrder(context.Background(), &CreateOrderRequest{
		OrderID:  "GS261014ABC123",
		SubTotal: json.Number("499.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9001), resp.OrderID)
	assert.Equal(t, int64(7001), resp.ShipmentID)
}

func TestClient_CreateOrder_MissingIDs(t *testing.T) {
	f, srv := newFakeShiprocket(t)
	f.mux.HandleFunc("/v1/external/orders/create/adhoc", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "invalid pickup location"}`))
	})
	c := newTestClient(t, srv.URL, newMemTokens())

	_, err := c.CreateOrder(context.Background(), &CreateOrderRequest{OrderID: "x"})
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavail)
}

func TestClient_Serviceability(t *testing.T) {
	f, srv := newFakeShiprocket(t)
	f.mux.HandleFunc("/v1/external/courier/serviceability/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "110001", q.Get("pickup_postcode"))
		assert.Equal(t, "560001", q.Get("delivery_postcode"))
		assert.Equal(t, "1", q.Get("cod"))
		assert.Equal(t, "0.500", q.Get("weight"))
		_, _ = w.Write([]byte(`{"status":200,"data":{"available_courier_companies":[
			{"courier_company_id": 10, "courier_name": "Delhivery", "rate": 62.5, "estimated_delivery_days": "4"},
			{"courier_company_id": 12, "courier_name": "Xpressbees", "rate": 58, "estimated_delivery_days": 5}
		]}}`))
	})
	c := newTestClient(t, srv.URL, newMemTokens())

	couriers, err := c.Serviceability(context.Background(), ServiceabilityQuery{
		DeliveryPincode: "560001",
		WeightKg:        0.5,
		COD:             true,
	})
	require.NoError(t, err)
	require.Len(t, couriers, 2)
	assert.Equal(t, Days(4), couriers[0].EstimatedDeliveryDays)
	assert.Equal(t, Days(5), couriers[1].EstimatedDeliveryDays)
}

func TestClient_AssignAWB(t *testing.T) {
	f, srv := newFakeShiprocket(t)
	f.mux.HandleFunc("/v1/external/courier/assign/awb", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 7001.0, body["shipment_id"])
		assert.Equal(t, 12.0, body["courier_id"])
		_, _ = w.Write([]byte(`{"awb_assign_status":1,"response":{"data":{"awb_code":"AWB123","courier_company_id":12,"courier_name":"Xpressbees"}}}`))
	})
	c := newTestClient(t, srv.URL, newMemTokens())

	awb, err := c.AssignAWB(context.Background(), 7001, 12)
	require.NoError(t, err)
	assert.Equal(t, "AWB123", awb.AWBCode)
	assert.Equal(t, "Xpressbees", awb.CourierName)
}

func TestClient_AssignAWB_Rejected(t *testing.T) {
	f, srv := newFakeShiprocket(t)
	f.mux.HandleFunc("/v1/external/courier/assign/awb", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"awb_assign_status":0,"response":{"data":{"awb_assign_error":"insufficient wallet balance"}}}`))
	})
	c := newTestClient(t, srv.URL, newMemTokens())

	_, err := c.AssignAWB(context.Background(), 7001, 12)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Contains(t, err.Error(), "insufficient wallet balance")
}

func TestClient_GeneratePickup(t *testing.T) {
	f, srv := newFakeShiprocket(t)
	f.mux.HandleFunc("/v1/external/courier/generate/pickup", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"pickup_status":1,"response":{"pickup_scheduled_date":"2026-10-15 10:00:00"}}`))
	})
	c := newTestClient(t, srv.URL, newMemTokens())

	date, err := c.GeneratePickup(context.Background(), 7001)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-15 10:00:00", date)
}

func TestClient_Track(t *testing.T) {
	f, srv := newFakeShiprocket(t)
	f.mux.HandleFunc("/v1/external/courier/track/awb/AWB123", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tracking_data":{"track_status":1,
			"shipment_track":[{"current_status":"In Transit","courier_name":"Xpressbees"}],
			"shipment_track_activities":[{"date":"2026-10-15 12:00:00","status":"IT","activity":"Bag received","location":"Delhi"}],
			"track_url":"https://shiprocket.co/tracking/AWB123"}}`))
	})
	c := newTestClient(t, srv.URL, newMemTokens())

	tr, err := c.Track(context.Background(), "AWB123")
	require.NoError(t, err)
	assert.Equal(t, "In Transit", tr.CurrentStatus)
	assert.Equal(t, "https://shiprocket.co/tracking/AWB123", tr.TrackURL)
	require.Len(t, tr.Activities, 1)
	assert.Equal(t, "Delhi", tr.Activities[0].Location)
}

func TestClient_Track_Unknown(t *testing.T) {
	f, srv := newFakeShiprocket(t)
	f.mux.HandleFunc("/v1/external/courier/track/awb/NOPE", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tracking_data":{"track_status":0,"error":"no activities found"}}`))
	})
	c := newTestClient(t, srv.URL, newMemTokens())

	_, err := c.Track(context.Background(), "NOPE")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCheapestCourier(t *testing.T) {
	_, ok := CheapestCourier(nil)
	assert.False(t, ok)

	best, ok := CheapestCourier([]Courier{
		{ID: 1, Rate: 70, EstimatedDeliveryDays: 2},
		{ID: 2, Rate: 55, EstimatedDeliveryDays: 6},
		{ID: 3, Rate: 55, EstimatedDeliveryDays: 3},
	})
	require.True(t, ok)
	assert.Equal(t, 3, best.ID)
}

func TestWebhookPayload_AWBStringOrNumber(t *testing.T) {
	tests := map[string]AWBCode{
		`{"awb":"SF123456"}`:       "SF123456",
		`{"awb":19041234567890}`:   "19041234567890",
		`{"awb":null}`:             "",
		`{"current_status":"NEW"}`: "",
	}
	for body, want := range tests {
		var p WebhookPayload
		require.NoError(t, json.Unmarshal([]byte(body), &p), body)
		assert.Equal(t, want, p.AWB, body)
	}

	var p WebhookPayload
	assert.Error(t, json.Unmarshal([]byte(`{"awb":true}`), &p))
}

func TestWebhookSignature(t *testing.T) {
	body := []byte(`{"awb":"AWB123","current_status":"DELIVERED"}`)
	sig := SignWebhook("whsec", body)

	assert.True(t, VerifyWebhook("whsec", body, sig))
	assert.False(t, VerifyWebhook("whsec", body, "deadbeef"))
	assert.False(t, VerifyWebhook("other", body, sig))
	assert.False(t, VerifyWebhook("", body, sig))
}

func TestSplitName(t *testing.T) {
	first, last := SplitName("Asha  Devi Rao")
	assert.Equal(t, "Asha", first)
	assert.Equal(t, "Devi Rao", last)

	first, last = SplitName("Asha")
	assert.Equal(t, "Asha", first)
	assert.Empty(t, last)
}
