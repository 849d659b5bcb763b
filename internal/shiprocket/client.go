// Package shiprocket is a client for the Shiprocket courier aggregator API.
package shiprocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/utafrali/glowskin/internal/config"
	"github.com/utafrali/glowskin/internal/repository"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/httpclient"
)

const (
	serviceName = "shiprocket"
	tokenKey    = "shiprocket"
)

// Client calls the Shiprocket external API. The login token is shared
// across processes through the token cache and refreshed on 401.
type Client struct {
	http   httpclient.Doer
	cfg    config.ShiprocketConfig
	tokens repository.TokenCache
	logger *slog.Logger

	loginMu sync.Mutex
}

// NewClient creates a Shiprocket client.
func NewClient(cfg config.ShiprocketConfig, doer httpclient.Doer, tokens repository.TokenCache, logger *slog.Logger) *Client {
	return &Client{
		http:   doer,
		cfg:    cfg,
		tokens: tokens,
		logger: logger,
	}
}

// PickupPincode is the warehouse pincode used for serviceability checks.
func (c *Client) PickupPincode() string { return c.cfg.PickupPincode }

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// token returns the cached login token, logging in when none is cached.
func (c *Client) token(ctx context.Context, force bool) (string, error) {
	if !force {
		tok, err := c.tokens.Get(ctx, tokenKey)
		if err != nil {
			c.logger.WarnContext(ctx, "shiprocket token cache read failed", slog.String("error", err.Error()))
		} else if tok != "" {
			return tok, nil
		}
	}

	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	// Another goroutine may have logged in while we waited.
	if !force {
		if tok, err := c.tokens.Get(ctx, tokenKey); err == nil && tok != "" {
			return tok, nil
		}
	}

	var resp loginResponse
	err := httpclient.DoJSON(ctx, c.http, httpclient.Request{
		Method:  http.MethodPost,
		URL:     c.cfg.BaseURL + "/v1/external/auth/login",
		Body:    loginRequest{Email: c.cfg.Email, Password: c.cfg.Password},
		Service: serviceName,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("shiprocket login: %w", err)
	}
	if resp.Token == "" {
		return "", apperrors.ServiceUnavailable("shiprocket login returned no token")
	}

	if err := c.tokens.Set(ctx, tokenKey, resp.Token, c.cfg.TokenTTL); err != nil {
		c.logger.WarnContext(ctx, "shiprocket token cache write failed", slog.String("error", err.Error()))
	}
	c.logger.InfoContext(ctx, "shiprocket login succeeded")
	return resp.Token, nil
}

// do performs an authenticated call and retries once with a fresh token when
// Shiprocket rejects the cached one.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	tok, err := c.token(ctx, false)
	if err != nil {
		return err
	}

	call := func(tok string) error {
		return httpclient.DoJSON(ctx, c.http, httpclient.Request{
			Method:  method,
			URL:     c.cfg.BaseURL + path,
			Header:  http.Header{"Authorization": []string{"Bearer " + tok}},
			Body:    body,
			Service: serviceName,
		}, out)
	}

	err = call(tok)
	if httpclient.StatusOf(err) != http.StatusUnauthorized {
		return err
	}

	c.logger.InfoContext(ctx, "shiprocket token rejected, logging in again")
	if delErr := c.tokens.Delete(ctx, tokenKey); delErr != nil {
		c.logger.WarnContext(ctx, "shiprocket token cache delete failed", slog.String("error", delErr.Error()))
	}
	tok, err = c.token(ctx, true)
	if err != nil {
		return err
	}
	return call(tok)
}

// CreateOrder books an adhoc order.
func (c *Client) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	if req.PickupLocation == "" {
		req.PickupLocation = c.cfg.PickupLocation
	}
	var resp CreateOrderResponse
	if err := c.do(ctx, http.MethodPost, "/v1/external/orders/create/adhoc", req, &resp); err != nil {
		return nil, fmt.Errorf("create shiprocket order: %w", err)
	}
	if resp.OrderID == 0 || resp.ShipmentID == 0 {
		return nil, apperrors.ServiceUnavailable("shiprocket order created without ids: " + resp.Status)
	}
	return &resp, nil
}

// Serviceability lists couriers able to deliver to pincode.
func (c *Client) Serviceability(ctx context.Context, q ServiceabilityQuery) ([]Courier, error) {
	if q.PickupPincode == "" {
		q.PickupPincode = c.cfg.PickupPincode
	}
	params := url.Values{}
	params.Set("pickup_postcode", q.PickupPincode)
	params.Set("delivery_postcode", q.DeliveryPincode)
	params.Set("weight", strconv.FormatFloat(q.WeightKg, 'f', 3, 64))
	if q.COD {
		params.Set("cod", "1")
	} else {
		params.Set("cod", "0")
	}
	if q.DeclaredValue > 0 {
		params.Set("declared_value", strconv.FormatFloat(q.DeclaredValue, 'f', 2, 64))
	}

	var resp serviceabilityResponse
	if err := c.do(ctx, http.MethodGet, "/v1/external/courier/serviceability/?"+params.Encode(), nil, &resp); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return []Courier{}, nil
		}
		return nil, fmt.Errorf("check serviceability: %w", err)
	}
	if resp.Data.AvailableCourierCompanies == nil {
		return []Courier{}, nil
	}
	return resp.Data.AvailableCourierCompanies, nil
}

// AssignAWB assigns courierID to a shipment and returns the AWB.
func (c *Client) AssignAWB(ctx context.Context, shipmentID int64, courierID int) (*AWBAssignment, error) {
	var resp awbResponse
	err := c.do(ctx, http.MethodPost, "/v1/external/courier/assign/awb", map[string]any{
		"shipment_id": shipmentID,
		"courier_id":  courierID,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("assign awb: %w", err)
	}
	data := resp.Response.Data
	if resp.AWBAssignStatus != 1 || data.AWBCode == "" {
		msg := data.AWBAssignError
		if msg == "" {
			msg = "awb not assigned"
		}
		return nil, apperrors.Conflict("shiprocket: " + msg)
	}
	return &AWBAssignment{
		AWBCode:     data.AWBCode,
		CourierID:   data.CourierCompanyID,
		CourierName: data.CourierName,
	}, nil
}

// GeneratePickup schedules pickup for a shipment and returns the date.
func (c *Client) GeneratePickup(ctx context.Context, shipmentID int64) (string, error) {
	var resp pickupResponse
	err := c.do(ctx, http.MethodPost, "/v1/external/courier/generate/pickup", map[string]any{
		"shipment_id": []int64{shipmentID},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("generate pickup: %w", err)
	}
	if resp.PickupStatus != 1 {
		return "", apperrors.Conflict("shiprocket: pickup not scheduled")
	}
	return resp.Response.PickupScheduledDate, nil
}

// Track returns the tracking data for an AWB.
func (c *Client) Track(ctx context.Context, awb string) (*Tracking, error) {
	var resp trackResponse
	if err := c.do(ctx, http.MethodGet, "/v1/external/courier/track/awb/"+url.PathEscape(awb), nil, &resp); err != nil {
		return nil, fmt.Errorf("track awb: %w", err)
	}
	td := resp.TrackingData
	t := &Tracking{
		AWBCode:     awb,
		TrackURL:    td.TrackURL,
		Activities:  td.ShipmentTrackActivities,
		ETD:         td.ETD,
		TrackStatus: td.TrackStatus,
	}
	if len(td.ShipmentTrack) > 0 {
		t.CurrentStatus = td.ShipmentTrack[0].CurrentStatus
		t.CourierName = td.ShipmentTrack[0].CourierName
		t.Origin = td.ShipmentTrack[0].Origin
		t.Destination = td.ShipmentTrack[0].Destination
	}
	if t.Activities == nil {
		t.Activities = []Activity{}
	}
	if td.Error != "" && t.CurrentStatus == "" {
		return nil, apperrors.NotFound("shipment", awb)
	}
	return t, nil
}

// CancelOrder cancels Shiprocket orders by their Shiprocket ids.
func (c *Client) CancelOrder(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.do(ctx, http.MethodPost, "/v1/external/orders/cancel", map[string]any{"ids": ids}, nil); err != nil {
		return fmt.Errorf("cancel shiprocket order: %w", err)
	}
	return nil
}

// OrderDate formats t the way Shiprocket expects.
func OrderDate(t time.Time) string {
	return t.In(ist).Format("2006-01-02 15:04")
}

var ist = time.FixedZone("IST", 5*3600+1800)

// SplitName splits a full name into first and last parts.
func SplitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
