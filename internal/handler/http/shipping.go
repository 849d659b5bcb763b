package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/glowskin/internal/service"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/httputil"
)

// ShippingHandler handles HTTP requests for Shiprocket endpoints.
type ShippingHandler struct {
	service *service.ShippingService
	logger  *slog.Logger
}

// NewShippingHandler creates a new shipping HTTP handler. A nil service
// answers every request with 503.
func NewShippingHandler(svc *service.ShippingService, logger *slog.Logger) *ShippingHandler {
	return &ShippingHandler{service: svc, logger: logger}
}

func (h *ShippingHandler) available(w http.ResponseWriter, r *http.Request) bool {
	if h.service == nil {
		httputil.WriteError(w, r, apperrors.ServiceUnavailable("shipping is not configured"), h.logger)
		return false
	}
	return true
}

// Ship handles POST /api/shiprocket/orders/{id}/ship
func (h *ShippingHandler) Ship(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok || !h.available(w, r) {
		return
	}

	order, err := h.service.Ship(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "shipment booked", order)
}

// SchedulePickup handles POST /api/shiprocket/orders/{id}/pickup
func (h *ShippingHandler) SchedulePickup(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok || !h.available(w, r) {
		return
	}

	order, err := h.service.SchedulePickup(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "pickup scheduled", order)
}

// Track handles GET /api/shiprocket/track/{awb}
func (h *ShippingHandler) Track(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}

	tracking, err := h.service.Track(r.Context(), chi.URLParam(r, "awb"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "", tracking)
}

// Serviceability handles GET /api/shiprocket/serviceability?pincode=&weight=&cod=
// Weight is in grams.
func (h *ShippingHandler) Serviceability(w http.ResponseWriter, r *http.Request) {
	if !h.available(w, r) {
		return
	}
	q := r.URL.Query()

	weight := 0
	if v := q.Get("weight"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeParamError(w, "weight must be a non-negative integer number of grams")
			return
		}
		weight = n
	}
	cod, ok := queryBool(w, r, "cod")
	if !ok {
		return
	}

	couriers, err := h.service.Serviceability(r.Context(), q.Get("pincode"), weight, cod != nil && *cod)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "", couriers)
}
