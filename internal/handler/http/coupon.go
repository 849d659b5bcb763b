package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/glowskin/internal/service"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/httputil"
	"github.com/utafrali/glowskin/pkg/middleware"
	"github.com/utafrali/glowskin/pkg/pagination"
)

// CouponHandler handles HTTP requests for coupon endpoints.
type CouponHandler struct {
	service *service.CouponService
	logger  *slog.Logger
}

// NewCouponHandler creates a new coupon HTTP handler.
func NewCouponHandler(svc *service.CouponService, logger *slog.Logger) *CouponHandler {
	return &CouponHandler{service: svc, logger: logger}
}

// ValidateCouponRequest is the JSON request body for a coupon check.
type ValidateCouponRequest struct {
	Code     string `json:"code" validate:"required,max=40"`
	Subtotal int64  `json:"subtotal" validate:"gte=0"`
}

type couponRejected struct {
	Valid bool `json:"valid"`
}

// ValidateCoupon handles POST /api/coupons/validate. A rejected code answers
// 400 with data {"valid": false}.
func (h *CouponHandler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req ValidateCouponRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	quote, err := h.service.ValidateCoupon(r.Context(), middleware.UserIDFromContext(r.Context()), req.Code, req.Subtotal)
	if err != nil {
		if errors.Is(err, apperrors.ErrInvalidInput) {
			httputil.WriteErrorWithData(w, r, err, couponRejected{Valid: false}, h.logger)
			return
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "coupon applied", quote)
}

// ListCoupons handles GET /api/coupons
func (h *CouponHandler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	page := pagination.FromRequest(r)
	coupons, total, err := h.service.ListCoupons(r.Context(), page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, coupons, total, page)
}

// CreateCoupon handles POST /api/coupons
func (h *CouponHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req service.CouponInput
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	coupon, err := h.service.CreateCoupon(r.Context(), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.Created(w, "coupon created", coupon)
}

// UpdateCoupon handles PUT /api/coupons/{id}
func (h *CouponHandler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req service.CouponInput
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	coupon, err := h.service.UpdateCoupon(r.Context(), id.String(), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "coupon updated", coupon)
}

// DeleteCoupon handles DELETE /api/coupons/{id}
func (h *CouponHandler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeleteCoupon(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "coupon deleted", nil)
}
