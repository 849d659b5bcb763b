package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/glowskin/internal/service"
	"github.com/utafrali/glowskin/pkg/httputil"
	"github.com/utafrali/glowskin/pkg/middleware"
)

// CartHandler handles HTTP requests for the signed-in user's cart.
type CartHandler struct {
	service *service.CartService
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(svc *service.CartService, logger *slog.Logger) *CartHandler {
	return &CartHandler{service: svc, logger: logger}
}

// UpdateQuantityRequest is the JSON request body for changing a line quantity.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required,gte=0"`
}

// MergeCartRequest is the JSON request body for merging a guest cart.
type MergeCartRequest struct {
	Items []service.CartItemInput `json:"items" validate:"max=100,dive"`
}

// GetCart handles GET /api/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetCart(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "", view)
}

// AddItem handles POST /api/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req service.CartItemInput
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	view, err := h.service.AddItem(r.Context(), middleware.UserIDFromContext(r.Context()), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "item added to cart", view)
}

// UpdateItem handles PATCH /api/cart/items/{productId}
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, chi.URLParam(r, "productId"))
	if !ok {
		return
	}
	var req UpdateQuantityRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	view, err := h.service.UpdateItem(r.Context(), middleware.UserIDFromContext(r.Context()), productID.String(), *req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "cart updated", view)
}

// RemoveItem handles DELETE /api/cart/items/{productId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	view, err := h.service.RemoveItem(r.Context(), middleware.UserIDFromContext(r.Context()), productID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "item removed from cart", view)
}

// ClearCart handles DELETE /api/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.service.ClearCart(r.Context(), middleware.UserIDFromContext(r.Context())); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "cart cleared", nil)
}

// MergeCart handles POST /api/cart/merge
func (h *CartHandler) MergeCart(w http.ResponseWriter, r *http.Request) {
	var req MergeCartRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	view, err := h.service.MergeCart(r.Context(), middleware.UserIDFromContext(r.Context()), req.Items)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "cart merged", view)
}
