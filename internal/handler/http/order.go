package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/payment"
	"github.com/utafrali/glowskin/internal/service"
	"github.com/utafrali/glowskin/pkg/httputil"
	"github.com/utafrali/glowskin/pkg/pagination"
)

// IdempotencyKeyHeader lets a client retry checkout without placing a second order.
const IdempotencyKeyHeader = "Idempotency-Key"

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	service       *service.OrderService
	notifications *service.NotificationService
	logger        *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler. notifications may be nil.
func NewOrderHandler(svc *service.OrderService, notifications *service.NotificationService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service:       svc,
		notifications: notifications,
		logger:        logger,
	}
}

// --- Request DTOs ---

// UpdateStatusRequest is the JSON request body for updating order status.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

// CancelOrderRequest is the JSON request body for cancelling an order.
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// --- Handlers ---

// CreateOrder handles POST /api/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req service.CreateOrderInput
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	userID, _ := caller(r)
	res, err := h.service.CreateOrder(r.Context(), userID, &req, r.Header.Get(IdempotencyKeyHeader))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if res.Replayed {
		httputil.OK(w, "order already placed", res)
		return
	}
	httputil.Created(w, "order placed", res)
}

// VerifyPayment handles POST /api/orders/{id}/verify-payment
func (h *OrderHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req payment.VerifyInput
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	userID, isAdmin := caller(r)
	order, err := h.service.VerifyPayment(r.Context(), userID, isAdmin, id.String(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "payment verified", order)
}

// MyOrders handles GET /api/orders/my
func (h *OrderHandler) MyOrders(w http.ResponseWriter, r *http.Request) {
	userID, _ := caller(r)
	page := pagination.FromRequest(r)

	orders, total, err := h.service.MyOrders(r.Context(), userID, page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, orders, total, page)
}

// GetOrder handles GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	userID, isAdmin := caller(r)
	order, err := h.service.GetOrder(r.Context(), id.String(), userID, isAdmin)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "", order)
}

// TrackOrder handles GET /api/orders/track/{orderNumber}?email=
func (h *OrderHandler) TrackOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.TrackOrder(r.Context(), chi.URLParam(r, "orderNumber"), r.URL.Query().Get("email"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "", order)
}

// CancelOrder handles POST /api/orders/{id}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req CancelOrderRequest
	if r.ContentLength != 0 && !httputil.DecodeJSON(w, r, &req) {
		return
	}

	userID, isAdmin := caller(r)
	order, err := h.service.CancelOrder(r.Context(), id.String(), userID, isAdmin, req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "order cancelled", order)
}

// ListOrders handles GET /api/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.OrderFilter{
		Status:        q.Get("status"),
		PaymentStatus: q.Get("payment_status"),
		Search:        q.Get("search"),
	}
	var ok bool
	if filter.From, ok = queryTime(w, r, "from", false); !ok {
		return
	}
	if filter.To, ok = queryTime(w, r, "to", true); !ok {
		return
	}

	page := pagination.FromRequest(r)
	orders, total, err := h.service.ListOrders(r.Context(), filter, page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, orders, total, page)
}

// UpdateOrderStatus handles PATCH /api/orders/{id}/status
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req UpdateStatusRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), id.String(), req.Status, req.Note)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "order status updated", order)
}

// OrderNotifications handles GET /api/orders/{id}/notifications
func (h *OrderHandler) OrderNotifications(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if h.notifications == nil {
		httputil.OK(w, "", []domain.Notification{})
		return
	}

	list, err := h.notifications.OrderNotifications(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "", list)
}
