package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/glowskin/internal/service"
	"github.com/utafrali/glowskin/pkg/httputil"
	"github.com/utafrali/glowskin/pkg/pagination"
)

// ReviewHandler handles HTTP requests for product reviews.
type ReviewHandler struct {
	service *service.ReviewService
	logger  *slog.Logger
}

// NewReviewHandler creates a new review HTTP handler.
func NewReviewHandler(svc *service.ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{service: svc, logger: logger}
}

// ListProductReviews handles GET /api/reviews/product/{productId}
func (h *ReviewHandler) ListProductReviews(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	page := pagination.FromRequest(r)
	res, err := h.service.ListByProduct(r.Context(), productID.String(), page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "", map[string]any{
		"reviews":    pagination.NewResult(res.Reviews, res.Total, page),
		"summary":    res.Summary,
		"product_id": productID.String(),
	})
}

// CreateReview handles POST /api/reviews
func (h *ReviewHandler) CreateReview(w http.ResponseWriter, r *http.Request) {
	var req service.CreateReviewInput
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	userID, _ := caller(r)
	review, err := h.service.CreateReview(r.Context(), userID, &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.Created(w, "review submitted", review)
}

// DeleteReview handles DELETE /api/reviews/{id}
func (h *ReviewHandler) DeleteReview(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	userID, isAdmin := caller(r)
	if err := h.service.DeleteReview(r.Context(), id.String(), userID, isAdmin); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "review deleted", nil)
}

// ListReviews handles GET /api/reviews
func (h *ReviewHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	page := pagination.FromRequest(r)
	reviews, total, err := h.service.ListReviews(r.Context(), page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, reviews, total, page)
}
