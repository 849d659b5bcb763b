package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/search"
	"github.com/utafrali/glowskin/internal/service"
	"github.com/utafrali/glowskin/pkg/httputil"
	"github.com/utafrali/glowskin/pkg/pagination"
)

// ProductHandler handles HTTP requests for catalogue endpoints.
type ProductHandler struct {
	service *service.ProductService
	logger  *slog.Logger
}

// NewProductHandler creates a new product HTTP handler.
func NewProductHandler(svc *service.ProductService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{service: svc, logger: logger}
}

// SetStockRequest is the JSON request body for a stock overwrite.
type SetStockRequest struct {
	Stock *int `json:"stock" validate:"required,gte=0"`
}

// ListProducts handles GET /api/products
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	_, isAdmin := caller(r)

	filter := domain.ProductFilter{
		Category:        q.Get("category"),
		Brand:           q.Get("brand"),
		SkinType:        q.Get("skin_type"),
		Search:          q.Get("search"),
		Sort:            q.Get("sort"),
		IncludeInactive: isAdmin && q.Get("include_inactive") == "true",
	}
	var ok bool
	if filter.MinPrice, ok = queryInt64(w, r, "min_price"); !ok {
		return
	}
	if filter.MaxPrice, ok = queryInt64(w, r, "max_price"); !ok {
		return
	}
	if filter.Featured, ok = queryBool(w, r, "featured"); !ok {
		return
	}

	page := pagination.FromRequest(r)
	products, total, err := h.service.ListProducts(r.Context(), filter, page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, products, total, page)
}

// SearchProducts handles GET /api/products/search
func (h *ProductHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := pagination.FromRequest(r)

	query := search.Query{
		Text:     q.Get("q"),
		Category: q.Get("category"),
		SkinType: q.Get("skin_type"),
		Sort:     q.Get("sort"),
		Page:     page.Page,
		PerPage:  page.PerPage,
	}
	var ok bool
	if query.MinPrice, ok = queryInt64(w, r, "min_price"); !ok {
		return
	}
	if query.MaxPrice, ok = queryInt64(w, r, "max_price"); !ok {
		return
	}

	products, total, err := h.service.SearchProducts(r.Context(), query)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, products, total, page)
}

// FeaturedProducts handles GET /api/products/featured
func (h *ProductHandler) FeaturedProducts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	products, err := h.service.FeaturedProducts(r.Context(), limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "", products)
}

// Categories handles GET /api/products/categories
func (h *ProductHandler) Categories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.service.Categories(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "", cats)
}

// GetProduct handles GET /api/products/{id}. The parameter may be a slug or an id.
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	_, isAdmin := caller(r)

	product, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"), isAdmin)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "", product)
}

// CreateProduct handles POST /api/products
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req service.CreateProductInput
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	product, err := h.service.CreateProduct(r.Context(), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.Created(w, "product created", product)
}

// UpdateProduct handles PUT /api/products/{id}
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req service.UpdateProductInput
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	product, err := h.service.UpdateProduct(r.Context(), id.String(), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "product updated", product)
}

// DeleteProduct handles DELETE /api/products/{id}
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeleteProduct(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "product deleted", nil)
}

// SetStock handles PATCH /api/products/{id}/stock
func (h *ProductHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req SetStockRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	product, err := h.service.SetStock(r.Context(), id.String(), *req.Stock)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "stock updated", product)
}
