package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/service"
	"github.com/utafrali/glowskin/pkg/httputil"
	"github.com/utafrali/glowskin/pkg/pagination"
)

// UserHandler handles HTTP requests for profile, address, wishlist and
// admin user endpoints.
type UserHandler struct {
	service *service.UserService
	logger  *slog.Logger
}

// NewUserHandler creates a new user HTTP handler.
func NewUserHandler(svc *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{service: svc, logger: logger}
}

// --- Request DTOs ---

// SetRoleRequest is the JSON request body for changing a user's role.
type SetRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// SetStatusRequest is the JSON request body for enabling or disabling a user.
type SetStatusRequest struct {
	IsActive *bool `json:"is_active" validate:"required"`
}

// --- Profile ---

// GetProfile handles GET /api/users/profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := caller(r)
	user, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "", user)
}

// UpdateProfile handles PUT /api/users/profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateProfileInput
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	userID, _ := caller(r)
	user, err := h.service.UpdateProfile(r.Context(), userID, &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "profile updated", user)
}

// --- Addresses ---

// ListAddresses handles GET /api/users/addresses
func (h *UserHandler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	userID, _ := caller(r)
	addresses, err := h.service.ListAddresses(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "", addresses)
}

// AddAddress handles POST /api/users/addresses
func (h *UserHandler) AddAddress(w http.ResponseWriter, r *http.Request) {
	var req domain.Address
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	userID, _ := caller(r)
	addresses, err := h.service.AddAddress(r.Context(), userID, req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.Created(w, "address added", addresses)
}

// UpdateAddress handles PUT /api/users/addresses/{id}
func (h *UserHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	var req domain.Address
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	userID, _ := caller(r)
	addresses, err := h.service.UpdateAddress(r.Context(), userID, chi.URLParam(r, "id"), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "address updated", addresses)
}

// DeleteAddress handles DELETE /api/users/addresses/{id}
func (h *UserHandler) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	userID, _ := caller(r)
	addresses, err := h.service.DeleteAddress(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "address deleted", addresses)
}

// --- Wishlist ---

// Wishlist handles GET /api/users/wishlist
func (h *UserHandler) Wishlist(w http.ResponseWriter, r *http.Request) {
	userID, _ := caller(r)
	products, err := h.service.Wishlist(r.Context(), userID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "", products)
}

// AddToWishlist handles POST /api/users/wishlist/{productId}
func (h *UserHandler) AddToWishlist(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	userID, _ := caller(r)
	ids, err := h.service.AddToWishlist(r.Context(), userID, productID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "added to wishlist", ids)
}

// RemoveFromWishlist handles DELETE /api/users/wishlist/{productId}
func (h *UserHandler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	productID, ok := httputil.ParseUUID(w, chi.URLParam(r, "productId"))
	if !ok {
		return
	}

	userID, _ := caller(r)
	ids, err := h.service.RemoveFromWishlist(r.Context(), userID, productID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "removed from wishlist", ids)
}

// --- Admin ---

// ListUsers handles GET /api/users
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.UserFilter{Search: q.Get("search"), Role: q.Get("role")}
	page := pagination.FromRequest(r)

	users, total, err := h.service.ListUsers(r.Context(), filter, page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, users, total, page)
}

// SetRole handles PATCH /api/users/{id}/role
func (h *UserHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req SetRoleRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	actorID, _ := caller(r)
	user, err := h.service.SetRole(r.Context(), actorID, id.String(), req.Role)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "role updated", user)
}

// SetStatus handles PATCH /api/users/{id}/status
func (h *UserHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req SetStatusRequest
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	actorID, _ := caller(r)
	user, err := h.service.SetActive(r.Context(), actorID, id.String(), *req.IsActive)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "status updated", user)
}
