package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/glowskin/internal/service"
	"github.com/utafrali/glowskin/pkg/httputil"
	"github.com/utafrali/glowskin/pkg/pagination"
)

// CampaignHandler handles HTTP requests for campaign endpoints.
type CampaignHandler struct {
	service *service.CampaignService
	logger  *slog.Logger
}

// NewCampaignHandler creates a new campaign HTTP handler.
func NewCampaignHandler(svc *service.CampaignService, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{service: svc, logger: logger}
}

// ActiveCampaigns handles GET /api/campaigns/active
func (h *CampaignHandler) ActiveCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.service.ActiveCampaigns(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "", campaigns)
}

// ListCampaigns handles GET /api/campaigns
func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page := pagination.FromRequest(r)
	campaigns, total, err := h.service.ListCampaigns(r.Context(), page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, campaigns, total, page)
}

// GetCampaign handles GET /api/campaigns/{id}
func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	campaign, err := h.service.GetCampaign(r.Context(), id.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "", campaign)
}

// CreateCampaign handles POST /api/campaigns
func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req service.CampaignInput
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	campaign, err := h.service.CreateCampaign(r.Context(), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.Created(w, "campaign created", campaign)
}

// UpdateCampaign handles PUT /api/campaigns/{id}
func (h *CampaignHandler) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var req service.CampaignInput
	if !httputil.DecodeJSON(w, r, &req) {
		return
	}

	campaign, err := h.service.UpdateCampaign(r.Context(), id.String(), &req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "campaign updated", campaign)
}

// DeleteCampaign handles DELETE /api/campaigns/{id}
func (h *CampaignHandler) DeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := h.service.DeleteCampaign(r.Context(), id.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "campaign deleted", nil)
}
