package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/utafrali/glowskin/internal/service"
	"github.com/utafrali/glowskin/pkg/httputil"
)

// AnalyticsHandler serves the admin dashboard.
type AnalyticsHandler struct {
	service *service.AnalyticsService
	logger  *slog.Logger
}

// NewAnalyticsHandler creates a new analytics HTTP handler.
func NewAnalyticsHandler(svc *service.AnalyticsService, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{service: svc, logger: logger}
}

// Dashboard handles GET /api/analytics/dashboard?days=30
func (h *AnalyticsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeParamError(w, "days must be a positive integer")
			return
		}
		days = n
	}

	dashboard, err := h.service.Dashboard(r.Context(), days)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.OK(w, "", dashboard)
}
