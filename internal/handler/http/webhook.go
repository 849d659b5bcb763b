package http

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/utafrali/glowskin/internal/service"
	"github.com/utafrali/glowskin/pkg/httputil"
)

// Webhook signature and delivery headers.
const (
	HeaderRazorpaySignature   = "X-Razorpay-Signature"
	HeaderRazorpayEventID     = "X-Razorpay-Event-Id"
	HeaderCashfreeSignature   = "x-webhook-signature"
	HeaderCashfreeTimestamp   = "x-webhook-timestamp"
	HeaderShiprocketSignature = "X-Shiprocket-Signature"
)

const maxWebhookBody = 1 << 20

// WebhookHandler handles provider callbacks. Signatures are computed over
// the raw body, so it is read unparsed.
type WebhookHandler struct {
	service *service.WebhookService
	logger  *slog.Logger
}

// NewWebhookHandler creates a new webhook HTTP handler.
func NewWebhookHandler(svc *service.WebhookService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{service: svc, logger: logger}
}

// Razorpay handles POST /api/webhooks/razorpay
func (h *WebhookHandler) Razorpay(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	res, err := h.service.HandleRazorpay(r.Context(), body, r.Header.Get(HeaderRazorpaySignature), r.Header.Get(HeaderRazorpayEventID))
	h.respond(w, r, res, err)
}

// Cashfree handles POST /api/webhooks/cashfree
func (h *WebhookHandler) Cashfree(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	res, err := h.service.HandleCashfree(r.Context(), body, r.Header.Get(HeaderCashfreeSignature), r.Header.Get(HeaderCashfreeTimestamp))
	h.respond(w, r, res, err)
}

// Shiprocket handles POST /api/webhooks/shiprocket
func (h *WebhookHandler) Shiprocket(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	res, err := h.service.HandleShiprocket(r.Context(), body, r.Header.Get(HeaderShiprocketSignature))
	h.respond(w, r, res, err)
}

func (h *WebhookHandler) respond(w http.ResponseWriter, r *http.Request, res *service.WebhookResult, err error) {
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if res.Duplicate {
		httputil.OK(w, "duplicate delivery", res)
		return
	}
	httputil.OK(w, "webhook processed", res)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		httputil.WriteBadRequest(w, "unable to read request body")
		return nil, false
	}
	return body, true
}
