package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/glowskin/internal/domain"
	"github.com/utafrali/glowskin/internal/payment/cashfree"
	"github.com/utafrali/glowskin/internal/payment/razorpay"
	"github.com/utafrali/glowskin/internal/repository"
	"github.com/utafrali/glowskin/internal/shiprocket"
	apperrors "github.com/utafrali/glowskin/pkg/errors"
	"github.com/utafrali/glowskin/pkg/money"
)

// webhookDedupeTTL outlives the retry window of every provider.
const webhookDedupeTTL = 72 * time.Hour

// Webhook providers.
const (
	providerRazorpay   = "razorpay"
	providerCashfree   = "cashfree"
	providerShiprocket = "shiprocket"
)

// RazorpayVerifier checks Razorpay webhook signatures.
type RazorpayVerifier interface {
	VerifyWebhook(body []byte, signature string) bool
}

// CashfreeVerifier checks Cashfree webhook signatures.
type CashfreeVerifier interface {
	VerifyWebhook(timestamp string, body []byte, signature string) bool
}

// WebhookOrders is the order workflow driven by provider callbacks.
type WebhookOrders interface {
	OrderByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*domain.Order, error)
	OrderByNumber(ctx context.Context, number string) (*domain.Order, error)
	ConfirmPayment(ctx context.Context, orderID, paymentID, signature, actor string) (*domain.Order, bool, error)
	FailPayment(ctx context.Context, orderID, reason, actor string) (*domain.Order, bool, error)
	ApplyCarrierUpdate(ctx context.Context, awb, carrierStatus string) (*domain.Order, bool, error)
}

// WebhookResult is the acknowledgement of a delivery.
type WebhookResult struct {
	Duplicate bool `json:"duplicate"`
}

// WebhookService verifies, deduplicates and applies provider callbacks.
// A nil verifier rejects every delivery of that provider.
type WebhookService struct {
	orders           WebhookOrders
	dedupe           repository.DedupeStore
	razorpay         RazorpayVerifier
	cashfree         CashfreeVerifier
	shiprocketSecret string
	logger           *slog.Logger
}

// NewWebhookService creates a new webhook service.
func NewWebhookService(
	orders WebhookOrders,
	dedupe repository.DedupeStore,
	rzp RazorpayVerifier,
	cf CashfreeVerifier,
	shiprocketSecret string,
	logger *slog.Logger,
) *WebhookService {
	return &WebhookService{
		orders:           orders,
		dedupe:           dedupe,
		razorpay:         rzp,
		cashfree:         cf,
		shiprocketSecret: shiprocketSecret,
		logger:           logger,
	}
}

// HandleRazorpay applies a Razorpay webhook. eventID is the
// X-Razorpay-Event-Id header and may be empty.
func (s *WebhookService) HandleRazorpay(ctx context.Context, body []byte, signature, eventID string) (*WebhookResult, error) {
	if s.razorpay == nil || !s.razorpay.VerifyWebhook(body, signature) {
		return nil, s.reject(ctx, providerRazorpay)
	}

	var payload razorpay.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		webhookOutcomes.WithLabelValues(providerRazorpay, webhookRejected).Inc()
		return nil, apperrors.InvalidInput("malformed razorpay payload")
	}

	switch payload.Event {
	case razorpay.EventPaymentCaptured, razorpay.EventOrderPaid, razorpay.EventPaymentFailed:
	default:
		return s.ignore(ctx, providerRazorpay, payload.Event)
	}

	key := eventID
	if key == "" {
		key = payload.Payload.Payment.Entity.ID + ":" + payload.Event
	}
	return s.process(ctx, providerRazorpay, key, func() error {
		order, err := s.orders.OrderByGatewayOrderID(ctx, payload.GatewayOrderID())
		if err != nil {
			return err
		}
		entity := payload.Payload.Payment.Entity

		if payload.Event == razorpay.EventPaymentFailed {
			reason := entity.ErrorDescription
			if reason == "" {
				reason = entity.ErrorCode
			}
			_, _, err = s.orders.FailPayment(ctx, order.ID, reason, domain.ActorGateway)
			return err
		}
		if entity.Amount != 0 && entity.Amount != order.Total {
			_, _, err = s.orders.FailPayment(ctx, order.ID,
				fmt.Sprintf("paid amount %d does not match order total %d", entity.Amount, order.Total), domain.ActorGateway)
			return err
		}
		_, _, err = s.orders.ConfirmPayment(ctx, order.ID, entity.ID, "", domain.ActorGateway)
		return err
	})
}

// HandleCashfree applies a Cashfree payment webhook.
func (s *WebhookService) HandleCashfree(ctx context.Context, body []byte, signature, timestamp string) (*WebhookResult, error) {
	if s.cashfree == nil || !s.cashfree.VerifyWebhook(timestamp, body, signature) {
		return nil, s.reject(ctx, providerCashfree)
	}

	var payload cashfree.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		webhookOutcomes.WithLabelValues(providerCashfree, webhookRejected).Inc()
		return nil, apperrors.InvalidInput("malformed cashfree payload")
	}

	switch payload.Type {
	case cashfree.EventPaymentSuccess, cashfree.EventPaymentFailed, cashfree.EventPaymentUserDropped:
	default:
		return s.ignore(ctx, providerCashfree, payload.Type)
	}

	pay := payload.Data.Payment
	key := pay.CFPaymentID.String() + ":" + payload.Type
	return s.process(ctx, providerCashfree, key, func() error {
		order, err := s.orders.OrderByNumber(ctx, payload.Data.Order.OrderID)
		if err != nil {
			return err
		}

		if payload.Type != cashfree.EventPaymentSuccess {
			reason := pay.PaymentMessage
			if reason == "" {
				reason = "payment " + pay.PaymentStatus
			}
			_, _, err = s.orders.FailPayment(ctx, order.ID, reason, domain.ActorGateway)
			return err
		}
		if pay.PaymentAmount != "" {
			paid, err := money.ParsePaise(pay.PaymentAmount.String())
			if err != nil {
				return apperrors.InvalidInput("malformed payment amount")
			}
			if paid != order.Total {
				_, _, err = s.orders.FailPayment(ctx, order.ID,
					fmt.Sprintf("paid amount %d does not match order total %d", paid, order.Total), domain.ActorGateway)
				return err
			}
		}
		_, _, err = s.orders.ConfirmPayment(ctx, order.ID, pay.CFPaymentID.String(), "", domain.ActorGateway)
		return err
	})
}

// HandleShiprocket applies a courier tracking webhook.
func (s *WebhookService) HandleShiprocket(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if s.shiprocketSecret == "" || !shiprocket.VerifyWebhook(s.shiprocketSecret, body, signature) {
		return nil, s.reject(ctx, providerShiprocket)
	}

	var payload shiprocket.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		webhookOutcomes.WithLabelValues(providerShiprocket, webhookRejected).Inc()
		return nil, apperrors.InvalidInput("malformed shiprocket payload")
	}
	status := payload.CurrentStatus
	if status == "" {
		status = payload.ShipmentStatus
	}
	awb := string(payload.AWB)
	if awb == "" || status == "" {
		return s.ignore(ctx, providerShiprocket, "missing awb or status")
	}

	key := awb + ":" + status + ":" + payload.CurrentTimestamp
	return s.process(ctx, providerShiprocket, key, func() error {
		_, _, err := s.orders.ApplyCarrierUpdate(ctx, awb, status)
		return err
	})
}

// process claims key and runs apply once. Unknown orders are acknowledged
// so the provider stops retrying; any other failure releases the claim.
func (s *WebhookService) process(ctx context.Context, provider, key string, apply func() error) (*WebhookResult, error) {
	claimKey := "webhook:" + provider + ":" + key
	claimed, err := s.dedupe.Claim(ctx, claimKey, webhookDedupeTTL)
	if err != nil {
		webhookOutcomes.WithLabelValues(provider, webhookFailed).Inc()
		return nil, fmt.Errorf("claim webhook: %w", err)
	}
	if !claimed {
		webhookOutcomes.WithLabelValues(provider, webhookDuplicate).Inc()
		s.logger.InfoContext(ctx, "duplicate webhook delivery",
			slog.String("provider", provider),
			slog.String("key", key),
		)
		return &WebhookResult{Duplicate: true}, nil
	}

	if err := apply(); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			webhookOutcomes.WithLabelValues(provider, webhookIgnored).Inc()
			s.logger.WarnContext(ctx, "webhook for unknown order",
				slog.String("provider", provider),
				slog.String("key", key),
			)
			return &WebhookResult{}, nil
		}
		if relErr := s.dedupe.Release(ctx, claimKey); relErr != nil {
			s.logger.ErrorContext(ctx, "failed to release webhook claim",
				slog.String("provider", provider),
				slog.String("error", relErr.Error()),
			)
		}
		webhookOutcomes.WithLabelValues(provider, webhookFailed).Inc()
		return nil, fmt.Errorf("apply %s webhook: %w", provider, err)
	}

	webhookOutcomes.WithLabelValues(provider, webhookHandled).Inc()
	s.logger.InfoContext(ctx, "webhook handled",
		slog.String("provider", provider),
		slog.String("key", key),
	)
	return &WebhookResult{}, nil
}

func (s *WebhookService) reject(ctx context.Context, provider string) error {
	webhookOutcomes.WithLabelValues(provider, webhookRejected).Inc()
	s.logger.WarnContext(ctx, "webhook signature rejected", slog.String("provider", provider))
	return apperrors.Unauthorized("invalid webhook signature")
}

func (s *WebhookService) ignore(ctx context.Context, provider, event string) (*WebhookResult, error) {
	webhookOutcomes.WithLabelValues(provider, webhookIgnored).Inc()
	s.logger.InfoContext(ctx, "webhook event ignored",
		slog.String("provider", provider),
		slog.String("event", event),
	)
	return &WebhookResult{}, nil
}
