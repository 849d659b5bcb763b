package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	shipmentOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glowskin_shipment_bookings_total",
		Help: "Shipment booking saga runs by outcome",
	}, []string{"outcome"})

	webhookOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glowskin_webhooks_total",
		Help: "Webhook deliveries by provider and outcome",
	}, []string{"provider", "outcome"})

	notificationOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "glowskin_notifications_total",
		Help: "Notification deliveries by channel and final status",
	}, []string{"channel", "status"})
)

// Shipment saga outcomes.
const (
	shipmentBooked       = "booked"
	shipmentFailed       = "failed"
	shipmentPickupFailed = "pickup_failed"
	shipmentSkipped      = "skipped"
)

// Webhook outcomes.
const (
	webhookHandled   = "handled"
	webhookDuplicate = "duplicate"
	webhookRejected  = "rejected"
	webhookIgnored   = "ignored"
	webhookFailed    = "failed"
)
