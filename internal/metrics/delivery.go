package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(webhookAttempts, webhookDeliveries, rotations) }

var (
	webhookAttempts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_webhook_attempts_total",
		Help: "Individual webhook POST attempts.",
	})

	webhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_webhook_deliveries_total",
			Help: "Webhook notifications by final outcome.",
		},
		[]string{"outcome"}, // delivered, exhausted, skipped
	)

	rotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_identity_rotations_total",
			Help: "Identity rotations by outcome.",
		},
		[]string{"outcome"},
	)
)

func IncWebhookAttempt() { webhookAttempts.Inc() }

func IncWebhookDelivery(outcome string) { webhookDeliveries.WithLabelValues(norm(outcome)).Inc() }

func IncRotation(outcome string) { rotations.WithLabelValues(norm(outcome)).Inc() }
