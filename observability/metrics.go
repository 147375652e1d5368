package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics exposes Prometheus collectors for escrow payment activity.
type PaymentMetrics struct {
	Initiated         *prometheus.CounterVec
	Settled           prometheus.Counter
	Failed            prometheus.Counter
	Released          prometheus.Counter
	Refunded          prometheus.Counter
	DisputesOpened    prometheus.Counter
	DisputesResolved  *prometheus.CounterVec
	WebhookDeliveries *prometheus.CounterVec
}

var (
	paymentMetricsOnce sync.Once
	paymentRegistry    *PaymentMetrics
)

// Payments returns the lazily-initialised payment metrics registry. Collectors
// register against the default registerer exactly once.
func Payments() *PaymentMetrics {
	paymentMetricsOnce.Do(func() {
		paymentRegistry = &PaymentMetrics{
			Initiated: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gigpay",
				Subsystem: "escrow",
				Name:      "payments_initiated_total",
				Help:      "Payments initiated, segmented by payment method.",
			}, []string{"method"}),
			Settled: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gigpay",
				Subsystem: "escrow",
				Name:      "payments_settled_total",
				Help:      "Payments confirmed by a gateway and moved into escrow.",
			}),
			Failed: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gigpay",
				Subsystem: "escrow",
				Name:      "payments_failed_total",
				Help:      "Payments whose gateway verification reported non-settlement.",
			}),
			Released: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gigpay",
				Subsystem: "escrow",
				Name:      "payments_released_total",
				Help:      "Escrowed payments released to freelancers.",
			}),
			Refunded: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gigpay",
				Subsystem: "escrow",
				Name:      "payments_refunded_total",
				Help:      "Escrowed payments refunded to clients.",
			}),
			DisputesOpened: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "gigpay",
				Subsystem: "escrow",
				Name:      "disputes_opened_total",
				Help:      "Refund requests moving a ledger into dispute.",
			}),
			DisputesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gigpay",
				Subsystem: "escrow",
				Name:      "disputes_resolved_total",
				Help:      "Dispute resolutions, segmented by outcome.",
			}, []string{"resolution"}),
			WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "gigpay",
				Subsystem: "webhook",
				Name:      "deliveries_total",
				Help:      "Inbound gateway callbacks, segmented by provider and outcome.",
			}, []string{"provider", "outcome"}),
		}
		prometheus.MustRegister(
			paymentRegistry.Initiated,
			paymentRegistry.Settled,
			paymentRegistry.Failed,
			paymentRegistry.Released,
			paymentRegistry.Refunded,
			paymentRegistry.DisputesOpened,
			paymentRegistry.DisputesResolved,
			paymentRegistry.WebhookDeliveries,
		)
	})
	return paymentRegistry
}
