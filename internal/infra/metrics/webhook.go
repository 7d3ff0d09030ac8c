package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		webhooksTotal,
		providerRequestDuration,
	)
}

var (
	webhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhooks_total",
			Help: "Inbound provider notifications by outcome (ok/auth_failed/not_found/error).",
		},
		[]string{"outcome"},
	)

	providerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_provider_request_seconds",
			Help:    "Latency of outbound provider calls by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op", "outcome"},
	)
)

func IncWebhook(outcome string) {
	webhooksTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveProviderRequest(op, outcome string, seconds float64) {
	providerRequestDuration.WithLabelValues(norm(op), norm(outcome)).Observe(seconds)
}
