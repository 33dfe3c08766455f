// File: internal/infra/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		callbacksTotal,
		callbackDuration,
		signatureRejectsTotal,
	)
}

var (
	// outcome: applied|recorded|duplicate|ignored|unresolved|review|failed|unrecognized
	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Inbound gateway callbacks by gateway, format and processing outcome.",
		},
		[]string{"gateway", "format", "outcome"},
	)

	callbackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "callback_duration_seconds",
			Help:      "Time spent handling one gateway callback.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"gateway"},
	)

	// check: invalid|missing
	signatureRejectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_signature_rejects_total",
			Help:      "Callbacks rejected with 401 because of signature or token checks.",
		},
		[]string{"gateway", "format", "check"},
	)
)

func IncCallback(gateway, format, outcome string) {
	callbacksTotal.WithLabelValues(norm(gateway), norm(format), norm(outcome)).Inc()
}

func ObserveCallback(gateway string, d time.Duration) {
	callbackDuration.WithLabelValues(norm(gateway)).Observe(d.Seconds())
}

func IncSignatureReject(gateway, format, check string) {
	signatureRejectsTotal.WithLabelValues(norm(gateway), norm(format), norm(check)).Inc()
}
