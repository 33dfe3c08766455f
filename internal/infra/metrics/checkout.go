package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		checkoutsTotal,
		gatewayRequestDuration,
	)
}

var (
	// result: created|gateway_error|gateway_rejected|invalid
	checkoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkouts_total",
			Help:      "Checkout attempts by payment method and result.",
		},
		[]string{"method", "result"},
	)

	gatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Latency of outbound payment gateway API calls.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"gateway", "operation", "success"},
	)
)

func IncCheckout(method, result string) {
	checkoutsTotal.WithLabelValues(norm(method), norm(result)).Inc()
}

func ObserveGatewayRequest(gateway, operation string, d time.Duration, success bool) {
	ok := "false"
	if success {
		ok = "true"
	}
	gatewayRequestDuration.WithLabelValues(norm(gateway), norm(operation), ok).Observe(d.Seconds())
}
