package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(replaysTotal, reviewAlertsTotal) }

var (
	// result: processed|review|failed|exhausted
	replaysTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_replays_total",
			Help:      "Stored callback events re-applied by the replayer or an operator.",
		},
		[]string{"trigger", "result"},
	)

	reviewAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_alerts_total",
			Help:      "Manual review alerts by delivery status.",
		},
		[]string{"status"}, // 'sent', 'error', 'dropped'
	)
)

func IncReplay(trigger, result string) {
	replaysTotal.WithLabelValues(norm(trigger), norm(result)).Inc()
}

func IncReviewAlert(status string) {
	reviewAlertsTotal.WithLabelValues(norm(status)).Inc()
}
