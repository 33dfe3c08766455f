package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		transitionsTotal,
		revenueTotal,
		stalePending,
	)
}

var (
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_transitions_total",
			Help:      "Committed transaction status changes.",
		},
		[]string{"from", "to"},
	)

	revenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revenue_total",
			Help:      "The total monetary value of activated transactions, labeled by currency.",
		},
		[]string{"currency"},
	)

	stalePending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_pending_transactions",
			Help:      "Pending transactions older than the staleness threshold at the last scan.",
		},
	)
)

func IncTransition(from, to string) {
	transitionsTotal.WithLabelValues(norm(from), norm(to)).Inc()
}

func AddRevenue(currency string, amount int64) {
	revenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func SetStalePending(n int) { stalePending.Set(float64(n)) }
