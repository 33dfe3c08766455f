package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(dbPoolStats, lockContentionTotal) }

var (
	dbPoolStats = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_pool_connections",
			Help:      "Current state of the database connection pool.",
		},
		[]string{"state"}, // 'total', 'idle', 'in_use'
	)

	lockContentionTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_lock_busy_total",
			Help:      "Callbacks that found the per-order lock held by another request.",
		},
	)
)

func SetDBPoolStats(total, idle, inUse int32) {
	dbPoolStats.WithLabelValues("total").Set(float64(total))
	dbPoolStats.WithLabelValues("idle").Set(float64(idle))
	dbPoolStats.WithLabelValues("in_use").Set(float64(inUse))
}

func IncLockBusy() { lockContentionTotal.Inc() }
