package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(activationsTotal)
}

// result: created|extended|already_applied|failed
var activationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "subscription_activations_total",
		Help:      "Subscription activation effects by result.",
	},
	[]string{"result"},
)

func IncActivation(result string) {
	activationsTotal.WithLabelValues(norm(result)).Inc()
}
