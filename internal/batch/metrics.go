package batch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Name:      "batch_items_total",
			Help:      "Batch items finished by outcome after retries.",
		},
		[]string{"outcome"},
	)

	executionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vigil",
		Name:      "batch_executions_active",
		Help:      "Executions currently running in this process.",
	})
)
