package tasks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var transitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "vigil",
		Name:      "task_transitions_total",
		Help:      "Task status transitions by source and target status.",
	},
	[]string{"from", "to"},
)
