package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vigil",
		Name:      "tasks_created_total",
		Help:      "Tasks registered.",
	})

	moderationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vigil",
		Name:      "moderations_started_total",
		Help:      "Tasks whose moderation was dispatched.",
	})
)
