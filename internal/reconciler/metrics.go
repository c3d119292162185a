package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconcileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Name:      "reconcile_steps_total",
			Help:      "Reconciliation steps by result (advanced, unchanged, error).",
		},
		[]string{"result"},
	)

	itemFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vigil",
		Name:      "moderation_item_failures_total",
		Help:      "Files that exhausted their classification attempts.",
	})

	reviewsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vigil",
		Name:      "reviews_recorded_total",
		Help:      "Human reviews applied to item results.",
	})
)
