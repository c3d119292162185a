package classify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	classificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vigil",
			Name:      "moderation_classifications_total",
			Help:      "Files classified by outcome (flagged, clean, error).",
		},
		[]string{"outcome"},
	)

	classificationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vigil",
		Name:      "moderation_classification_seconds",
		Help:      "Latency of classifier calls.",
		Buckets:   prometheus.DefBuckets,
	})

	reviewLoopsRouted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vigil",
		Name:      "review_loops_routed_total",
		Help:      "Classifications that activated a human review loop.",
	})
)
