package review

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var workflowsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "vigil",
	Name:      "review_workflows_created_total",
	Help:      "Review workflows created for tasks.",
})
