package reports

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var reportSeconds = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "vigil",
		Name:      "report_seconds",
		Help:      "Duration of report and export computations.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"operation"},
)

func observe(operation string, start time.Time) {
	reportSeconds.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
