package tracer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ftracer_events_total",
		Help: "Execution events received from watched modules, by kind",
	}, []string{"kind"})

	recordsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ftracer_records_total",
		Help: "Records appended to cassettes",
	})

	duplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ftracer_duplicates_skipped_total",
		Help: "Resolved values not recorded because they were already seen",
	})

	resolutionErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ftracer_resolution_errors_total",
		Help: "Declared names that could not be resolved in the live frame",
	})

	armDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ftracer_arm_duration_seconds",
		Help:    "Time spent indexing watched modules when arming",
		Buckets: prometheus.DefBuckets,
	})
)

// Stats counts what one tracer session did.
type Stats struct {
	Events           int
	Records          int
	Duplicates       int
	Filtered         int
	ResolutionErrors int
}
