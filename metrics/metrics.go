package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lattice"

var (
	Registry = prometheus.NewRegistry()

	// IndexWrites counts index row writes by index table and op ("add", "remove").
	IndexWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "writes_total",
			Help:      "Index row writes.",
		},
		[]string{"table", "op"},
	)

	// IndexSkippedWrites counts index mutations that changed nothing and
	// were not written.
	IndexSkippedWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "index",
			Name:      "skipped_writes_total",
			Help:      "Index mutations skipped because membership was unchanged.",
		},
		[]string{"table"},
	)

	// Compensations counts compensation runs by primary table and outcome
	// ("ok", "failed").
	Compensations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "compensations_total",
			Help:      "Compensation runs after failed primary writes.",
		},
		[]string{"table", "outcome"},
	)

	// StreamRecords counts change-stream records by event name and outcome.
	StreamRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "records_total",
			Help:      "Change-stream records processed for index repair.",
		},
		[]string{"event", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		IndexWrites,
		IndexSkippedWrites,
		Compensations,
		StreamRecords,
	)
}
