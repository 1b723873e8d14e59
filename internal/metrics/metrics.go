package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PhaseExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowengine_phase_executions_total",
		Help: "Phase executions by flow type, phase and result kind",
	}, []string{"flow_type", "phase", "result"})

	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "flowengine_phase_duration_seconds",
		Help:    "Wall time of a single phase execution",
		Buckets: prometheus.DefBuckets,
	}, []string{"flow_type", "phase"})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowengine_decisions_total",
		Help: "Decision provider verdicts by action",
	}, []string{"flow_type", "action"})

	BulkChunksCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowengine_bulk_chunks_committed_total",
		Help: "Bulk mutation chunks committed",
	})

	BulkChunksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowengine_bulk_chunks_failed_total",
		Help: "Bulk mutation chunks rolled back",
	})

	RepairsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowengine_repairs_applied_total",
		Help: "Corruption repairs applied by option",
	}, []string{"option"})

	SmartDiscoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowengine_smart_discoveries_total",
		Help: "Smart discovery attempts by heuristic and outcome",
	}, []string{"heuristic", "outcome"})

	BackgroundJobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowengine_background_jobs_total",
		Help: "Background jobs processed by type and outcome",
	}, []string{"job_type", "outcome"})
)
