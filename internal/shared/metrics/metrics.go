package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()
	factory  = promauto.With(registry)

	analysesCreatedTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "smartqa_analyses_created_total",
		Help: "Total analyses created after quota reservation",
	})

	quotaRejectedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "smartqa_quota_rejected_total",
		Help: "Analysis creations rejected by the quota ledger",
	}, []string{"reason"})

	stageStartedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "smartqa_stage_started_total",
		Help: "Pipeline stage jobs started",
	}, []string{"stage"})

	stageCompletedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "smartqa_stage_completed_total",
		Help: "Pipeline stage jobs completed",
	}, []string{"stage"})

	stageFailedTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "smartqa_stage_failed_total",
		Help: "Pipeline stage jobs failed",
	}, []string{"stage", "reason"})

	stageDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "smartqa_stage_duration_ms",
		Help:    "Pipeline stage duration in milliseconds",
		Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000, 60000, 120000},
	}, []string{"stage"})

	parseLayerTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "smartqa_parse_layer_total",
		Help: "Model outputs recovered, by parser layer",
	}, []string{"layer"})

	jobsReceivedTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "smartqa_jobs_received_total",
		Help: "Queue messages received by the worker",
	})

	jobsDeletedUnrecoverableTotal = factory.NewCounter(prometheus.CounterOpts{
		Name: "smartqa_jobs_deleted_unrecoverable_total",
		Help: "Queue messages deleted without successful processing",
	})
)

// IncAnalysisCreated increments the created counter.
func IncAnalysisCreated() {
	analysesCreatedTotal.Inc()
}

// IncQuotaRejected counts a creation rejected by the quota ledger.
func IncQuotaRejected(reason string) {
	quotaRejectedTotal.WithLabelValues(reason).Inc()
}

// IncStageStarted increments the started counter for stage.
func IncStageStarted(stage string) {
	stageStartedTotal.WithLabelValues(stage).Inc()
}

// IncStageCompleted increments the completed counter for stage.
func IncStageCompleted(stage string) {
	stageCompletedTotal.WithLabelValues(stage).Inc()
}

// IncStageFailed increments the failed counter for stage.
func IncStageFailed(stage, reason string) {
	stageFailedTotal.WithLabelValues(stage, reason).Inc()
}

// ObserveStageDuration records how long a stage ran.
func ObserveStageDuration(stage string, d time.Duration) {
	if d < 0 {
		d = 0
	}
	stageDuration.WithLabelValues(stage).Observe(float64(d.Microseconds()) / 1000.0)
}

// IncParseLayer counts which parser layer recovered a payload.
func IncParseLayer(layer string) {
	parseLayerTotal.WithLabelValues(layer).Inc()
}

func IncJobsReceived() {
	jobsReceivedTotal.Inc()
}

func IncJobsDeletedUnrecoverable() {
	jobsDeletedUnrecoverableTotal.Inc()
}

// Registry exposes the collector registry, mainly for tests.
func Registry() *prometheus.Registry {
	return registry
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
