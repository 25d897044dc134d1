package infrastructure

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the extraction service.
// A single instance is created at startup and shared via injection.
type Metrics struct {
	PipelineRuns      *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	StageFailures     *prometheus.CounterVec
	UploadsTotal      *prometheus.CounterVec
	ArchivesBuilt     prometheus.Counter
	WSConnections     prometheus.Gauge
	WSMessagesSent    prometheus.Counter
	WSMessagesDropped prometheus.Counter
}

// NewMetrics registers and returns the service metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PipelineRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docpulse_pipeline_runs_total",
			Help: "Pipeline executions by outcome.",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docpulse_stage_duration_seconds",
			Help:    "Wall-clock duration of each pipeline stage.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docpulse_stage_failures_total",
			Help: "Stage failures by stage key.",
		}, []string{"stage"}),
		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "docpulse_uploads_total",
			Help: "Document uploads by validation outcome.",
		}, []string{"outcome"}),
		ArchivesBuilt: factory.NewCounter(prometheus.CounterOpts{
			Name: "docpulse_archives_built_total",
			Help: "Download archives successfully built.",
		}),
		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "docpulse_websocket_connections",
			Help: "Currently connected WebSocket clients.",
		}),
		WSMessagesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "docpulse_websocket_messages_sent_total",
			Help: "WebSocket messages delivered to clients.",
		}),
		WSMessagesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "docpulse_websocket_messages_dropped_total",
			Help: "WebSocket messages dropped due to slow clients.",
		}),
	}
}
