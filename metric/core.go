package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all platform-level metrics (not stage-specific)
type Metrics struct {
	// Session metrics
	SessionsStarted   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsFailed    *prometheus.CounterVec
	ActiveSessions    prometheus.Gauge

	// Message flow metrics
	MessagesReceived *prometheus.CounterVec
	MessagesSent     *prometheus.CounterVec

	// Stage metrics
	StageProcessed *prometheus.CounterVec
	StageDuration  *prometheus.HistogramVec
	QueueDepth     *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gadgetron",
				Subsystem: "sessions",
				Name:      "started_total",
				Help:      "Total number of reconstruction sessions started",
			},
		),

		SessionsCompleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "gadgetron",
				Subsystem: "sessions",
				Name:      "completed_total",
				Help:      "Total number of sessions that closed gracefully",
			},
		),

		SessionsFailed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gadgetron",
				Subsystem: "sessions",
				Name:      "failed_total",
				Help:      "Total number of sessions torn down on error",
			},
			[]string{"class"},
		),

		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "gadgetron",
				Subsystem: "sessions",
				Name:      "active",
				Help:      "Number of sessions currently running",
			},
		),

		MessagesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gadgetron",
				Subsystem: "messages",
				Name:      "received_total",
				Help:      "Total number of frames decoded from the wire",
			},
			[]string{"tag"},
		),

		MessagesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gadgetron",
				Subsystem: "messages",
				Name:      "sent_total",
				Help:      "Total number of frames encoded onto the wire",
			},
			[]string{"tag"},
		),

		StageProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gadgetron",
				Subsystem: "stages",
				Name:      "processed_total",
				Help:      "Total number of messages processed per stage",
			},
			[]string{"stage", "status"},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "gadgetron",
				Subsystem: "stages",
				Name:      "process_duration_seconds",
				Help:      "Stage Process call duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),

		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "gadgetron",
				Subsystem: "queues",
				Name:      "depth",
				Help:      "Current number of messages queued ahead of each stage",
			},
			[]string{"stage"},
		),
	}
}

// RecordSessionStarted increments the session start counters
func (c *Metrics) RecordSessionStarted() {
	c.SessionsStarted.Inc()
	c.ActiveSessions.Inc()
}

// RecordSessionCompleted records a graceful session close
func (c *Metrics) RecordSessionCompleted() {
	c.SessionsCompleted.Inc()
	c.ActiveSessions.Dec()
}

// RecordSessionFailed records a session torn down on error, labelled with
// the error class (config, protocol, processing, io)
func (c *Metrics) RecordSessionFailed(class string) {
	c.SessionsFailed.WithLabelValues(class).Inc()
	c.ActiveSessions.Dec()
}

// RecordMessageReceived increments the received frame counter for a tag
func (c *Metrics) RecordMessageReceived(tag string) {
	c.MessagesReceived.WithLabelValues(tag).Inc()
}

// RecordMessageSent increments the sent frame counter for a tag
func (c *Metrics) RecordMessageSent(tag string) {
	c.MessagesSent.WithLabelValues(tag).Inc()
}

// RecordStageProcessed increments the per-stage processed counter
func (c *Metrics) RecordStageProcessed(stage, status string) {
	c.StageProcessed.WithLabelValues(stage, status).Inc()
}

// ObserveStageDuration records one Process call duration for a stage
func (c *Metrics) ObserveStageDuration(stage string, seconds float64) {
	c.StageDuration.WithLabelValues(stage).Observe(seconds)
}

// SetQueueDepth updates the queue depth gauge for a stage
func (c *Metrics) SetQueueDepth(stage string, depth int) {
	c.QueueDepth.WithLabelValues(stage).Set(float64(depth))
}
