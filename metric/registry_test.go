package metric_test

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casemr/gadgetron/metric"
)

func TestNewMetricsRegistry_CoreMetricsRegistered(t *testing.T) {
	r := metric.NewMetricsRegistry()
	require.NotNil(t, r.CoreMetrics())

	// Touch a few metrics so they appear in the gather output.
	r.CoreMetrics().RecordSessionStarted()
	r.CoreMetrics().RecordMessageReceived("1008")
	r.CoreMetrics().RecordStageProcessed("passthrough-0", "ok")
	r.CoreMetrics().SetQueueDepth("passthrough-0", 3)
	r.CoreMetrics().RecordSessionFailed("protocol")

	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["gadgetron_sessions_started_total"])
	assert.True(t, names["gadgetron_sessions_failed_total"])
	assert.True(t, names["gadgetron_messages_received_total"])
	assert.True(t, names["gadgetron_stages_processed_total"])
	assert.True(t, names["gadgetron_queues_depth"])
}

func TestRegistry_ComponentMetrics(t *testing.T) {
	r := metric.NewMetricsRegistry()

	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gadgetron",
		Name:      "custom_total",
	})
	require.NoError(t, r.RegisterCounter("custom", "custom_total", counter))

	// Same component+name pair collides.
	other := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gadgetron",
		Name:      "custom_other_total",
	})
	assert.Error(t, r.RegisterCounter("custom", "custom_total", other))

	assert.True(t, r.Unregister("custom", "custom_total"))
	assert.False(t, r.Unregister("custom", "custom_total"))
}

func TestRegistry_Handler(t *testing.T) {
	r := metric.NewMetricsRegistry()
	r.CoreMetrics().RecordSessionStarted()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "gadgetron_sessions_started_total")
	assert.Contains(t, rec.Body.String(), "gadgetron_sessions_active")
}

func TestActiveSessionsGauge(t *testing.T) {
	r := metric.NewMetricsRegistry()
	m := r.CoreMetrics()

	m.RecordSessionStarted()
	m.RecordSessionStarted()
	m.RecordSessionCompleted()
	m.RecordSessionFailed("io")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), "gadgetron_sessions_active 0")
}
