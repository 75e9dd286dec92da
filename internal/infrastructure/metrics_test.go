package infrastructure

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/architeacher/svc-pubsub-harness/internal/config"
)

func TestNewMetrics_DisabledIsNoOp(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics(t.Context(), config.ServiceConfig{}, NewTestLogger())
	require.NoError(t, err)

	assert.IsType(t, &NoOpMetrics{}, m)
	assert.NoError(t, m.Shutdown(t.Context()))
}

func TestPrometheusMetrics_Record(t *testing.T) {
	t.Parallel()

	pm := newPrometheusMetrics(NewTestLogger())
	ctx := t.Context()

	pm.RecordPublished(ctx, "person_queue")
	pm.RecordPublished(ctx, "person_queue")
	pm.RecordConsumed(ctx, "c-1", OutcomeAcked)
	pm.RecordConsumed(ctx, "c-1", OutcomeDropped)
	pm.RecordConsumed(ctx, "c-2", OutcomeAcked)
	pm.RecordConnect(ctx, "publisher", true)
	pm.RecordConnect(ctx, "consumer", false)
	pm.RecordProcessingTime(ctx, 50*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(pm.recordsPublishedTotal.WithLabelValues("person_queue")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pm.recordsConsumedTotal.WithLabelValues("c-1", OutcomeAcked)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pm.recordsConsumedTotal.WithLabelValues("c-1", OutcomeDropped)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(pm.brokerConnectsTotal.WithLabelValues("consumer", StatusError)), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(pm.processingTime))

	// Shutdown without a pusher is a no-op.
	assert.NoError(t, pm.Shutdown(ctx))
}

func TestPrometheusMetrics_PushesToGateway(t *testing.T) {
	t.Parallel()

	var (
		mutex  sync.Mutex
		bodies []string
		paths  []string
	)

	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		mutex.Lock()
		bodies = append(bodies, string(body))
		paths = append(paths, r.URL.Path)
		mutex.Unlock()

		w.WriteHeader(http.StatusOK)
	}))
	defer gateway.Close()

	cfg := config.ServiceConfig{
		AppConfig: config.AppConfig{ServiceName: "svc-pubsub-harness"},
		Harness:   config.HarnessConfig{VMName: "vm-1"},
		Telemetry: config.Telemetry{
			Metrics: config.Metrics{
				Enabled:        true,
				Exporter:       config.MetricsExporterPrometheus,
				PushGatewayURL: gateway.URL,
				PushInterval:   10 * time.Millisecond,
			},
		},
	}

	m, err := NewMetrics(t.Context(), cfg, NewTestLogger())
	require.NoError(t, err)
	require.IsType(t, &PrometheusMetrics{}, m)

	m.RecordPublished(t.Context(), "person_queue")

	assert.Eventually(t, func() bool {
		mutex.Lock()
		defer mutex.Unlock()

		return len(bodies) > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))

	mutex.Lock()
	defer mutex.Unlock()

	assert.True(t, strings.HasPrefix(paths[0], "/metrics/job/svc-pubsub-harness/instance/vm-1"), paths[0])
	assert.Contains(t, strings.Join(bodies, ""), metricsNamespace+"_records_published_total")
}

func TestOTELMetrics_Record(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	om, err := newOTELMetrics(provider, "test", NewTestLogger())
	require.NoError(t, err)

	ctx := t.Context()
	om.RecordPublished(ctx, "person_queue")
	om.RecordConsumed(ctx, "c-1", OutcomeAcked)
	om.RecordConnect(ctx, "publisher", true)
	om.RecordProcessingTime(ctx, 10*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := make(map[string]bool)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names[m.Name] = true
	}

	assert.True(t, names["records_published_total"])
	assert.True(t, names["records_consumed_total"])
	assert.True(t, names["broker_connects_total"])
	assert.True(t, names["record_processing_seconds"])

	require.NoError(t, om.Shutdown(ctx))
}
