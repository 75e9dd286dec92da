package infrastructure

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/architeacher/svc-pubsub-harness/internal/config"
)

func TestInitGlobalTracer_Stdout(t *testing.T) {
	shutdown, err := InitGlobalTracer(t.Context(), config.Telemetry{
		ExporterType: ExporterStdout,
		Traces:       config.Traces{Enabled: true, SamplerRatio: 0},
	}, config.AppConfig{ServiceName: "svc-pubsub-harness"})
	require.NoError(t, err)

	assert.NoError(t, shutdown(t.Context()))
}

func TestInitGlobalTracer_UnknownExporter(t *testing.T) {
	t.Parallel()

	_, err := InitGlobalTracer(t.Context(), config.Telemetry{ExporterType: "zipkin"}, config.AppConfig{})
	assert.ErrorContains(t, err, "unsupported trace exporter")
}
