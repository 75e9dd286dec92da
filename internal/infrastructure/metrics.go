package infrastructure

import (
	"context"
	"fmt"
	"net"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/architeacher/svc-pubsub-harness/internal/config"
)

const (
	metricsNamespace = "pubsub_harness"
)

type (
	Metrics interface {
		RecordPublished(ctx context.Context, queue string)
		RecordConsumed(ctx context.Context, consumer, outcome string)
		RecordProcessingTime(ctx context.Context, duration time.Duration)
		RecordConnect(ctx context.Context, role string, success bool)
		Shutdown(ctx context.Context) error
	}

	OTELMetrics struct {
		meterProvider *sdkmetric.MeterProvider
		meter         metric.Meter
		logger        Logger

		recordsPublishedTotal  metric.Int64Counter
		recordsConsumedTotal   metric.Int64Counter
		brokerConnectsTotal    metric.Int64Counter
		processingTimeDuration metric.Float64Histogram
	}
)

// NewMetrics picks the metrics backend from the telemetry config. Disabled metrics
// yield a NoOp implementation.
func NewMetrics(ctx context.Context, cfg config.ServiceConfig, logger Logger) (Metrics, error) {
	if !cfg.Telemetry.Metrics.Enabled {
		logger.Info().Msg("metrics disabled, using NoOp implementation")

		return &NoOpMetrics{}, nil
	}

	if cfg.Telemetry.Metrics.Exporter == config.MetricsExporterPrometheus {
		return NewPrometheusMetrics(ctx, cfg, logger)
	}

	return NewOTELMetrics(ctx, cfg, logger)
}

func NewOTELMetrics(ctx context.Context, cfg config.ServiceConfig, logger Logger) (*OTELMetrics, error) {
	endpoint := net.JoinHostPort(cfg.Telemetry.OtelGRPCHost, cfg.Telemetry.OtelGRPCPort)

	conn, err := grpc.NewClient(
		endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection to OTEL collector: %w", err)
	}

	exporter, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg.AppConfig)
	if err != nil {
		return nil, err
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(meterProvider)

	provider, err := newOTELMetrics(meterProvider, cfg.AppConfig.ServiceVersion, logger.Component("metrics"))
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("otel_endpoint", endpoint).
		Msg("OTEL metrics provider initialized successfully")

	return provider, nil
}

func newOTELMetrics(meterProvider *sdkmetric.MeterProvider, version string, logger Logger) (*OTELMetrics, error) {
	provider := &OTELMetrics{
		meterProvider: meterProvider,
		meter: meterProvider.Meter(
			metricsNamespace,
			metric.WithInstrumentationVersion(version),
		),
		logger: logger,
	}

	if err := provider.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return provider, nil
}

func (om *OTELMetrics) initializeMetrics() error {
	var err error

	om.recordsPublishedTotal, err = om.meter.Int64Counter(
		"records_published_total",
		metric.WithDescription("Total number of records published"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create records_published_total counter: %w", err)
	}

	om.recordsConsumedTotal, err = om.meter.Int64Counter(
		"records_consumed_total",
		metric.WithDescription("Total number of records settled by consumers"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create records_consumed_total counter: %w", err)
	}

	om.brokerConnectsTotal, err = om.meter.Int64Counter(
		"broker_connects_total",
		metric.WithDescription("Total number of broker connect sequences"),
		metric.WithUnit("{connect}"),
	)
	if err != nil {
		return fmt.Errorf("failed to create broker_connects_total counter: %w", err)
	}

	om.processingTimeDuration, err = om.meter.Float64Histogram(
		"record_processing_seconds",
		metric.WithDescription("Time between receiving a record and settling it"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create record_processing_seconds histogram: %w", err)
	}

	return nil
}

func (om *OTELMetrics) RecordPublished(ctx context.Context, queue string) {
	om.recordsPublishedTotal.Add(ctx, 1,
		metric.WithAttributes(
			QueueAttr(queue),
		),
	)
}

func (om *OTELMetrics) RecordConsumed(ctx context.Context, consumer, outcome string) {
	om.recordsConsumedTotal.Add(ctx, 1,
		metric.WithAttributes(
			ConsumerAttr(consumer),
			OutcomeAttr(outcome),
		),
	)
}

func (om *OTELMetrics) RecordProcessingTime(ctx context.Context, duration time.Duration) {
	om.processingTimeDuration.Record(ctx, duration.Seconds())
}

func (om *OTELMetrics) RecordConnect(ctx context.Context, role string, success bool) {
	om.brokerConnectsTotal.Add(ctx, 1,
		metric.WithAttributes(
			RoleAttr(role),
			StatusAttr(connectStatus(success)),
		),
	)
}

func (om *OTELMetrics) Shutdown(ctx context.Context) error {
	if err := om.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown meter provider: %w", err)
	}

	return nil
}
