package infrastructure

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/architeacher/svc-pubsub-harness/internal/config"
)

// PrometheusMetrics keeps its collectors in a private registry and pushes them to a
// Pushgateway, since the harness never listens for scrapes.
type PrometheusMetrics struct {
	registry *prometheus.Registry
	pusher   *push.Pusher
	logger   Logger

	recordsPublishedTotal *prometheus.CounterVec
	recordsConsumedTotal  *prometheus.CounterVec
	brokerConnectsTotal   *prometheus.CounterVec
	processingTime        prometheus.Histogram

	stop     context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewPrometheusMetrics(ctx context.Context, cfg config.ServiceConfig, logger Logger) (*PrometheusMetrics, error) {
	logger = logger.Component("metrics")

	pm := newPrometheusMetrics(logger)

	pm.pusher = push.New(cfg.Telemetry.Metrics.PushGatewayURL, cfg.AppConfig.ServiceName).
		Gatherer(pm.registry).
		Grouping("instance", cfg.Harness.VMName)

	if cfg.Telemetry.Metrics.PushInterval > 0 {
		pm.startPushing(ctx, cfg.Telemetry.Metrics.PushInterval)
	}

	logger.Info().
		Str("pushgateway", cfg.Telemetry.Metrics.PushGatewayURL).
		Dur("interval", cfg.Telemetry.Metrics.PushInterval).
		Msg("Prometheus metrics initialized successfully")

	return pm, nil
}

func newPrometheusMetrics(logger Logger) *PrometheusMetrics {
	pm := &PrometheusMetrics{
		registry: prometheus.NewRegistry(),
		logger:   logger,
		recordsPublishedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_published_total",
			Help:      "Total number of records published",
		}, []string{"queue"}),
		recordsConsumedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_consumed_total",
			Help:      "Total number of records settled by consumers",
		}, []string{"consumer", outcomeKey}),
		brokerConnectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "broker_connects_total",
			Help:      "Total number of broker connect sequences",
		}, []string{roleKey, statusKey}),
		processingTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "record_processing_seconds",
			Help:      "Time between receiving a record and settling it",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),
		stop: func() {},
	}

	pm.registry.MustRegister(
		pm.recordsPublishedTotal,
		pm.recordsConsumedTotal,
		pm.brokerConnectsTotal,
		pm.processingTime,
	)

	return pm
}

func (pm *PrometheusMetrics) startPushing(ctx context.Context, interval time.Duration) {
	ctx, pm.stop = context.WithCancel(context.WithoutCancel(ctx))

	pm.wg.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := pm.pusher.PushContext(ctx); err != nil && ctx.Err() == nil {
					pm.logger.Warn().Err(err).Msg("failed to push metrics")
				}
			}
		}
	})
}

func (pm *PrometheusMetrics) RecordPublished(_ context.Context, queue string) {
	pm.recordsPublishedTotal.WithLabelValues(queue).Inc()
}

func (pm *PrometheusMetrics) RecordConsumed(_ context.Context, consumer, outcome string) {
	pm.recordsConsumedTotal.WithLabelValues(consumer, outcome).Inc()
}

func (pm *PrometheusMetrics) RecordProcessingTime(_ context.Context, duration time.Duration) {
	pm.processingTime.Observe(duration.Seconds())
}

func (pm *PrometheusMetrics) RecordConnect(_ context.Context, role string, success bool) {
	pm.brokerConnectsTotal.WithLabelValues(role, connectStatus(success)).Inc()
}

// Shutdown stops the periodic push and pushes the final values once.
func (pm *PrometheusMetrics) Shutdown(ctx context.Context) error {
	var err error

	pm.stopOnce.Do(func() {
		pm.stop()
		pm.wg.Wait()

		if pm.pusher == nil {
			return
		}

		if pushErr := pm.pusher.PushContext(ctx); pushErr != nil {
			err = fmt.Errorf("failed to push final metrics: %w", pushErr)
		}
	})

	return err
}
