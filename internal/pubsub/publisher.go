package pubsub

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/architeacher/svc-pubsub-harness/internal/domain"
	"github.com/architeacher/svc-pubsub-harness/internal/infrastructure"
	"github.com/architeacher/svc-pubsub-harness/internal/ports"
	"github.com/architeacher/svc-pubsub-harness/pkg/queue"
)

const tracerName = "github.com/architeacher/svc-pubsub-harness/internal/pubsub"

// Publisher emits generated records onto the shared queue through its own session.
type Publisher struct {
	session *Session
	factory ports.RecordFactory
	logger  infrastructure.Logger
	metrics infrastructure.Metrics
	tracer  trace.Tracer

	published atomic.Int64
}

func NewPublisher(
	session *Session,
	factory ports.RecordFactory,
	logger infrastructure.Logger,
	metrics infrastructure.Metrics,
) *Publisher {
	return &Publisher{
		session: session,
		factory: factory,
		logger:  logger.Component(RolePublisher),
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}
}

// Publish serializes record and sends it to the shared queue, connecting first if needed.
func (p *Publisher) Publish(ctx context.Context, record domain.Record) error {
	channel, err := p.session.EnsureConnection(ctx)
	if err != nil {
		return err
	}

	body, err := record.Marshal()
	if err != nil {
		return fmt.Errorf("failed to serialize record: %w", err)
	}

	queueName := p.session.QueueName()

	ctx, span := p.tracer.Start(ctx, queueName+" publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", queueName),
		),
	)
	defer span.End()

	msg := queue.Message{
		ID:          uuid.NewString(),
		ContentType: domain.RecordContentType,
		Body:        body,
		Headers:     make(map[string]any),
		Timestamp:   time.Now(),
	}

	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(msg.Headers))
	span.SetAttributes(attribute.String("messaging.message.id", msg.ID))

	if err := channel.Publish(ctx, queueName, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")

		return fmt.Errorf("failed to publish record: %w", err)
	}

	p.published.Add(1)
	p.metrics.RecordPublished(ctx, queueName)

	p.logger.Info().
		Str("queue", queueName).
		Str("message_id", msg.ID).
		Str("name", record.Name).
		Int("age", record.Age).
		Str("email", record.Email).
		Msg("published")

	return nil
}

// GenerateAndPublish publishes one generated record every 1/rate seconds until ctx
// is cancelled or a publish fails. It never returns nil.
func (p *Publisher) GenerateAndPublish(ctx context.Context, rate float64) error {
	interval, err := intervalFor(rate)
	if err != nil {
		return err
	}

	pace := newPacer(interval)

	for {
		if err := p.Publish(ctx, p.factory.Generate()); err != nil {
			return err
		}

		if err := pace.wait(ctx); err != nil {
			return err
		}
	}
}

// Published reports how many records were sent.
func (p *Publisher) Published() int64 {
	return p.published.Load()
}

func (p *Publisher) Close() error {
	return p.session.Close()
}
