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
	"github.com/architeacher/svc-pubsub-harness/pkg/queue"
)

// MalformedPolicy decides what a consumer does with a body that is not a Record.
type MalformedPolicy string

const (
	// DropMalformed acknowledges and skips the delivery, then keeps consuming.
	DropMalformed MalformedPolicy = "drop"
	// FailMalformed acknowledges the delivery and ends the consume loop with the parse error.
	FailMalformed MalformedPolicy = "fail"
)

type ConsumerOption func(*Consumer)

func WithConsumerTag(tag string) ConsumerOption {
	return func(c *Consumer) {
		c.tag = tag
	}
}

func WithMalformedPolicy(policy MalformedPolicy) ConsumerOption {
	return func(c *Consumer) {
		c.policy = policy
	}
}

// Consumer is one competing receiver on the shared queue.
type Consumer struct {
	session *Session
	tag     string
	policy  MalformedPolicy
	logger  infrastructure.Logger
	metrics infrastructure.Metrics
	tracer  trace.Tracer

	acked   atomic.Int64
	dropped atomic.Int64
}

func NewConsumer(
	session *Session,
	logger infrastructure.Logger,
	metrics infrastructure.Metrics,
	opts ...ConsumerOption,
) *Consumer {
	c := &Consumer{
		session: session,
		tag:     "consumer-" + uuid.NewString(),
		policy:  DropMalformed,
		metrics: metrics,
		tracer:  otel.Tracer(tracerName),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger = logger.Component(RoleConsumer)
	c.logger.Logger = c.logger.With().Str("consumer", c.tag).Logger()

	return c
}

func (c *Consumer) Tag() string {
	return c.tag
}

// Consume processes deliveries one at a time until ctx is cancelled or a delivery
// cannot be settled. Each record is acknowledged only after the 1/rate processing
// delay, so cancelling mid-delay leaves it unacknowledged.
func (c *Consumer) Consume(ctx context.Context, rate float64) error {
	delay, err := intervalFor(rate)
	if err != nil {
		return err
	}

	channel, err := c.session.EnsureConnection(ctx)
	if err != nil {
		return err
	}

	if err := c.session.DeclareQueue(ctx); err != nil {
		return err
	}

	deliveries, err := channel.Consume(ctx, c.session.QueueName(), c.tag)
	if err != nil {
		return domain.NewConnectionError(RoleConsumer, domain.StageChannel, err)
	}

	c.logger.Debug().Str("queue", c.session.QueueName()).Msg("consuming")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				return queue.ErrDeliveriesClosed
			}

			if err := c.handle(ctx, d, delay); err != nil {
				return err
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d queue.Delivery, delay time.Duration) error {
	received := time.Now()

	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier(d.Headers))
	ctx, span := c.tracer.Start(ctx, d.Queue+" process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", d.Queue),
			attribute.String("messaging.message.id", d.ID),
			attribute.String("messaging.consumer.id", c.tag),
		),
	)
	defer span.End()

	record, err := domain.ParseRecord(d.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed record")

		return c.handleMalformed(ctx, d, err)
	}

	c.logger.Info().
		Str("message_id", d.ID).
		Bool("redelivered", d.Redelivered).
		Str("name", record.Name).
		Int("age", record.Age).
		Str("email", record.Email).
		Msg("consumed")

	if err := pause(ctx, delay); err != nil {
		return err
	}

	if err := d.Ack(); err != nil {
		span.RecordError(err)

		return fmt.Errorf("failed to acknowledge message %s: %w", d.ID, err)
	}

	c.acked.Add(1)
	c.metrics.RecordConsumed(ctx, c.tag, infrastructure.OutcomeAcked)
	c.metrics.RecordProcessingTime(ctx, time.Since(received))

	return nil
}

func (c *Consumer) handleMalformed(ctx context.Context, d queue.Delivery, parseErr error) error {
	c.logger.Error().
		Err(parseErr).
		Str("message_id", d.ID).
		Str("policy", string(c.policy)).
		Msg("malformed record")

	if err := d.Ack(); err != nil {
		return fmt.Errorf("failed to ack malformed message %s: %w", d.ID, err)
	}

	c.dropped.Add(1)
	c.metrics.RecordConsumed(ctx, c.tag, infrastructure.OutcomeDropped)

	if c.policy == FailMalformed {
		return parseErr
	}

	return nil
}

// Acked reports how many records were processed and acknowledged.
func (c *Consumer) Acked() int64 {
	return c.acked.Load()
}

// Dropped reports how many malformed deliveries were acknowledged and skipped.
func (c *Consumer) Dropped() int64 {
	return c.dropped.Load()
}

func (c *Consumer) Close() error {
	return c.session.Close()
}
