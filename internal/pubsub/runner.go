package pubsub

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/architeacher/svc-pubsub-harness/internal/infrastructure"
)

var ErrNothingToRun = errors.New("runner has neither a publisher nor consumers")

type RunnerOption func(*Runner)

func WithPublishRate(rate float64) RunnerOption {
	return func(r *Runner) {
		r.publishRate = rate
	}
}

func WithConsumeRate(rate float64) RunnerOption {
	return func(r *Runner) {
		r.consumeRate = rate
	}
}

// Runner is a VM: one publisher and a fixed pool of consumers started and stopped
// together. Either side may be absent to run a single role.
type Runner struct {
	name        string
	publisher   *Publisher
	consumers   []*Consumer
	publishRate float64
	consumeRate float64
	logger      infrastructure.Logger
}

func NewRunner(
	name string,
	publisher *Publisher,
	consumers []*Consumer,
	logger infrastructure.Logger,
	opts ...RunnerOption,
) *Runner {
	r := &Runner{
		name:        name,
		publisher:   publisher,
		consumers:   consumers,
		publishRate: DefaultPublishRate,
		consumeRate: DefaultConsumeRate,
	}

	for _, opt := range opts {
		opt(r)
	}

	r.logger = logger.Component("vm")
	r.logger.Logger = r.logger.With().Str("vm", name).Logger()

	return r
}

func (r *Runner) Name() string {
	return r.name
}

func (r *Runner) Publisher() *Publisher {
	return r.publisher
}

func (r *Runner) Consumers() []*Consumer {
	return r.consumers
}

// Run starts every task and waits for all of them to end. The first task to fail
// cancels its siblings and its error is returned. Cancelling ctx, or its deadline
// passing, is a clean stop: Run returns nil once every task has unwound and closed
// its session.
func (r *Runner) Run(ctx context.Context) error {
	if r.publisher == nil && len(r.consumers) == 0 {
		return ErrNothingToRun
	}

	if _, err := intervalFor(r.publishRate); r.publisher != nil && err != nil {
		return err
	}

	if _, err := intervalFor(r.consumeRate); len(r.consumers) > 0 && err != nil {
		return err
	}

	r.logger.Info().
		Bool("publisher", r.publisher != nil).
		Int("consumers", len(r.consumers)).
		Float64("publish_rate", r.publishRate).
		Float64("consume_rate", r.consumeRate).
		Msg("vm starting")

	g, gctx := errgroup.WithContext(ctx)

	if r.publisher != nil {
		g.Go(func() error {
			defer r.closeSession(RolePublisher, r.publisher.Close)

			return r.publisher.GenerateAndPublish(gctx, r.publishRate)
		})
	}

	for _, consumer := range r.consumers {
		g.Go(func() error {
			defer r.closeSession(consumer.Tag(), consumer.Close)

			return consumer.Consume(gctx, r.consumeRate)
		})
	}

	err := g.Wait()

	r.logSummary()

	if ctx.Err() != nil && (err == nil || errors.Is(err, ctx.Err())) {
		r.logger.Info().Msg("vm stopped")

		return nil
	}

	if err == nil {
		return nil
	}

	r.logger.Error().Err(err).Msg("vm failed")

	return fmt.Errorf("vm %q: %w", r.name, err)
}

func (r *Runner) closeSession(owner string, closeFn func() error) {
	if err := closeFn(); err != nil {
		r.logger.Error().Err(err).Str("owner", owner).Msg("failed to close broker session")
	}
}

func (r *Runner) logSummary() {
	event := r.logger.Info()

	if r.publisher != nil {
		event = event.Int64("published", r.publisher.Published())
	}

	var acked, dropped int64
	for _, c := range r.consumers {
		acked += c.Acked()
		dropped += c.Dropped()
	}

	event.
		Int64("acked", acked).
		Int64("dropped", dropped).
		Msg("vm summary")
}
