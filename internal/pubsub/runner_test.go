package pubsub

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/architeacher/svc-pubsub-harness/internal/adapters"
	"github.com/architeacher/svc-pubsub-harness/internal/domain"
	"github.com/architeacher/svc-pubsub-harness/internal/infrastructure"
	"github.com/architeacher/svc-pubsub-harness/pkg/queue"
)

type vmFixture struct {
	publisherBroker queue.Broker
	consumerBroker  queue.Broker
	consumers       int
	withPublisher   bool
	sink            *logSink
}

func (f vmFixture) build(opts ...RunnerOption) *Runner {
	logger := infrastructure.NewTestLogger()
	if f.sink != nil {
		logger = f.sink.logger()
	}

	metrics := &infrastructure.NoOpMetrics{}

	var publisher *Publisher
	if f.withPublisher {
		session := NewSession(f.publisherBroker, RolePublisher, testQueue, logger, metrics, WithAutoDelete(false))
		publisher = NewPublisher(session, adapters.NewPersonFactory(7), logger, metrics)
	}

	consumers := make([]*Consumer, 0, f.consumers)
	for i := range f.consumers {
		session := NewSession(f.consumerBroker, RoleConsumer, testQueue, logger, metrics, WithAutoDelete(false))
		consumers = append(consumers, NewConsumer(session, logger, metrics, WithConsumerTag(fmt.Sprintf("consumer-%d", i+1))))
	}

	return NewRunner("VM 1", publisher, consumers, logger, opts...)
}

func runAsync(ctx context.Context, r *Runner) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- r.Run(ctx)
	}()

	return done
}

func awaitRun(t *testing.T, done <-chan error) error {
	t.Helper()

	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("runner did not stop")

		return nil
	}
}

func totalAcked(r *Runner) int64 {
	var acked int64
	for _, c := range r.Consumers() {
		acked += c.Acked()
	}

	return acked
}

func TestRunner_NothingToRun(t *testing.T) {
	t.Parallel()

	r := NewRunner("empty", nil, nil, infrastructure.NewTestLogger())

	require.ErrorIs(t, r.Run(t.Context()), ErrNothingToRun)
}

func TestRunner_InvalidRates(t *testing.T) {
	t.Parallel()

	broker := queue.NewMemoryBroker()
	fixture := vmFixture{publisherBroker: broker, consumerBroker: broker, consumers: 1, withPublisher: true}

	require.ErrorIs(t, fixture.build(WithPublishRate(0)).Run(t.Context()), domain.ErrInvalidRate)
	require.ErrorIs(t, fixture.build(WithConsumeRate(-1)).Run(t.Context()), domain.ErrInvalidRate)
	assert.Zero(t, broker.Connects())
}

func TestRunner_CompetingConsumersShareTheQueue(t *testing.T) {
	const records = 30

	broker := queue.NewMemoryBroker()
	sink := &logSink{}

	seed := NewPublisher(
		NewSession(broker, RolePublisher, testQueue, sink.logger(), &infrastructure.NoOpMetrics{}, WithAutoDelete(false)),
		adapters.NewPersonFactory(1), sink.logger(), &infrastructure.NoOpMetrics{},
	)
	t.Cleanup(func() { _ = seed.Close() })

	factory := adapters.NewPersonFactory(1)
	for range records {
		require.NoError(t, seed.Publish(t.Context(), factory.Generate()))
	}

	r := vmFixture{consumerBroker: broker, consumers: 3, sink: sink}.build(WithConsumeRate(500))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	done := runAsync(ctx, r)

	require.Eventually(t, func() bool {
		return totalAcked(r) == records
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, awaitRun(t, done))

	consumed := sink.entries("consumed")
	require.Len(t, consumed, records)

	seen := make(map[string]string, records)
	for _, entry := range consumed {
		id, _ := entry["message_id"].(string)
		require.NotEmpty(t, id)

		if owner, dup := seen[id]; dup {
			t.Fatalf("message %s consumed by %s and %v", id, owner, entry["consumer"])
		}

		seen[id], _ = entry["consumer"].(string)
	}

	stats, ok := broker.Stats(testQueue)
	require.True(t, ok)
	assert.Equal(t, int64(records), stats.Acked)
	assert.Zero(t, stats.Ready)
	assert.Zero(t, stats.Unacked)
}

func TestRunner_CancellationClosesEverySession(t *testing.T) {
	broker := &countingBroker{Broker: queue.NewMemoryBroker()}
	sink := &logSink{}
	r := vmFixture{publisherBroker: broker, consumerBroker: broker, consumers: 3, withPublisher: true, sink: sink}.build()

	ctx, cancel := context.WithCancel(t.Context())
	done := runAsync(ctx, r)

	require.Eventually(t, func() bool {
		return broker.open.Load() == 4 && r.Publisher().Published() > 0
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, awaitRun(t, done))

	assert.Zero(t, broker.open.Load(), "every session closed")

	published := r.Publisher().Published()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, published, r.Publisher().Published(), "no publishing after Run returned")

	summary := sink.entries("vm summary")
	require.Len(t, summary, 1)
	assert.EqualValues(t, published, summary[0]["published"])
	assert.Len(t, sink.entries("vm stopped"), 1)
}

func TestRunner_DeadlineIsACleanStop(t *testing.T) {
	broker := &countingBroker{Broker: queue.NewMemoryBroker()}
	sink := &logSink{}
	r := vmFixture{publisherBroker: broker, consumerBroker: broker, consumers: 2, withPublisher: true, sink: sink}.build()

	ctx, cancel := context.WithTimeout(t.Context(), 150*time.Millisecond)
	defer cancel()

	require.NoError(t, awaitRun(t, runAsync(ctx, r)))

	assert.Zero(t, broker.open.Load())
	assert.Positive(t, r.Publisher().Published())
	assert.Len(t, sink.entries("vm stopped"), 1)
	assert.Empty(t, sink.entries("vm failed"))
}

func TestRunner_FailureCancelsSiblings(t *testing.T) {
	cause := errors.New("connection refused")
	consumerBroker := &countingBroker{Broker: queue.NewMemoryBroker()}
	sink := &logSink{}

	r := vmFixture{
		publisherBroker: queue.NewMemoryBroker(queue.WithConnectError(cause), queue.WithConnectDelay(50*time.Millisecond)),
		consumerBroker:  consumerBroker,
		consumers:       2,
		withPublisher:   true,
		sink:            sink,
	}.build()

	err := awaitRun(t, runAsync(t.Context(), r))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), `vm "VM 1"`)

	var connErr *domain.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, RolePublisher, connErr.Role)
	assert.Equal(t, domain.StageDial, connErr.Stage)

	assert.Zero(t, consumerBroker.open.Load(), "consumers torn down with the failing publisher")
	assert.Len(t, sink.entries("vm failed"), 1)
}

func TestRunner_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("timing-based end-to-end run")
	}

	broker := queue.NewMemoryBroker()
	r := vmFixture{publisherBroker: broker, consumerBroker: broker, consumers: 2, withPublisher: true}.build(
		WithPublishRate(DefaultPublishRate),
		WithConsumeRate(DefaultConsumeRate),
	)

	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()

	require.NoError(t, r.Run(ctx))

	published := r.Publisher().Published()
	assert.GreaterOrEqual(t, published, int64(90))
	assert.LessOrEqual(t, published, int64(101))

	for _, c := range r.Consumers() {
		assert.GreaterOrEqual(t, c.Acked(), int64(10), c.Tag())
		assert.LessOrEqual(t, c.Acked(), int64(21), c.Tag())
	}

	stats, ok := broker.Stats(testQueue)
	require.True(t, ok)
	assert.Zero(t, stats.Unacked, "in-flight records are returned to the queue")
	assert.Equal(t, totalAcked(r), stats.Acked)
	assert.Equal(t, published, stats.Acked+int64(stats.Ready))
}
