package pubsub

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/architeacher/svc-pubsub-harness/internal/adapters"
	"github.com/architeacher/svc-pubsub-harness/internal/domain"
	"github.com/architeacher/svc-pubsub-harness/internal/infrastructure"
	"github.com/architeacher/svc-pubsub-harness/pkg/queue"
)

func newTestPublisher(broker queue.Broker, sink *logSink, metrics infrastructure.Metrics) *Publisher {
	logger := infrastructure.NewTestLogger()
	if sink != nil {
		logger = sink.logger()
	}

	session := NewSession(broker, RolePublisher, testQueue, logger, metrics, WithAutoDelete(false))

	return NewPublisher(session, adapters.NewPersonFactory(42), logger, metrics)
}

func TestPublisher_Publish(t *testing.T) {
	t.Parallel()

	broker := queue.NewMemoryBroker()
	sink := &logSink{}
	metrics := newRecordingMetrics()
	publisher := newTestPublisher(broker, sink, metrics)

	require.NoError(t, publisher.Publish(t.Context(), testRecord))
	t.Cleanup(func() { _ = publisher.Close() })

	assert.Equal(t, int64(1), publisher.Published())
	assert.Equal(t, int64(1), broker.Connects())

	stats, ok := broker.Stats(testQueue)
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.Published)
	assert.Equal(t, 1, stats.Ready)

	entries := sink.entries("published")
	require.Len(t, entries, 1)
	assert.Equal(t, testQueue, entries[0]["queue"])
	assert.Equal(t, testRecord.Name, entries[0]["name"])
	assert.Equal(t, testRecord.Email, entries[0]["email"])
	assert.EqualValues(t, testRecord.Age, entries[0]["age"])
	assert.NotEmpty(t, entries[0]["message_id"])

	// The body on the wire is the JSON encoding of the record.
	conn, err := broker.Connect(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ch, err := conn.Channel(t.Context())
	require.NoError(t, err)

	deliveries, err := ch.Consume(t.Context(), testQueue, "inspector")
	require.NoError(t, err)

	select {
	case d := <-deliveries:
		record, err := domain.ParseRecord(d.Body)
		require.NoError(t, err)
		assert.Equal(t, testRecord, record)
		assert.Equal(t, domain.RecordContentType, d.ContentType)
		assert.Equal(t, entries[0]["message_id"], d.ID)
		require.NoError(t, d.Ack())
	case <-time.After(time.Second):
		t.Fatal("record was not delivered")
	}
}

func TestPublisher_PublishRejectsInvalidRecord(t *testing.T) {
	t.Parallel()

	broker := queue.NewMemoryBroker()
	publisher := newTestPublisher(broker, nil, newRecordingMetrics())
	t.Cleanup(func() { _ = publisher.Close() })

	err := publisher.Publish(t.Context(), domain.Record{Name: "Too Young", Age: 12, Email: "kid@example.com"})
	require.ErrorIs(t, err, domain.ErrInvalidRecord)
	assert.Zero(t, publisher.Published())

	stats, ok := broker.Stats(testQueue)
	require.True(t, ok)
	assert.Zero(t, stats.Published)
}

func TestPublisher_PublishConnectFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	metrics := newRecordingMetrics()
	publisher := newTestPublisher(queue.NewMemoryBroker(queue.WithConnectError(cause)), nil, metrics)

	err := publisher.Publish(t.Context(), testRecord)
	require.ErrorIs(t, err, domain.ErrConnection)
	require.ErrorIs(t, err, cause)
	assert.True(t, domain.IsConnectionError(err))
	assert.Zero(t, publisher.Published())
	assert.Equal(t, 1, metrics.connectCount(RolePublisher+":"+infrastructure.StatusError))
}

func TestPublisher_GenerateAndPublishRespectsRate(t *testing.T) {
	broker := queue.NewMemoryBroker()
	publisher := newTestPublisher(broker, nil, newRecordingMetrics())
	t.Cleanup(func() { _ = publisher.Close() })

	const (
		rate   = 100.0
		window = 300 * time.Millisecond
	)

	ctx, cancel := context.WithTimeout(t.Context(), window)
	defer cancel()

	start := time.Now()
	err := publisher.GenerateAndPublish(ctx, rate)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, context.DeadlineExceeded)

	limit := int64(elapsed.Seconds()*rate) + 1
	assert.LessOrEqual(t, publisher.Published(), limit)
	assert.GreaterOrEqual(t, publisher.Published(), int64(15), "publisher stalled")

	stats, ok := broker.Stats(testQueue)
	require.True(t, ok)
	assert.Equal(t, publisher.Published(), stats.Published)
}

func TestPublisher_GenerateAndPublishInvalidRate(t *testing.T) {
	t.Parallel()

	for _, rate := range []float64{0, -5, math.NaN(), math.Inf(1), 1e-10, 1e12} {
		broker := queue.NewMemoryBroker()
		publisher := newTestPublisher(broker, nil, newRecordingMetrics())

		err := publisher.GenerateAndPublish(t.Context(), rate)
		require.ErrorIs(t, err, domain.ErrInvalidRate)
		assert.Zero(t, broker.Connects(), "no connection for rate %v", rate)
	}
}
