package pubsub

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/architeacher/svc-pubsub-harness/internal/domain"
	"github.com/architeacher/svc-pubsub-harness/internal/infrastructure"
	"github.com/architeacher/svc-pubsub-harness/pkg/queue"
)

// logSink captures JSON log lines written concurrently.
type logSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *logSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.buf.Write(p)
}

func (s *logSink) logger() infrastructure.Logger {
	return infrastructure.Logger{Logger: zerolog.New(s)}
}

// entries returns every captured line whose message equals msg.
func (s *logSink) entries(msg string) []map[string]any {
	s.mu.Lock()
	data := append([]byte(nil), s.buf.Bytes()...)
	s.mu.Unlock()

	var out []map[string]any

	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}

		if entry["message"] == msg {
			out = append(out, entry)
		}
	}

	return out
}

// recordingMetrics counts what the code under test reports.
type recordingMetrics struct {
	mu             sync.Mutex
	published      int
	consumed       map[string]int
	connects       map[string]int
	processingTime []time.Duration
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		consumed: make(map[string]int),
		connects: make(map[string]int),
	}
}

func (m *recordingMetrics) RecordPublished(_ context.Context, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.published++
}

func (m *recordingMetrics) RecordConsumed(_ context.Context, _, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consumed[outcome]++
}

func (m *recordingMetrics) RecordProcessingTime(_ context.Context, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processingTime = append(m.processingTime, d)
}

func (m *recordingMetrics) RecordConnect(_ context.Context, role string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := role + ":" + infrastructure.StatusError
	if success {
		key = role + ":" + infrastructure.StatusSuccess
	}

	m.connects[key]++
}

func (m *recordingMetrics) Shutdown(_ context.Context) error {
	return nil
}

func (m *recordingMetrics) connectCount(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.connects[key]
}

func (m *recordingMetrics) consumedCount(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.consumed[outcome]
}

// countingBroker tracks how many of its connections are still open.
type countingBroker struct {
	queue.Broker

	open atomic.Int64
}

func (b *countingBroker) Connect(ctx context.Context) (queue.Connection, error) {
	conn, err := b.Broker.Connect(ctx)
	if err != nil {
		return nil, err
	}

	b.open.Add(1)

	return &countingConnection{Connection: conn, broker: b}, nil
}

type countingConnection struct {
	queue.Connection

	broker *countingBroker
	once   sync.Once
}

func (c *countingConnection) Close() error {
	c.once.Do(func() {
		c.broker.open.Add(-1)
	})

	return c.Connection.Close()
}

// stubBroker hands out a single scripted channel and can fail any connect stage.
type stubBroker struct {
	mu          sync.Mutex
	dials       int
	dialErrs    []error
	channelErr  error
	declareErr  error
	deliveries  chan queue.Delivery
	declares    atomic.Int64
	closedConns atomic.Int64
}

func newStubBroker() *stubBroker {
	return &stubBroker{
		deliveries: make(chan queue.Delivery),
	}
}

func (b *stubBroker) Connect(_ context.Context) (queue.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.dials++

	if len(b.dialErrs) > 0 {
		err := b.dialErrs[0]
		b.dialErrs = b.dialErrs[1:]

		return nil, err
	}

	return &stubConnection{broker: b}, nil
}

func (b *stubBroker) dialCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.dials
}

type stubConnection struct {
	broker *stubBroker
	closed atomic.Bool
}

func (c *stubConnection) Channel(_ context.Context) (queue.Channel, error) {
	if c.broker.channelErr != nil {
		return nil, c.broker.channelErr
	}

	return &stubChannel{broker: c.broker}, nil
}

func (c *stubConnection) IsClosed() bool {
	return c.closed.Load()
}

func (c *stubConnection) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.broker.closedConns.Add(1)
	}

	return nil
}

type stubChannel struct {
	broker *stubBroker
}

func (ch *stubChannel) DeclareQueue(_ context.Context, _ string, _ bool) error {
	ch.broker.declares.Add(1)

	return ch.broker.declareErr
}

func (ch *stubChannel) Publish(_ context.Context, _ string, _ queue.Message) error {
	return nil
}

func (ch *stubChannel) Consume(_ context.Context, _, _ string) (<-chan queue.Delivery, error) {
	return ch.broker.deliveries, nil
}

func (ch *stubChannel) Close() error {
	return nil
}

// timedAcker records when a delivery was settled.
type timedAcker struct {
	mu       sync.Mutex
	ackedAt  time.Time
	rejected bool
	done     chan struct{}
}

func newTimedAcker() *timedAcker {
	return &timedAcker{done: make(chan struct{})}
}

func (a *timedAcker) Ack(_ bool) error {
	a.mu.Lock()
	a.ackedAt = time.Now()
	a.mu.Unlock()

	close(a.done)

	return nil
}

func (a *timedAcker) Nack(_, _ bool) error {
	return a.Reject(false)
}

func (a *timedAcker) Reject(_ bool) error {
	a.mu.Lock()
	a.rejected = true
	a.mu.Unlock()

	close(a.done)

	return nil
}

func (a *timedAcker) acked() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.ackedAt
}

var testRecord = domain.Record{Name: "Ada Lovelace", Age: 36, Email: "ada@example.com"}
