package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var errUnknownDelivery = errors.New("unknown delivery tag")

// Ensure MemoryBroker implements the Broker interface
var _ Broker = (*MemoryBroker)(nil)

// QueueStats is a snapshot of a MemoryBroker queue.
type QueueStats struct {
	Published int64
	Delivered int64
	Acked     int64
	Rejected  int64
	Requeued  int64
	Dropped   int64
	Ready     int
	Unacked   int
	Consumers int
}

// MemoryBroker is an in-process broker with competing-consumer semantics: each message
// is handed to exactly one consumer, and deliveries left unsettled when their channel
// closes are requeued.
type MemoryBroker struct {
	mutex    sync.Mutex
	queues   map[string]*memoryQueue
	connects atomic.Int64
	nextTag  atomic.Uint64

	connectErr   error
	connectDelay time.Duration
	maxLength    int
}

// MemoryOption configures a MemoryBroker.
type MemoryOption func(*MemoryBroker)

// WithConnectError makes every Connect call fail with err.
func WithConnectError(err error) MemoryOption {
	return func(b *MemoryBroker) {
		b.connectErr = err
	}
}

// WithConnectDelay makes every Connect call block for d, simulating network latency.
func WithConnectDelay(d time.Duration) MemoryOption {
	return func(b *MemoryBroker) {
		b.connectDelay = d
	}
}

// WithMaxLength caps every queue at n ready messages. Publishing to a full queue
// discards the oldest ready message, like a RabbitMQ queue declared with
// x-max-length and the default drop-head overflow. Zero means unbounded.
func WithMaxLength(n int) MemoryOption {
	return func(b *MemoryBroker) {
		b.maxLength = max(n, 0)
	}
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker(opts ...MemoryOption) *MemoryBroker {
	b := &MemoryBroker{
		queues: make(map[string]*memoryQueue),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Connect opens a new in-process connection.
func (b *MemoryBroker) Connect(ctx context.Context) (Connection, error) {
	b.connects.Add(1)

	if b.connectDelay > 0 {
		timer := time.NewTimer(b.connectDelay)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	if b.connectErr != nil {
		return nil, b.connectErr
	}

	return &memoryConnection{broker: b}, nil
}

// Connects reports how many times Connect was called.
func (b *MemoryBroker) Connects() int64 {
	return b.connects.Load()
}

// Stats returns a snapshot of the named queue. The second value is false when the
// queue does not exist.
func (b *MemoryBroker) Stats(name string) (QueueStats, bool) {
	b.mutex.Lock()
	q, ok := b.queues[name]
	b.mutex.Unlock()

	if !ok {
		return QueueStats{}, false
	}

	return q.stats(), true
}

func (b *MemoryBroker) declare(name string, autoDelete bool) *memoryQueue {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	q, ok := b.queues[name]
	if !ok {
		q = &memoryQueue{
			name:       name,
			autoDelete: autoDelete,
			maxLength:  b.maxLength,
			notify:     make(chan struct{}, 1),
		}
		b.queues[name] = q
	}

	return q
}

func (b *MemoryBroker) lookup(name string) (*memoryQueue, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	q, ok := b.queues[name]

	return q, ok
}

// release drops an auto-delete queue once its last consumer is gone.
func (b *MemoryBroker) release(q *memoryQueue) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if q.autoDelete && q.detached() && b.queues[q.name] == q {
		delete(b.queues, q.name)
	}
}

type memoryQueue struct {
	name       string
	autoDelete bool
	maxLength  int
	notify     chan struct{}

	mutex        sync.Mutex
	ready        []memoryMessage
	consumers    int
	everConsumed bool
	published    int64
	delivered    int64
	acked        int64
	rejected     int64
	requeued     int64
	dropped      int64
	unackedCount int
}

type memoryMessage struct {
	msg         Message
	redelivered bool
}

func (q *memoryQueue) push(m memoryMessage, front bool) {
	q.mutex.Lock()
	if front {
		q.ready = append([]memoryMessage{m}, q.ready...)
	} else {
		q.ready = append(q.ready, m)
	}
	q.mutex.Unlock()

	q.signal()
}

// enqueue appends a published message, discarding from the head while the queue
// is at its length limit.
func (q *memoryQueue) enqueue(m memoryMessage) {
	q.mutex.Lock()
	q.published++

	if q.maxLength > 0 {
		for len(q.ready) >= q.maxLength {
			q.ready[0] = memoryMessage{}
			q.ready = q.ready[1:]
			q.dropped++
		}
	}

	q.ready = append(q.ready, m)
	q.mutex.Unlock()

	q.signal()
}

func (q *memoryQueue) pop() (memoryMessage, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if len(q.ready) == 0 {
		return memoryMessage{}, false
	}

	m := q.ready[0]
	q.ready = q.ready[1:]

	if len(q.ready) > 0 {
		q.signal()
	}

	return m, true
}

func (q *memoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *memoryQueue) detached() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return q.everConsumed && q.consumers == 0
}

func (q *memoryQueue) stats() QueueStats {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	return QueueStats{
		Published: q.published,
		Delivered: q.delivered,
		Acked:     q.acked,
		Rejected:  q.rejected,
		Requeued:  q.requeued,
		Dropped:   q.dropped,
		Ready:     len(q.ready),
		Unacked:   q.unackedCount,
		Consumers: q.consumers,
	}
}

type memoryConnection struct {
	broker *MemoryBroker

	mutex    sync.Mutex
	closed   bool
	channels []*memoryChannel
}

func (c *memoryConnection) Channel(_ context.Context) (Channel, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return nil, ErrNotConnected
	}

	ch := &memoryChannel{
		broker:  c.broker,
		unacked: make(map[uint64]*memoryInflight),
		done:    make(chan struct{}),
	}
	c.channels = append(c.channels, ch)

	return ch, nil
}

func (c *memoryConnection) IsClosed() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.closed
}

func (c *memoryConnection) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true

	for _, ch := range c.channels {
		_ = ch.Close()
	}

	return nil
}

type memoryInflight struct {
	queue *memoryQueue
	item  memoryMessage
}

type memoryChannel struct {
	broker *MemoryBroker

	mutex   sync.Mutex
	closed  bool
	done    chan struct{}
	unacked map[uint64]*memoryInflight
	wg      sync.WaitGroup
}

func (ch *memoryChannel) DeclareQueue(_ context.Context, name string, autoDelete bool) error {
	if ch.isClosed() {
		return ErrClosed
	}

	ch.broker.declare(name, autoDelete)

	return nil
}

// Publish enqueues msg. Messages routed to an undeclared queue are dropped, as the
// default exchange does.
func (ch *memoryChannel) Publish(ctx context.Context, queue string, msg Message) error {
	if ch.isClosed() {
		return ErrClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	q, ok := ch.broker.lookup(queue)
	if !ok {
		return nil
	}

	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	q.enqueue(memoryMessage{msg: msg})

	return nil
}

func (ch *memoryChannel) Consume(ctx context.Context, queue, consumer string) (<-chan Delivery, error) {
	if ch.isClosed() {
		return nil, ErrClosed
	}

	q, ok := ch.broker.lookup(queue)
	if !ok {
		return nil, fmt.Errorf("failed to consume from %q: queue not found", queue)
	}

	q.mutex.Lock()
	q.consumers++
	q.everConsumed = true
	q.mutex.Unlock()

	deliveries := make(chan Delivery)

	ch.wg.Add(1)

	go func() {
		defer ch.wg.Done()
		defer close(deliveries)
		defer func() {
			q.mutex.Lock()
			q.consumers--
			q.mutex.Unlock()

			ch.broker.release(q)
		}()

		for {
			item, ok := q.pop()
			if !ok {
				select {
				case <-ctx.Done():
					return
				case <-ch.done:
					return
				case <-q.notify:
					continue
				}
			}

			tag := ch.broker.nextTag.Add(1)

			select {
			case deliveries <- ch.track(q, item, queue, consumer, tag):
			case <-ctx.Done():
				ch.untrack(tag)
				q.push(item, true)

				return
			case <-ch.done:
				ch.untrack(tag)
				q.push(item, true)

				return
			}
		}
	}()

	return deliveries, nil
}

func (ch *memoryChannel) track(q *memoryQueue, item memoryMessage, queue, consumer string, tag uint64) Delivery {
	ch.mutex.Lock()
	ch.unacked[tag] = &memoryInflight{queue: q, item: item}
	ch.mutex.Unlock()

	q.mutex.Lock()
	q.delivered++
	q.unackedCount++
	q.mutex.Unlock()

	return NewDelivery(item.msg, queue, consumer, item.redelivered, &memoryAcker{channel: ch, tag: tag})
}

func (ch *memoryChannel) untrack(tag uint64) {
	ch.mutex.Lock()
	inflight, ok := ch.unacked[tag]
	delete(ch.unacked, tag)
	ch.mutex.Unlock()

	if ok {
		inflight.queue.mutex.Lock()
		inflight.queue.delivered--
		inflight.queue.unackedCount--
		inflight.queue.mutex.Unlock()
	}
}

func (ch *memoryChannel) settle(tag uint64, requeue, ack bool) error {
	ch.mutex.Lock()
	if ch.closed {
		ch.mutex.Unlock()

		return ErrClosed
	}

	inflight, ok := ch.unacked[tag]
	delete(ch.unacked, tag)
	ch.mutex.Unlock()

	if !ok {
		return errUnknownDelivery
	}

	q := inflight.queue

	q.mutex.Lock()
	q.unackedCount--
	switch {
	case ack:
		q.acked++
	case requeue:
		q.requeued++
	default:
		q.rejected++
	}
	q.mutex.Unlock()

	if requeue {
		q.push(memoryMessage{msg: inflight.item.msg, redelivered: true}, true)
	}

	return nil
}

func (ch *memoryChannel) isClosed() bool {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	return ch.closed
}

// Close stops the channel's consumers and requeues every unsettled delivery.
func (ch *memoryChannel) Close() error {
	ch.mutex.Lock()
	if ch.closed {
		ch.mutex.Unlock()

		return ErrClosed
	}

	ch.closed = true
	close(ch.done)
	ch.mutex.Unlock()

	ch.wg.Wait()

	ch.mutex.Lock()
	pending := ch.unacked
	ch.unacked = make(map[uint64]*memoryInflight)
	ch.mutex.Unlock()

	for _, inflight := range pending {
		q := inflight.queue

		q.mutex.Lock()
		q.unackedCount--
		q.requeued++
		q.mutex.Unlock()

		q.push(memoryMessage{msg: inflight.item.msg, redelivered: true}, true)
	}

	return nil
}

type memoryAcker struct {
	channel *memoryChannel
	tag     uint64
}

func (a *memoryAcker) Ack(_ bool) error {
	return a.channel.settle(a.tag, false, true)
}

func (a *memoryAcker) Nack(_ bool, requeue bool) error {
	return a.channel.settle(a.tag, requeue, false)
}

func (a *memoryAcker) Reject(requeue bool) error {
	return a.channel.settle(a.tag, requeue, false)
}
