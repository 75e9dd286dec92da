package queue

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel is used mainly to be able to generate mocks for the AMQP behavior.
type amqpChannel interface {
	io.Closer

	Cancel(consumer string, noWait bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
}

// Ensure ChannelWrapper implements the Channel interface
var _ Channel = (*ChannelWrapper)(nil)

// ChannelWrapper is a wrapper around amqp091-go.Channel serialising access to it.
type ChannelWrapper struct {
	amqpChan amqpChannel

	logger Logger

	mutex  *sync.Mutex
	closed atomic.Bool

	prefetchCount  int
	publishTimeout time.Duration
}

func newChannelWrapper(ch amqpChannel, opts connectionOptions) *ChannelWrapper {
	return &ChannelWrapper{
		amqpChan:       ch,
		logger:         opts.logger,
		mutex:          &sync.Mutex{},
		prefetchCount:  opts.prefetchCount,
		publishTimeout: opts.publishTimeout,
	}
}

// Close is a wrapper around amqp091-go.Channel.Close method, which closes a channel.
func (ch *ChannelWrapper) Close() error {
	defer ch.mutex.Unlock()
	ch.mutex.Lock()

	if ch.isClosed() {
		return amqp.ErrClosed
	}

	ch.closed.Store(true)

	return ch.amqpChan.Close()
}

// DeclareQueue declares a non-durable, non-exclusive queue. Redeclaring with the same
// arguments is a no-op on the broker.
func (ch *ChannelWrapper) DeclareQueue(_ context.Context, name string, autoDelete bool) error {
	if ch.isClosed() {
		return ErrClosed
	}

	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	if _, err := ch.amqpChan.QueueDeclare(name, false, autoDelete, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %q: %w", name, err)
	}

	return nil
}

// Publish sends msg through the default exchange using the queue name as routing key.
func (ch *ChannelWrapper) Publish(ctx context.Context, queue string, msg Message) error {
	if ch.isClosed() {
		return ErrClosed
	}

	if ch.publishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ch.publishTimeout)
		defer cancel()
	}

	timestamp := msg.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	publishing := amqp.Publishing{
		MessageId:    msg.ID,
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      amqp.Table(msg.Headers),
		DeliveryMode: amqp.Transient,
		Timestamp:    timestamp,
	}

	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	return ch.amqpChan.PublishWithContext(ctx, "", queue, false, false, publishing)
}

// Consume starts a manually acknowledged consumer and forwards its deliveries until ctx
// is done or the broker closes the stream.
func (ch *ChannelWrapper) Consume(ctx context.Context, queue, consumer string) (<-chan Delivery, error) {
	if ch.isClosed() {
		return nil, ErrClosed
	}

	ch.mutex.Lock()
	if ch.prefetchCount > 0 {
		if err := ch.amqpChan.Qos(ch.prefetchCount, 0, false); err != nil {
			ch.mutex.Unlock()

			return nil, fmt.Errorf("failed to set prefetch count: %w", err)
		}
	}

	source, err := ch.amqpChan.Consume(queue, consumer, false, false, false, false, nil)
	ch.mutex.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to consume from %q: %w", queue, err)
	}

	deliveries := make(chan Delivery)

	go func() {
		defer close(deliveries)

		for {
			select {
			case <-ctx.Done():
				ch.cancel(consumer)

				return
			case d, ok := <-source:
				if !ok {
					ch.logger.Debug().Str("consumer", consumer).Msg("delivery stream closed by broker")

					return
				}

				select {
				case deliveries <- fromAMQP(d, queue):
				case <-ctx.Done():
					ch.cancel(consumer)

					return
				}
			}
		}
	}()

	return deliveries, nil
}

func (ch *ChannelWrapper) cancel(consumer string) {
	if ch.isClosed() {
		return
	}

	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	if err := ch.amqpChan.Cancel(consumer, false); err != nil {
		ch.logger.Error().Err(err).Str("consumer", consumer).Msg("failed to cancel consumer")
	}
}

func (ch *ChannelWrapper) isClosed() bool {
	return ch.closed.Load()
}

func fromAMQP(d amqp.Delivery, queue string) Delivery {
	msg := Message{
		ID:          d.MessageId,
		ContentType: d.ContentType,
		Body:        d.Body,
		Headers:     d.Headers,
		Timestamp:   d.Timestamp,
	}

	return NewDelivery(msg, queue, d.ConsumerTag, d.Redelivered, d)
}
