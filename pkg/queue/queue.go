package queue

import (
	"context"
	"errors"
)

var (
	// ErrNotConnected is returned when an operation needs a live connection or channel.
	ErrNotConnected = errors.New("not connected to broker")

	// ErrClosed is returned when operating on a closed connection or channel.
	ErrClosed = errors.New("broker resource closed")

	// ErrDeliveriesClosed is reported when the broker stops a delivery stream.
	ErrDeliveriesClosed = errors.New("delivery channel closed")
)

type (
	// Broker dials connections to a message broker.
	Broker interface {
		Connect(ctx context.Context) (Connection, error)
	}

	// Connection is a live broker connection able to open channels.
	Connection interface {
		Channel(ctx context.Context) (Channel, error)
		IsClosed() bool
		Close() error
	}

	// Channel is a lightweight session multiplexed on a connection.
	Channel interface {
		// DeclareQueue declares a non-exclusive queue. It is idempotent.
		DeclareQueue(ctx context.Context, name string, autoDelete bool) error

		// Publish sends msg to the default exchange, routed by queue name.
		Publish(ctx context.Context, queue string, msg Message) error

		// Consume starts a manually acknowledged consumer. The returned channel is
		// closed when ctx is done, the consumer is cancelled or the channel closes.
		Consume(ctx context.Context, queue, consumer string) (<-chan Delivery, error)

		Close() error
	}
)
