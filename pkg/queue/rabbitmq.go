package queue

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

type (
	// amqpConnection narrows amqp091-go.Connection for testing purposes.
	amqpConnection interface {
		Channel() (amqpChannel, error)
		IsClosed() bool
		Close() error
	}

	dialer func(url string, cfg amqp.Config) (amqpConnection, error)

	connectionAdapter struct {
		*amqp.Connection
	}
)

func (c connectionAdapter) Channel() (amqpChannel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}

	return ch, nil
}

func dialAMQP(url string, cfg amqp.Config) (amqpConnection, error) {
	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, err
	}

	return connectionAdapter{Connection: conn}, nil
}

// Ensure RabbitMQBroker implements the Broker interface
var _ Broker = (*RabbitMQBroker)(nil)

// RabbitMQBroker implements the Broker interface using RabbitMQ.
type RabbitMQBroker struct {
	config  Config
	options connectionOptions
}

// NewRabbitMQBroker creates a new RabbitMQ broker. No connection is made until Connect.
func NewRabbitMQBroker(config Config, opts ...connectionOption) *RabbitMQBroker {
	options := defaultConnectionOptions()

	for _, opt := range opts {
		opt(&options)
	}

	return &RabbitMQBroker{
		config:  config,
		options: options,
	}
}

// Connect dials a new connection. Every call opens a distinct connection.
func (b *RabbitMQBroker) Connect(ctx context.Context) (Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	amqpConfig := amqp.Config{
		Heartbeat:  b.options.heartbeat,
		Locale:     "en_US",
		Dial:       amqp.DefaultDial(b.options.timeout),
		Properties: amqp.NewConnectionProperties(),
	}

	if b.options.connectionName != "" {
		amqpConfig.Properties.SetClientConnectionName(b.options.connectionName)
	}

	conn, err := b.options.dial(getURL(b.config), amqpConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	b.options.logger.Info().
		Str("host", b.config.Host).
		Str("vhost", b.config.Vhost).
		Msg("Successfully connected to RabbitMQ")

	return &rabbitConnection{
		conn:    conn,
		options: b.options,
	}, nil
}

type rabbitConnection struct {
	conn     amqpConnection
	options  connectionOptions
	mutex    sync.Mutex
	channels []*ChannelWrapper
}

// Channel opens a new channel on the connection.
func (c *rabbitConnection) Channel(_ context.Context) (Channel, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.conn.IsClosed() {
		return nil, ErrNotConnected
	}

	amqpCh, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	ch := newChannelWrapper(amqpCh, c.options)
	c.channels = append(c.channels, ch)

	return ch, nil
}

func (c *rabbitConnection) IsClosed() bool {
	return c.conn.IsClosed()
}

// Close closes every channel opened on the connection, then the connection itself.
// Unacknowledged deliveries are returned to their queues by the broker.
func (c *rabbitConnection) Close() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for _, ch := range c.channels {
		if !ch.isClosed() {
			if err := ch.Close(); err != nil {
				c.options.logger.Error().Err(err).Msg("failed to close channel")
			}
		}
	}

	c.channels = nil

	if c.conn.IsClosed() {
		return nil
	}

	return c.conn.Close()
}
