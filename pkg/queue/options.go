package queue

import (
	"time"
)

const (
	defaultConnectionTimeout = 10 * time.Second
	defaultHeartbeat         = 10 * time.Second
	defaultPublishingTimeout = 3 * time.Second
	defaultPrefetchCount     = 1
)

type connectionOptions struct {
	timeout        time.Duration
	heartbeat      time.Duration
	connectionName string
	prefetchCount  int
	publishTimeout time.Duration
	logger         Logger
	dial           dialer
}

type connectionOption func(options *connectionOptions)

// WithLogger returns a connectionOption which sets the logger when a connection is created.
func WithLogger(l Logger) connectionOption {
	return func(o *connectionOptions) {
		o.logger = l
	}
}

// WithConnectionTimeout returns a connectionOption which sets the timeout used when establishing a connection.
func WithConnectionTimeout(timeout time.Duration) connectionOption {
	return func(o *connectionOptions) {
		o.timeout = timeout
	}
}

// WithHeartbeat returns a connectionOption which sets the AMQP heartbeat interval.
func WithHeartbeat(heartbeat time.Duration) connectionOption {
	return func(o *connectionOptions) {
		o.heartbeat = heartbeat
	}
}

// WithConnectionName returns a connectionOption which names the connection in the broker's management UI.
func WithConnectionName(name string) connectionOption {
	return func(o *connectionOptions) {
		o.connectionName = name
	}
}

// WithPrefetchCount returns a connectionOption which sets the basic.qos prefetch count
// applied to every channel before it starts consuming.
func WithPrefetchCount(count int) connectionOption {
	return func(o *connectionOptions) {
		o.prefetchCount = count
	}
}

// WithPublishingTimeout returns a connectionOption which sets the timeout used when
// publishing a message.
func WithPublishingTimeout(d time.Duration) connectionOption {
	return func(o *connectionOptions) {
		o.publishTimeout = d
	}
}

func withDialer(d dialer) connectionOption {
	return func(o *connectionOptions) {
		o.dial = d
	}
}

func defaultConnectionOptions() connectionOptions {
	return connectionOptions{
		timeout:        defaultConnectionTimeout,
		heartbeat:      defaultHeartbeat,
		prefetchCount:  defaultPrefetchCount,
		publishTimeout: defaultPublishingTimeout,
		logger:         nopLogger{},
		dial:           dialAMQP,
	}
}
