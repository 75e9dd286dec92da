package pubsub

import (
	"context"
	"errors"
	"sync"

	"github.com/architeacher/svc-pubsub-harness/internal/domain"
	"github.com/architeacher/svc-pubsub-harness/internal/infrastructure"
	"github.com/architeacher/svc-pubsub-harness/internal/shared/backoff"
	"github.com/architeacher/svc-pubsub-harness/pkg/queue"
)

const (
	RolePublisher = "publisher"
	RoleConsumer  = "consumer"
)

type SessionOption func(*Session)

// WithAutoDelete sets whether the shared queue is removed once its last consumer leaves.
func WithAutoDelete(autoDelete bool) SessionOption {
	return func(s *Session) {
		s.autoDelete = autoDelete
	}
}

// WithConnectRetries retries a failed connect sequence up to retries times, waiting
// according to strategy between attempts.
func WithConnectRetries(retries int, strategy backoff.Strategy) SessionOption {
	return func(s *Session) {
		s.retries = retries
		s.backoff = strategy
	}
}

// Session is the connect-on-demand broker handle owned by exactly one publisher or
// consumer. It is either disconnected or holds one connection, one channel and a
// declared queue.
type Session struct {
	broker     queue.Broker
	role       string
	queueName  string
	autoDelete bool

	retries int
	backoff backoff.Strategy

	logger  infrastructure.Logger
	metrics infrastructure.Metrics

	mu      sync.Mutex
	conn    queue.Connection
	channel queue.Channel
}

func NewSession(
	broker queue.Broker,
	role, queueName string,
	logger infrastructure.Logger,
	metrics infrastructure.Metrics,
	opts ...SessionOption,
) *Session {
	s := &Session{
		broker:     broker,
		role:       role,
		queueName:  queueName,
		autoDelete: true,
		logger:     logger,
		metrics:    metrics,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Session) QueueName() string {
	return s.queueName
}

// IsConnected reports whether the session holds a live connection.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.isConnected()
}

func (s *Session) isConnected() bool {
	return s.conn != nil && !s.conn.IsClosed()
}

// EnsureConnection runs the connect sequence when disconnected and returns the
// session channel. Concurrent callers share a single connect sequence. A
// connection the broker closed is dropped and dialled again.
func (s *Session) EnsureConnection(ctx context.Context) (queue.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isConnected() {
		return s.channel, nil
	}

	if s.conn != nil {
		s.logger.Warn().
			Str("role", s.role).
			Msg("broker closed the connection, reconnecting")
	}

	s.release()

	var err error

	for attempt := 0; ; attempt++ {
		err = s.connect(ctx)
		if err == nil {
			return s.channel, nil
		}

		if attempt >= s.retries || s.backoff == nil || ctx.Err() != nil {
			return nil, err
		}

		delay := s.backoff.Backoff(attempt)

		s.logger.Warn().
			Err(err).
			Str("role", s.role).
			Int("attempt", attempt+1).
			Dur("retry_in", delay).
			Msg("broker connection failed, retrying")

		if pauseErr := pause(ctx, delay); pauseErr != nil {
			return nil, err
		}
	}
}

// DeclareQueue declares the shared queue again on the session channel.
func (s *Session) DeclareQueue(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isConnected() {
		return queue.ErrNotConnected
	}

	if err := s.channel.DeclareQueue(ctx, s.queueName, s.autoDelete); err != nil {
		return domain.NewConnectionError(s.role, domain.StageDeclare, err)
	}

	return nil
}

// Close closes the connection, returning unacknowledged deliveries to the queue.
// The session can connect again afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}

	err := s.conn.Close()
	s.conn, s.channel = nil, nil

	if err != nil && !errors.Is(err, queue.ErrClosed) {
		return err
	}

	return nil
}

func (s *Session) connect(ctx context.Context) error {
	conn, err := s.broker.Connect(ctx)
	if err != nil {
		return s.connectFailed(ctx, domain.StageDial, err)
	}

	channel, err := conn.Channel(ctx)
	if err != nil {
		_ = conn.Close()

		return s.connectFailed(ctx, domain.StageChannel, err)
	}

	if err := channel.DeclareQueue(ctx, s.queueName, s.autoDelete); err != nil {
		_ = conn.Close()

		return s.connectFailed(ctx, domain.StageDeclare, err)
	}

	s.conn, s.channel = conn, channel

	s.metrics.RecordConnect(ctx, s.role, true)
	s.logger.Debug().
		Str("role", s.role).
		Str("queue", s.queueName).
		Msg("broker session established")

	return nil
}

func (s *Session) connectFailed(ctx context.Context, stage string, cause error) error {
	s.metrics.RecordConnect(ctx, s.role, false)

	return domain.NewConnectionError(s.role, stage, cause)
}

// release drops a connection the broker has already closed.
func (s *Session) release() {
	if s.conn != nil {
		_ = s.conn.Close()
	}

	s.conn, s.channel = nil, nil
}
