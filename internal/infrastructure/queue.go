package infrastructure

import (
	"fmt"

	"github.com/architeacher/svc-pubsub-harness/internal/config"
	"github.com/architeacher/svc-pubsub-harness/pkg/queue"
)

// Queue is an alias to the queue.Broker interface.
type Queue = queue.Broker

// NewBroker builds the broker selected by cfg.Broker. Nothing is dialled until a
// session connects.
func NewBroker(cfg config.QueueConfig, connectionName string, logger Logger) (Queue, error) {
	switch cfg.Broker {
	case config.BrokerRabbitMQ, "":
		return queue.NewRabbitMQBroker(
			queue.Config{
				Scheme:   cfg.Scheme,
				Username: cfg.Username,
				Password: cfg.Password,
				Host:     cfg.Host,
				Port:     cfg.Port,
				Vhost:    cfg.VirtualHost,
			},
			queue.WithLogger(queue.NewZerologAdapter(logger.Logger)),
			queue.WithConnectionTimeout(cfg.ConnectTimeout),
			queue.WithHeartbeat(cfg.Heartbeat),
			queue.WithConnectionName(connectionName),
			queue.WithPrefetchCount(cfg.PrefetchCount),
			queue.WithPublishingTimeout(cfg.PublishTimeout),
		), nil

	case config.BrokerMemory:
		return queue.NewMemoryBroker(queue.WithMaxLength(cfg.MemoryMaxLength)), nil

	default:
		return nil, fmt.Errorf("unsupported broker: %s", cfg.Broker)
	}
}
