package runtime

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"

	"github.com/architeacher/svc-pubsub-harness/internal/config"
	"github.com/architeacher/svc-pubsub-harness/internal/infrastructure"
	"github.com/architeacher/svc-pubsub-harness/internal/ports"
	"github.com/architeacher/svc-pubsub-harness/internal/pubsub"
	"github.com/architeacher/svc-pubsub-harness/internal/shared/backoff"
)

type (
	InfrastructureDeps struct {
		SecretStorageClient *api.Client
		Broker              infrastructure.Queue
		Metrics             infrastructure.Metrics
	}

	Repos struct {
		SecretStorageRepo ports.SecretsRepository
	}

	Dependencies struct {
		Runner  *pubsub.Runner
		Factory ports.RecordFactory

		cfg          *config.ServiceConfig
		configLoader *config.Loader

		logger infrastructure.Logger

		Infra InfrastructureDeps
		Repos Repos

		tracerShutdownFunc infrastructure.TracerShutdownFunc
		secretVersion      uint
	}
)

func initializeDependencies(
	ctx context.Context,
	cfg *config.ServiceConfig,
	logger infrastructure.Logger,
	opts ...DependencyOption,
) (*Dependencies, error) {
	logger.Info().Msg("initializing dependencies...")

	deps := &Dependencies{
		cfg:    cfg,
		logger: logger,
	}

	// Start with default options and append any additional options.
	options := append(defaultOptions(ctx), opts...)

	for _, opt := range options {
		if err := opt(deps); err != nil {
			return nil, fmt.Errorf("failed to apply dependency option: %w", err)
		}
	}

	deps.logger.Info().Msg("dependencies initialized successfully")

	return deps, nil
}

// newSession gives each publisher and consumer a broker session of its own.
func (d *Dependencies) newSession(role string) *pubsub.Session {
	opts := []pubsub.SessionOption{
		pubsub.WithAutoDelete(d.cfg.Queue.AutoDelete),
	}

	if d.cfg.Backoff.ConnectRetries > 0 {
		opts = append(opts, pubsub.WithConnectRetries(
			d.cfg.Backoff.ConnectRetries,
			backoff.NewExponentialStrategy(d.cfg.Backoff),
		))
	}

	return pubsub.NewSession(d.Infra.Broker, role, d.cfg.Queue.QueueName, d.logger, d.Infra.Metrics, opts...)
}
