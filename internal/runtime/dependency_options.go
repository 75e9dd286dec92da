package runtime

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault/api"

	"github.com/architeacher/svc-pubsub-harness/internal/adapters"
	"github.com/architeacher/svc-pubsub-harness/internal/adapters/repos"
	"github.com/architeacher/svc-pubsub-harness/internal/config"
	"github.com/architeacher/svc-pubsub-harness/internal/infrastructure"
	"github.com/architeacher/svc-pubsub-harness/internal/pubsub"
	"github.com/architeacher/svc-pubsub-harness/pkg/queue"
)

type (
	DependencyOption func(*Dependencies) error
)

func defaultOptions(ctx context.Context) []DependencyOption {
	return []DependencyOption{
		WithSecretStorage(),
		WithSecretStorageRepo(),
		WithConfigLoader(ctx),
		WithMetrics(ctx),
		WithTracing(ctx),
		WithRecordFactory(),
	}
}

// WithSecretStorage initializes the Vault client using ENV config.
func WithSecretStorage() DependencyOption {
	return func(d *Dependencies) error {
		cfg := d.cfg.SecretStorage

		if !cfg.Enabled {
			return nil
		}

		vaultConfig := api.DefaultConfig()
		vaultConfig.Address = cfg.Address
		vaultConfig.Timeout = cfg.Timeout

		if cfg.TLSSkipVerify {
			tlsConfig := &api.TLSConfig{
				Insecure: true,
			}
			if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
				return fmt.Errorf("failed to configure TLS: %w", err)
			}
		}

		client, err := api.NewClient(vaultConfig)
		if err != nil {
			return fmt.Errorf("failed to create Vault client: %w", err)
		}

		// Skip namespace configuration for dev mode vault
		if cfg.Namespace != "" {
			client.SetNamespace(cfg.Namespace)
		}

		d.Infra.SecretStorageClient = client

		return nil
	}
}

func WithSecretStorageRepo() DependencyOption {
	return func(d *Dependencies) error {
		if d.Infra.SecretStorageClient == nil {
			return nil
		}

		d.Repos.SecretStorageRepo = repos.NewVaultRepository(d.Infra.SecretStorageClient)

		return nil
	}
}

func WithConfigLoader(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		d.configLoader = config.NewLoader(d.cfg, d.Repos.SecretStorageRepo)

		if !d.cfg.SecretStorage.Enabled {
			d.logger.Info().Msg("secret storage is disabled, skipping vault configuration loading")

			return nil
		}

		version, err := d.configLoader.Load(ctx)
		if err != nil {
			return fmt.Errorf("unable to load service configuration: %w", err)
		}

		d.secretVersion = version

		d.logger.Info().Uint("secret_version", version).Msg("broker credentials loaded from vault")

		return nil
	}
}

func WithMetrics(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		metrics, err := infrastructure.NewMetrics(ctx, *d.cfg, d.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}

		d.Infra.Metrics = metrics

		return nil
	}
}

func WithTracing(ctx context.Context) DependencyOption {
	return func(d *Dependencies) error {
		if !d.cfg.Telemetry.Traces.Enabled {
			d.tracerShutdownFunc = func(_ context.Context) error {
				return nil
			}

			return nil
		}

		tracerShutdownFunc, err := infrastructure.InitGlobalTracer(ctx, d.cfg.Telemetry, d.cfg.AppConfig)
		if err != nil {
			d.logger.Error().Err(err).Msg("failed to initialize global tracer")

			return err
		}

		d.tracerShutdownFunc = tracerShutdownFunc

		return nil
	}
}

func WithRecordFactory() DependencyOption {
	return func(d *Dependencies) error {
		d.Factory = adapters.NewPersonFactory(d.cfg.Harness.Seed)

		return nil
	}
}

// WithQueue builds the configured broker unless broker is given. Nothing is dialled
// here; every session connects lazily.
func WithQueue(broker queue.Broker) DependencyOption {
	return func(d *Dependencies) error {
		if broker != nil {
			d.Infra.Broker = broker

			return nil
		}

		connectionName := fmt.Sprintf("%s/%s", d.cfg.AppConfig.ServiceName, d.cfg.Harness.VMName)

		queueClient, err := infrastructure.NewBroker(d.cfg.Queue, connectionName, d.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize queue: %w", err)
		}

		d.Infra.Broker = queueClient

		return nil
	}
}

// WithVM assembles the runner for mode: a publisher unless consuming only, and the
// configured consumer pool unless publishing only.
func WithVM(mode Mode) DependencyOption {
	return func(d *Dependencies) error {
		if d.Infra.Broker == nil {
			if err := WithQueue(nil)(d); err != nil {
				return err
			}
		}

		harness := d.cfg.Harness

		var publisher *pubsub.Publisher
		if mode != ModeConsume {
			publisher = pubsub.NewPublisher(
				d.newSession(pubsub.RolePublisher),
				d.Factory,
				d.logger,
				d.Infra.Metrics,
			)
		}

		var consumers []*pubsub.Consumer
		if mode != ModePublish {
			consumers = make([]*pubsub.Consumer, 0, harness.Consumers)

			for i := range harness.Consumers {
				consumers = append(consumers, pubsub.NewConsumer(
					d.newSession(pubsub.RoleConsumer),
					d.logger,
					d.Infra.Metrics,
					pubsub.WithConsumerTag(fmt.Sprintf("consumer-%d", i+1)),
					pubsub.WithMalformedPolicy(pubsub.MalformedPolicy(harness.MalformedPolicy)),
				))
			}
		}

		d.Runner = pubsub.NewRunner(
			harness.VMName,
			publisher,
			consumers,
			d.logger,
			pubsub.WithPublishRate(harness.PublishRate),
			pubsub.WithConsumeRate(harness.ConsumeRate),
		)

		return nil
	}
}
