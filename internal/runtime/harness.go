package runtime

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/architeacher/svc-pubsub-harness/internal/config"
	"github.com/architeacher/svc-pubsub-harness/internal/infrastructure"
	"github.com/architeacher/svc-pubsub-harness/pkg/queue"
)

// Mode selects which roles a harness process runs.
type Mode string

const (
	ModeRun     Mode = "run"
	ModePublish Mode = "publish"
	ModeConsume Mode = "consume"
)

const cleanupTimeout = 5 * time.Second

type HarnessCtx struct {
	deps *Dependencies

	mode      Mode
	cfg       *config.ServiceConfig
	overrides []func(*config.ServiceConfig)
	broker    queue.Broker
	logWriter io.Writer

	shutdownChannel chan os.Signal

	runnerCtx      context.Context
	runnerStopFunc context.CancelFunc
	runnerDone     chan error
}

func New(opt ...HarnessOption) *HarnessCtx {
	hCtx := &HarnessCtx{
		mode:            ModeRun,
		logWriter:       os.Stdout,
		shutdownChannel: make(chan os.Signal, 1),
	}

	for i := range opt {
		opt[i](hCtx)
	}

	return hCtx
}

// Run starts the VM and blocks until it stops, returning the process exit code.
func (c *HarnessCtx) Run() int {
	if err := c.build(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to initialize dependencies: %v\n", err)

		return 1
	}

	c.shutdownHook()
	defer signal.Stop(c.shutdownChannel)

	c.start()
	c.monitorConfigDump()

	return c.shutdown()
}

func (c *HarnessCtx) build() error {
	cfg := c.cfg
	if cfg == nil {
		var err error

		if cfg, err = config.Init(); err != nil {
			return fmt.Errorf("unable to load service configuration: %w", err)
		}
	}

	for _, override := range c.overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := infrastructure.NewWithWriter(cfg.Logging, c.logWriter)

	c.runnerCtx, c.runnerStopFunc = context.WithCancel(context.Background())

	deps, err := initializeDependencies(c.runnerCtx, cfg, logger, WithQueue(c.broker), WithVM(c.mode))
	if err != nil {
		c.runnerStopFunc()

		return err
	}

	c.deps = deps

	return nil
}

func (c *HarnessCtx) start() {
	c.runnerDone = make(chan error, 1)

	go func() {
		c.deps.logger.Info().
			Str("mode", string(c.mode)).
			Str("broker", c.deps.cfg.Queue.Broker).
			Str("queue", c.deps.cfg.Queue.QueueName).
			Msg("harness starting up")

		c.runnerDone <- c.deps.Runner.Run(c.runnerCtx)
	}()
}

// shutdownHook routes hang-up, terminate and interrupt to the shutdown path.
func (c *HarnessCtx) shutdownHook() {
	signal.Notify(c.shutdownChannel, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
}

func (c *HarnessCtx) monitorConfigDump() {
	c.deps.configLoader.WatchDumpSignal(c.runnerCtx, c.logWriter)
}

func (c *HarnessCtx) shutdown() int {
	logger := c.deps.logger

	// Waits for one of the following shutdown conditions to happen.
	select {
	case err := <-c.runnerDone:
		c.runnerStopFunc()
		c.cleanup()

		if err != nil {
			logger.Error().Err(err).Msg("vm stopped unexpectedly")

			return 1
		}

		logger.Info().Msg("shutdown complete")

		return 0

	case sig := <-c.shutdownChannel:
		logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	}

	// Cancel context that underlying loops would unwind and close their sessions.
	c.runnerStopFunc()

	timer := time.NewTimer(c.deps.cfg.Harness.ShutdownTimeout)
	defer timer.Stop()

	select {
	case err := <-c.runnerDone:
		c.cleanup()

		if err != nil {
			logger.Error().Err(err).Msg("vm failed while stopping")

			return 1
		}

	case <-timer.C:
		logger.Error().
			Dur("timeout", c.deps.cfg.Harness.ShutdownTimeout).
			Msg("graceful shutdown timed out.. forcing exit.")
		c.cleanup()

		return 1
	}

	logger.Info().Msg("shutdown complete")

	return 0
}

func (c *HarnessCtx) cleanup() {
	c.deps.logger.Info().Msg("cleaning up resources...")

	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if err := c.deps.Infra.Metrics.Shutdown(ctx); err != nil {
		c.deps.logger.Error().Err(err).Msg("failed to shutdown metrics")
	}

	if err := c.deps.tracerShutdownFunc(ctx); err != nil {
		c.deps.logger.Error().Err(err).Msg("failed to shutdown tracer")
	}

	c.deps.logger.Info().Msg("cleanup completed")
}
