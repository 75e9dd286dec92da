package runtime

import (
	"io"
	"os"

	"github.com/architeacher/svc-pubsub-harness/internal/config"
	"github.com/architeacher/svc-pubsub-harness/pkg/queue"
)

type (
	HarnessOption func(*HarnessCtx)
)

func WithTermination(ch chan os.Signal) HarnessOption {
	return func(ctx *HarnessCtx) {
		ctx.shutdownChannel = ch
	}
}

func WithMode(mode Mode) HarnessOption {
	return func(ctx *HarnessCtx) {
		ctx.mode = mode
	}
}

// WithConfig uses cfg instead of parsing the environment.
func WithConfig(cfg *config.ServiceConfig) HarnessOption {
	return func(ctx *HarnessCtx) {
		ctx.cfg = cfg
	}
}

// WithConfigOverride applies fn to the configuration before it is validated.
func WithConfigOverride(fn func(*config.ServiceConfig)) HarnessOption {
	return func(ctx *HarnessCtx) {
		ctx.overrides = append(ctx.overrides, fn)
	}
}

// WithBroker replaces the configured broker.
func WithBroker(broker queue.Broker) HarnessOption {
	return func(ctx *HarnessCtx) {
		ctx.broker = broker
	}
}

func WithLogWriter(w io.Writer) HarnessOption {
	return func(ctx *HarnessCtx) {
		ctx.logWriter = w
	}
}
