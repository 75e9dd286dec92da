package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/architeacher/svc-pubsub-harness/internal/config"
	"github.com/architeacher/svc-pubsub-harness/internal/runtime"
)

// harnessFlags overrides the environment configuration for the flags that were set.
type harnessFlags struct {
	vmName          string
	consumers       int
	publishRate     float64
	consumeRate     float64
	broker          string
	malformedPolicy string
	shutdownTimeout time.Duration
	connectRetries  int
}

func (f *harnessFlags) register(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()

	flags.StringVar(&f.vmName, "vm-name", "", "name of the VM in logs and the broker connection name")
	flags.IntVarP(&f.consumers, "consumers", "c", 0, "number of competing consumers")
	flags.Float64Var(&f.publishRate, "publish-rate", 0, "records published per second")
	flags.Float64Var(&f.consumeRate, "consume-rate", 0, "records processed per second by each consumer")
	flags.StringVar(&f.broker, "broker", "", "broker implementation (rabbitmq|memory)")
	flags.StringVar(&f.malformedPolicy, "malformed-policy", "", "what to do with unparsable records (drop|fail)")
	flags.DurationVar(&f.shutdownTimeout, "shutdown-timeout", 0, "how long to wait for the VM to stop after a signal")
	flags.IntVar(&f.connectRetries, "connect-retries", 0, "retries of a failed broker connect before giving up")
}

func (f *harnessFlags) override(cmd *cobra.Command) func(*config.ServiceConfig) {
	flags := cmd.Flags()

	return func(cfg *config.ServiceConfig) {
		if flags.Changed("vm-name") {
			cfg.Harness.VMName = f.vmName
		}

		if flags.Changed("consumers") {
			cfg.Harness.Consumers = f.consumers
		}

		if flags.Changed("publish-rate") {
			cfg.Harness.PublishRate = f.publishRate
		}

		if flags.Changed("consume-rate") {
			cfg.Harness.ConsumeRate = f.consumeRate
		}

		if flags.Changed("broker") {
			cfg.Queue.Broker = f.broker
		}

		if flags.Changed("malformed-policy") {
			cfg.Harness.MalformedPolicy = f.malformedPolicy
		}

		if flags.Changed("shutdown-timeout") {
			cfg.Harness.ShutdownTimeout = f.shutdownTimeout
		}

		if flags.Changed("connect-retries") {
			cfg.Backoff.ConnectRetries = f.connectRetries
		}
	}
}

// runHarness starts a harness in mode. It is swapped in tests.
var runHarness = func(mode runtime.Mode, override func(*config.ServiceConfig)) int {
	return runtime.New(
		runtime.WithMode(mode),
		runtime.WithConfigOverride(override),
	).Run()
}

func newRootCmd(exitCode *int) *cobra.Command {
	flags := &harnessFlags{}

	modeCmd := func(mode runtime.Mode) func(cmd *cobra.Command, _ []string) {
		return func(cmd *cobra.Command, _ []string) {
			*exitCode = runHarness(mode, flags.override(cmd))
		}
	}

	rootCmd := &cobra.Command{
		Use:   "harness",
		Short: "Publish/subscribe demonstration harness",
		Long: `harness publishes synthetic person records to a queue at a fixed rate and
runs a pool of competing consumers that process and acknowledge them.

Without a subcommand it runs a whole VM: one publisher and N consumers.
Configuration comes from the environment; flags override it.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Run:           modeCmd(runtime.ModeRun),
	}

	flags.register(rootCmd)

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run one publisher and the consumer pool as a single VM",
			Args:  cobra.NoArgs,
			Run:   modeCmd(runtime.ModeRun),
		},
		&cobra.Command{
			Use:   "publish",
			Short: "Run the publisher only",
			Args:  cobra.NoArgs,
			Run:   modeCmd(runtime.ModePublish),
		},
		&cobra.Command{
			Use:   "consume",
			Short: "Run the consumer pool only",
			Args:  cobra.NoArgs,
			Run:   modeCmd(runtime.ModeConsume),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the build version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				version, commit := config.ServiceVersion, config.CommitSHA
				if version == "" {
					version = "dev"
				}

				if commit == "" {
					commit = "unknown"
				}

				fmt.Fprintf(cmd.OutOrStdout(), "harness %s (%s)\n", version, commit)
			},
		},
	)

	return rootCmd
}

func execute(args []string) int {
	exitCode := 0

	// A nil slice makes cobra fall back to os.Args.
	if args == nil {
		args = []string{}
	}

	rootCmd := newRootCmd(&exitCode)
	rootCmd.SetArgs(args)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)

		return 2
	}

	return exitCode
}
