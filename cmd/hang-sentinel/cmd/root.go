package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/hang-sentinel/internal/config"
	"github.com/oshokin/hang-sentinel/internal/runner"
	"github.com/oshokin/hang-sentinel/internal/version"
)

var (
	// configPath stores the path to the settings YAML file.
	configPath string
	// timeoutSeconds overrides the per-unit time limit, in seconds.
	timeoutSeconds float64
	// method overrides the enforcement strategy.
	method string
	// abortCode overrides the exit status used when a unit is aborted.
	abortCode int
	// tracerSeconds schedules a diagnostic stack dump for long units.
	tracerSeconds float64
	// logLevel overrides the minimum logging level.
	logLevel string

	// rootCmd represents the base command for running units under a deadline.
	rootCmd = &cobra.Command{
		Use:   "hang-sentinel [manifest]",
		Short: "Run commands under a wall-clock deadline.",
		Long: `Runs every unit from a YAML manifest, each under a wall-clock deadline.

A unit that finishes in time passes or fails on its own exit status. A unit
that outlives its deadline has every goroutine's stack dumped and is then cut
short: the signal method cancels the unit and the run continues, the thread
method terminates this process with the configured abort status.
Settings are resolved from flags, SENTINEL_* environment variables and the
settings file, in that order of precedence. The manifest path can be provided
as argument, otherwise hang-sentinel-units.yaml in the working directory is used.`,
		Args: cobra.MaximumNArgs(1),
	}
)

// buildOptions converts parsed flags to runner options. Unset flags stay
// out of the options so the environment and the settings file keep their
// say in the precedence order.
func buildOptions(manifestPath string) *runner.Options {
	options := &runner.Options{
		ConfigPath:    configPath,
		ManifestPath:  manifestPath,
		Method:        method,
		AbortExitCode: abortCode,
		LogLevel:      logLevel,
	}

	flags := rootCmd.Flags()
	if flags.Changed("timeout") {
		options.TimeoutSeconds = &timeoutSeconds
	}

	if flags.Changed("tracer") {
		options.TracerSeconds = &tracerSeconds
	}

	return options
}

// Execute runs the hang-sentinel CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// RunE is wired here rather than in the rootCmd literal: its closure calls
	// buildOptions, which reads rootCmd, and keeping both in the literal forms
	// an initialization cycle the compiler rejects.
	rootCmd.RunE = func(_ *cobra.Command, args []string) error {
		// Setup graceful shutdown handling.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
		defer stop()

		// Use manifest path argument if provided, otherwise rely on the default file.
		var manifestPath string
		if len(args) > 0 {
			manifestPath = args[0]
		}

		return runner.Run(ctx, buildOptions(manifestPath))
	}

	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to settings file")
	rootCmd.Flags().
		Float64VarP(&timeoutSeconds, "timeout", "t", 0, "time limit per unit in seconds, 0 disables enforcement")
	rootCmd.Flags().StringVarP(&method, "method", "m", "", "enforcement strategy: auto, signal or thread")
	rootCmd.Flags().IntVar(&abortCode, "abort-code", 0, "exit status reported when a timed-out unit aborts the run")
	rootCmd.Flags().
		Float64Var(&tracerSeconds, "tracer", 0, "dump all stacks for units still running after this many seconds")
	rootCmd.Flags().StringVarP(&logLevel, "log-level", "l", "", "minimum logging level")
}
