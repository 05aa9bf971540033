package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/oshokin/hang-sentinel/internal/config"
	"github.com/oshokin/hang-sentinel/internal/logger"
	"github.com/oshokin/hang-sentinel/internal/timeout"
)

// Options control a batch run and where its settings come from.
// Override fields rank above the environment and the settings file;
// nil and empty values inherit the lower layers.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// ManifestPath specifies the path to the batch manifest.
	ManifestPath string
	// TimeoutSeconds overrides the configured time limit when non-nil.
	TimeoutSeconds *float64
	// Method overrides the configured enforcement strategy when non-empty.
	Method string
	// AbortExitCode overrides the configured abort status when nonzero.
	AbortExitCode int
	// TracerSeconds overrides the configured tracer limit when non-nil.
	TracerSeconds *float64
	// LogLevel overrides the configured log level when non-empty.
	LogLevel string
	// Out receives the end-of-run summary table, standard output when nil.
	Out io.Writer
}

// ErrUnitsFailed is returned by Run when at least one unit did not pass,
// so the process can exit nonzero without hiding the summary.
var ErrUnitsFailed = errors.New("some units did not pass")

// batch holds the resolved state for one run of a manifest.
type batch struct {
	// cfg is the merged settings the run operates under.
	cfg *config.Config
	// manifest is the ordered list of units to run.
	manifest *Manifest
	// guard enforces one deadline at a time across the units.
	guard *timeout.Guard
	// tracer dumps stacks for units that outlive the soft limit, nil
	// when disabled.
	tracer *timeout.Tracer
	// limit is the batch-level deadline, zero when disabled.
	limit time.Duration
	// strategy is the batch-level enforcement strategy.
	strategy timeout.Strategy
	// out receives the summary table.
	out io.Writer
}

// Run executes the manifest's units sequentially, each under its own
// deadline, renders the summary table and reports whether every unit
// passed.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "hang-sentinel")

	cfg, err := resolveSettings(opts)
	if err != nil {
		return err
	}

	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	}

	manifest, err := LoadManifest(opts.ManifestPath)
	if err != nil {
		return err
	}

	b, err := newBatch(cfg, manifest, opts.Out)
	if err != nil {
		return err
	}

	// An alarm delivered outside an armed deadline must never hit the
	// default disposition and kill the run.
	timeout.CatchStrayAlarms()

	b.logHeader(ctx)

	results := b.run(ctx)

	if err := writeSummary(b.out, results); err != nil {
		return err
	}

	counts := tally(results)
	logger.InfoKV(ctx, "Run finished",
		"units", len(results),
		"passed", counts[OutcomePassed],
		"failed", counts[OutcomeFailed],
		"timed_out", counts[OutcomeTimedOut],
		"aborted", counts[OutcomeAborted])

	if counts[OutcomePassed] != len(results) {
		return ErrUnitsFailed
	}

	return nil
}

// resolveSettings merges the settings file, the environment and the
// explicit overrides, in ascending precedence order.
func resolveSettings(opts *Options) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	if err := config.ApplyEnv(cfg); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}

	if opts.TimeoutSeconds != nil {
		cfg.TimeoutSeconds = *opts.TimeoutSeconds
	}

	if opts.Method != "" {
		cfg.Method = opts.Method
	}

	if opts.AbortExitCode != 0 {
		cfg.AbortExitCode = opts.AbortExitCode
	}

	if opts.TracerSeconds != nil {
		cfg.TracerSeconds = *opts.TracerSeconds
	}

	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// newBatch resolves the batch-level deadline and builds the run state.
func newBatch(cfg *config.Config, manifest *Manifest, out io.Writer) (*batch, error) {
	limit, err := timeout.DurationFromSeconds(cfg.TimeoutSeconds)
	if err != nil {
		return nil, err
	}

	strategy, err := timeout.ParseStrategy(cfg.Method)
	if err != nil {
		return nil, err
	}

	tracerLimit, err := timeout.DurationFromSeconds(cfg.TracerSeconds)
	if err != nil {
		return nil, err
	}

	if out == nil {
		out = os.Stdout
	}

	b := &batch{
		cfg:      cfg,
		manifest: manifest,
		guard:    timeout.NewGuard(timeout.WithAbortExitCode(cfg.AbortExitCode)),
		limit:    limit,
		strategy: strategy,
		out:      out,
	}

	if tracerLimit > 0 {
		b.tracer = timeout.NewTracer(tracerLimit)
	}

	return b, nil
}

// logHeader announces the enforcement configuration once, before the
// first unit runs.
func (b *batch) logHeader(ctx context.Context) {
	if b.limit > 0 {
		logger.InfoKV(ctx, "Deadline enforcement active",
			"timeout", b.limit.String(), "method", b.strategy.String())
	} else {
		logger.Info(ctx, "Deadline enforcement disabled")
	}

	if b.tracer != nil {
		logger.InfoKV(ctx, "Stuck-unit tracer armed", "after", b.cfg.TracerSeconds)
	}
}

// run executes every unit in manifest order. Units that never got to
// run because the operator interrupted the batch are reported as
// aborted.
func (b *batch) run(ctx context.Context) []Result {
	results := make([]Result, 0, len(b.manifest.Units))

	for _, unit := range b.manifest.Units {
		if ctx.Err() != nil {
			results = append(results, Result{
				Unit:    unit.Name,
				Outcome: OutcomeAborted,
				Err:     context.Cause(ctx),
			})

			continue
		}

		results = append(results, b.runUnit(ctx, unit))
	}

	return results
}

// runUnit executes one unit under its resolved deadline and classifies
// the outcome.
func (b *batch) runUnit(ctx context.Context, unit Unit) Result {
	ctx = logger.WithKV(ctx, "unit", unit.Name)

	deadline, err := b.deadlineFor(unit)
	if err != nil {
		return Result{Unit: unit.Name, Outcome: OutcomeFailed, Err: err}
	}

	result := Result{
		Unit:     unit.Name,
		Limit:    deadline.Limit,
		Strategy: deadline.Strategy,
	}

	logger.InfoKV(ctx, "Running unit",
		"command", strings.Join(unit.Command, " "), "limit", result.limitCell())

	if b.tracer != nil {
		b.tracer.Arm()
		defer b.tracer.Disarm()
	}

	before, snapErr := pidSnapshot()
	if snapErr != nil {
		logger.DebugKV(ctx, "Process snapshot failed", "error", snapErr)
	}

	started := time.Now()
	err = b.guard.Run(ctx, deadline, func(ctx context.Context) error {
		return runCommand(ctx, unit)
	})
	result.Elapsed = time.Since(started)

	result.Outcome, result.ExitCode, result.Err = classify(err)
	elapsed := result.Elapsed.Round(time.Millisecond).String()

	switch result.Outcome {
	case OutcomePassed:
		logger.InfoKV(ctx, "Unit passed", "elapsed", elapsed)
	case OutcomeFailed:
		logger.ErrorKV(ctx, "Unit failed", "elapsed", elapsed, "error", result.Err)
	case OutcomeTimedOut:
		logger.ErrorKV(ctx, "Unit timed out", "limit", deadline.Limit.String(), "elapsed", elapsed)

		if snapErr == nil {
			reportStrays(ctx, before)
		}
	case OutcomeAborted:
		logger.WarnKV(ctx, "Unit aborted", "elapsed", elapsed)
	}

	return result
}

// deadlineFor resolves the unit's deadline from the batch defaults and
// the unit's own overrides.
func (b *batch) deadlineFor(unit Unit) (timeout.Deadline, error) {
	limit := b.limit

	if unit.TimeoutSeconds != nil {
		unitLimit, err := timeout.DurationFromSeconds(*unit.TimeoutSeconds)
		if err != nil {
			return timeout.Deadline{}, fmt.Errorf("unit timeout: %w", err)
		}

		limit = unitLimit
	}

	strategy := b.strategy

	if unit.Method != "" {
		unitStrategy, err := timeout.ParseStrategy(unit.Method)
		if err != nil {
			return timeout.Deadline{}, fmt.Errorf("unit method: %w", err)
		}

		strategy = unitStrategy
	}

	return timeout.Deadline{Limit: limit, Strategy: strategy}, nil
}

// classify maps a unit's error to its outcome and exit code.
func classify(err error) (Outcome, int, error) {
	var (
		expired *timeout.ExpiredError
		exitErr *exec.ExitError
	)

	switch {
	case err == nil:
		return OutcomePassed, 0, nil
	case errors.As(err, &expired):
		return OutcomeTimedOut, 0, err
	case errors.Is(err, context.Canceled):
		return OutcomeAborted, 0, err
	case errors.As(err, &exitErr):
		return OutcomeFailed, exitErr.ExitCode(), err
	default:
		return OutcomeFailed, 0, err
	}
}
