package cli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/timebox/internal/journal"
	"github.com/roach88/timebox/internal/metrics"
	"github.com/roach88/timebox/internal/scenario"
	"github.com/roach88/timebox/internal/telemetry"
	"github.com/roach88/timebox/internal/timebox"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Journal      string
	Source       string
	MetricsOut   string
	MaxProducers int
	GuardErrors  string
	Timeout      time.Duration
	Filter       string
	GoldenDir    string
	Update       bool
}

// RoundSummary is the per-round outcome shown by run.
type RoundSummary struct {
	Round    int    `json:"round"`
	State    string `json:"state"`
	Reaction string `json:"reaction,omitempty"`
	Signaled bool   `json:"signaled"`
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string         `json:"name"`
	File   string         `json:"file"`
	Pass   bool           `json:"pass"`
	Rounds []RoundSummary `json:"rounds,omitempty"`
	Errors []string       `json:"errors,omitempty"`
}

// RunResult holds the overall run result.
type RunResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml|dir>...",
		Short: "Run dispatch scenarios",
		Long: `Run scripted dispatch scenarios against their CUE reactions.

Each scenario gets a fresh coordinator. Round outcomes can be recorded in
a SQLite journal, counted in Prometheus metrics and exported as
OpenTelemetry spans (set TIMEBOX_OTEL_ENDPOINT).

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, unreadable journal, etc.)

Examples:
  timebox run ./scenarios
  timebox run ./scenarios --filter "gather_*" --journal rounds.db
  timebox run first_choice.yaml --golden-dir ./golden --update
  timebox run ./scenarios --metrics-out metrics.txt --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "record round outcomes in this SQLite database (default $TIMEBOX_JOURNAL)")
	cmd.Flags().StringVar(&opts.Source, "source", "", "journal source label (default: scenario name)")
	cmd.Flags().StringVar(&opts.MetricsOut, "metrics-out", "", "write Prometheus metrics in text format to this file")
	cmd.Flags().IntVar(&opts.MaxProducers, "max-producers", 0, "bound concurrent async producers, 0 = unbounded (default $TIMEBOX_MAX_PRODUCERS)")
	cmd.Flags().StringVar(&opts.GuardErrors, "guard-errors", "", "guard failure policy: surface|log (default $TIMEBOX_GUARD_ERRORS)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "React timeout for rounds without one (default $TIMEBOX_REACT_TIMEOUT)")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenario files by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "compare traces against <dir>/<scenario>.golden")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite golden files instead of comparing")

	return cmd
}

// applyConfig fills every flag the user did not set from the environment.
func (o *RunOptions) applyConfig(cmd *cobra.Command) error {
	cfg := o.Config
	flags := cmd.Flags()
	if !flags.Changed("journal") {
		o.Journal = cfg.Journal
	}
	if !flags.Changed("max-producers") {
		o.MaxProducers = cfg.MaxProducers
	}
	if !flags.Changed("guard-errors") {
		o.GuardErrors = cfg.GuardErrors
	}
	if !flags.Changed("timeout") {
		o.Timeout = cfg.ReactTimeout
	}

	if o.GuardErrors == "" {
		o.GuardErrors = timebox.GuardErrorsSurface.String()
	}
	if _, ok := timebox.ParseGuardErrorPolicy(o.GuardErrors); !ok {
		return fmt.Errorf("invalid --guard-errors %q: must be surface or log", o.GuardErrors)
	}
	if o.MaxProducers < 0 {
		return fmt.Errorf("invalid --max-producers %d: must not be negative", o.MaxProducers)
	}
	if o.Timeout < 0 {
		return fmt.Errorf("invalid --timeout %s: must not be negative", o.Timeout)
	}
	if o.Update && o.GoldenDir == "" {
		return fmt.Errorf("--update requires --golden-dir")
	}
	return nil
}

func runScenarios(opts *RunOptions, paths []string, cmd *cobra.Command) error {
	if err := opts.applyConfig(cmd); err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}

	files, err := findScenarioFiles(paths, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := opts.newLogger(cmd.ErrOrStderr())

	endpoint := ""
	if opts.Config.TracingEnabled() {
		endpoint = opts.Config.OTelEndpoint
	}
	tp, err := telemetry.Setup(ctx, "timebox", endpoint)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up tracing", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("tracer shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	collector, err := metrics.New(reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to register metrics", err)
	}

	r := &runner{opts: opts, logger: logger, tracer: tp, metrics: collector}
	result := RunResult{Scenarios: make([]ScenarioResult, 0, len(files)), Total: len(files)}
	formatter := opts.formatter(cmd)

	for _, file := range files {
		if ctx.Err() != nil {
			break
		}
		sr, err := r.run(ctx, file)
		if err != nil {
			return err
		}
		result.Scenarios = append(result.Scenarios, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
		printScenarioText(formatter, sr)
	}

	if opts.MetricsOut != "" {
		if err := writeMetrics(opts.MetricsOut, reg); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
		formatter.VerboseLog("metrics written to %s", opts.MetricsOut)
	}

	return outputRunResult(formatter, result)
}

type runner struct {
	opts    *RunOptions
	logger  *slog.Logger
	tracer  *telemetry.Provider
	metrics *metrics.Collector
}

// run executes one scenario file. Only journal failures are returned as
// errors; everything else is a failed ScenarioResult.
func (r *runner) run(ctx context.Context, file string) (ScenarioResult, error) {
	res := ScenarioResult{Name: filepath.Base(file), File: file}

	s, err := scenario.Load(file)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("failed to load scenario: %v", err)}
		return res, nil
	}
	res.Name = s.Name

	observers := []timebox.Observer{r.metrics}
	clock := timebox.NewClock()
	if r.opts.Journal != "" {
		source := r.opts.Source
		if source == "" {
			source = s.Name
		}
		j, err := journal.Open(r.opts.Journal, journal.WithSource(source), journal.WithLogger(r.logger))
		if err != nil {
			return res, WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if err := j.Close(); err != nil {
				r.logger.Error("error closing journal", "error", err)
			}
		}()
		observers = append(observers, j)

		last, err := j.LastSeq(ctx)
		if err != nil {
			return res, WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		clock = timebox.NewClockAt(last)
	}

	policy, _ := timebox.ParseGuardErrorPolicy(r.opts.GuardErrors)
	logger := r.logger.With("scenario", s.Name)

	logger.Debug("running scenario", "file", file, "rounds", len(s.Rounds))
	result, err := scenario.Run(ctx, s,
		scenario.WithDefaultTimeout(r.opts.Timeout),
		scenario.WithCoordinatorOptions(
			timebox.WithLogger(logger),
			timebox.WithGuardErrorPolicy(policy),
			timebox.WithMaxProducers(r.opts.MaxProducers),
			timebox.WithTracerProvider(r.tracer),
			timebox.WithObserver(timebox.Observers(observers...)),
			timebox.WithClock(clock),
		),
	)
	if err != nil {
		res.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return res, nil
	}

	for i, out := range result.Outcomes {
		res.Rounds = append(res.Rounds, RoundSummary{
			Round:    i + 1,
			State:    string(out.State),
			Reaction: out.Reaction,
			Signaled: out.Signaled,
		})
	}
	res.Pass = result.Pass
	res.Errors = append(res.Errors, result.Errors...)

	if r.opts.GoldenDir != "" {
		if err := r.golden(s, result); err != nil {
			res.Pass = false
			res.Errors = append(res.Errors, err.Error())
		}
	}
	return res, nil
}

// golden compares or rewrites the scenario's golden trace.
func (r *runner) golden(s *scenario.Scenario, result *scenario.Result) error {
	data, err := scenario.MarshalTrace(s.Name, result)
	if err != nil {
		return fmt.Errorf("failed to marshal trace: %w", err)
	}
	path := filepath.Join(r.opts.GoldenDir, s.Name+".golden")

	if r.opts.Update {
		if err := os.MkdirAll(r.opts.GoldenDir, 0755); err != nil {
			return fmt.Errorf("failed to create golden directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to write golden file: %w", err)
		}
		return nil
	}

	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("golden file not found: %s (run with --update to create it)", path)
	}
	if err != nil {
		return fmt.Errorf("failed to read golden file: %w", err)
	}
	if !bytes.Equal(want, data) {
		return fmt.Errorf("trace does not match golden file %s (run with --update to regenerate)", path)
	}
	return nil
}

// findScenarioFiles expands directories into their YAML files. Explicit
// file arguments are kept even if they do not match the filter.
func findScenarioFiles(paths []string, filter string) ([]string, error) {
	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("scenario path not found: %s", p)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := filepath.Ext(path)
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}
			if filter != "" {
				name := strings.TrimSuffix(filepath.Base(path), ext)
				if ok, _ := filepath.Match(filter, name); !ok {
					return nil
				}
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func writeMetrics(path string, g prometheus.Gatherer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := metrics.WriteText(f, g); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func printScenarioText(f *OutputFormatter, sr ScenarioResult) {
	mark := "✓"
	if !sr.Pass {
		mark = "✗"
	}
	f.Textf("%s %s", mark, sr.Name)
	if f.Verbose || !sr.Pass {
		for _, rs := range sr.Rounds {
			line := fmt.Sprintf("    round %d: %s", rs.Round, rs.State)
			if rs.Reaction != "" {
				line += " " + rs.Reaction
			}
			if rs.Signaled {
				line += " (signaled)"
			}
			f.Textf("%s", line)
		}
	}
	for _, e := range sr.Errors {
		f.Textf("  %s", e)
	}
}

func outputRunResult(f *OutputFormatter, result RunResult) error {
	var failure *ExitError
	if result.Failed > 0 {
		failure = NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	if f.Format == "json" {
		var cliErr *CLIError
		if failure != nil {
			cliErr = &CLIError{Code: "E_SCENARIO_FAILED", Message: failure.Message}
		}
		if err := f.JSON(result, cliErr); err != nil {
			return err
		}
		if failure != nil {
			return failure
		}
		return nil
	}

	f.Textf("")
	f.Textf("Summary: %d passed, %d failed, %d total", result.Passed, result.Failed, result.Total)
	if failure != nil {
		return failure
	}
	if result.Total == 0 {
		f.Textf("No scenarios found.")
		return nil
	}
	f.Textf("✓ All scenarios passed")
	return nil
}
