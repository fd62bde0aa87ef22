package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/lockstep/internal/harness"
	"github.com/roach88/lockstep/internal/journal"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Journal string

	// Tokens allows overriding the run token generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	Tokens journal.TokenGenerator
}

// RunReport is the JSON payload of the run command.
type RunReport struct {
	Scenarios []ScenarioReport `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
}

// ScenarioReport summarizes one executed scenario.
type ScenarioReport struct {
	Name   string   `json:"name"`
	Path   string   `json:"path"`
	Pass   bool     `json:"pass"`
	RunID  string   `json:"run_id,omitempty"`
	Events int      `json:"events"`
	Errors []string `json:"errors,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario-file-or-dir>",
		Short: "Execute scenarios against the mock primitives",
		Long: `Execute scenario YAML files against the deterministic mock primitives.

A file path runs that one scenario; a directory runs every .yaml and
.yml file inside it, sorted by name. With --journal, each run is
recorded (scenario YAML plus canonical trace) for later replay
verification.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, unreadable journal, etc.)

Examples:
  lockstep run scenarios/bounded_backpressure.yaml
  lockstep run scenarios/ --journal runs.db
  lockstep run scenarios/ --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to journal database for recording runs")

	return cmd
}

func runScenarios(opts *RunOptions, path string, cmd *cobra.Command) error {
	// Configure logging based on verbose flag
	logLevel := slog.LevelWarn
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	paths, err := harness.DiscoverScenarios(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to discover scenarios", err)
	}
	logger.Debug("scenarios discovered", "count", len(paths))

	var jnl *journal.Journal
	if opts.Journal != "" {
		jnl, err = journal.Open(opts.Journal)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open journal", err)
		}
		defer func() {
			if closeErr := jnl.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
	}

	tokens := opts.Tokens
	if tokens == nil {
		tokens = journal.UUIDv7Generator{}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	report := RunReport{}
	for _, scenarioPath := range paths {
		sr, err := runOneScenario(ctx, scenarioPath, jnl, tokens, logger)
		if err != nil {
			return err
		}
		if sr.Pass {
			report.Passed++
		} else {
			report.Failed++
		}
		report.Scenarios = append(report.Scenarios, sr)
	}

	if err := outputRunReport(opts, cmd, report); err != nil {
		return err
	}

	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenario(s) failed", report.Failed, len(paths)))
	}
	return nil
}

func runOneScenario(ctx context.Context, path string, jnl *journal.Journal, tokens journal.TokenGenerator, logger *slog.Logger) (ScenarioReport, error) {
	sr := ScenarioReport{Path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		return sr, WrapExitError(ExitCommandError, fmt.Sprintf("failed to read scenario %s", path), err)
	}

	scenario, err := harness.ParseScenario(data)
	if err != nil {
		sr.Errors = append(sr.Errors, err.Error())
		return sr, nil
	}
	sr.Name = scenario.Name

	logger.Debug("running scenario", "name", scenario.Name, "path", path)
	result, err := harness.Run(scenario)
	if err != nil {
		sr.Errors = append(sr.Errors, fmt.Sprintf("execution failed: %v", err))
		return sr, nil
	}

	sr.Pass = result.Pass
	sr.Events = len(result.Trace)
	sr.Errors = append(sr.Errors, result.Errors...)

	if jnl != nil {
		run := journal.Run{
			ID:           tokens.Generate(),
			ScenarioName: scenario.Name,
			ScenarioYAML: string(data),
			Pass:         result.Pass,
		}
		if err := jnl.WriteRun(ctx, run, result.Trace); err != nil {
			return sr, WrapExitError(ExitCommandError, fmt.Sprintf("failed to record run for %s", path), err)
		}
		sr.RunID = run.ID
		logger.Debug("run recorded", "run_id", run.ID)
	}

	return sr, nil
}

func outputRunReport(opts *RunOptions, cmd *cobra.Command, report RunReport) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if formatter.Format == "json" {
		return formatter.Success(report)
	}

	for _, sr := range report.Scenarios {
		status := "PASS"
		if !sr.Pass {
			status = "FAIL"
		}
		name := sr.Name
		if name == "" {
			name = sr.Path
		}
		fmt.Fprintf(formatter.Writer, "%s  %s (%d events)", status, name, sr.Events)
		if sr.RunID != "" {
			fmt.Fprintf(formatter.Writer, "  run=%s", sr.RunID)
		}
		fmt.Fprintln(formatter.Writer)
		for _, msg := range sr.Errors {
			fmt.Fprintf(formatter.Writer, "    %s\n", msg)
		}
	}
	fmt.Fprintf(formatter.Writer, "\n%d passed, %d failed\n", report.Passed, report.Failed)
	return nil
}
