package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/lockstep/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Journal string
	RunID   string
}

// TraceReport holds the stored trace of one run.
type TraceReport struct {
	Run    journal.Run           `json:"run"`
	Events []journal.StoredEvent `json:"events"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the stored trace of a recorded run",
		Long: `Print the stored trace of a recorded run, one event per line.

Without --run, lists all recorded runs instead.

Examples:
  lockstep trace --journal runs.db
  lockstep trace --journal runs.db --run 0190cb0c-0000-7000-8000-000000000001
  lockstep trace --journal runs.db --run 0190cb0c-... --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to journal database (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID to trace")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	jnl, err := journal.Open(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer jnl.Close()

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.RunID == "" {
		return listRuns(ctx, jnl, formatter)
	}

	run, err := jnl.ReadRun(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}
	events, err := jnl.ReadRunEvents(ctx, opts.RunID)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run events", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(TraceReport{Run: run, Events: events})
	}

	status := "pass"
	if !run.Pass {
		status = "fail"
	}
	fmt.Fprintf(formatter.Writer, "run %s  scenario=%s  %s  recorded=%s\n\n",
		run.ID, run.ScenarioName, status, run.CreatedAt)
	for _, ev := range events {
		if ev.Target != "" {
			fmt.Fprintf(formatter.Writer, "[%d] %s %s %s\n", ev.Seq, ev.Kind, ev.Target, ev.Detail)
		} else {
			fmt.Fprintf(formatter.Writer, "[%d] %s %s\n", ev.Seq, ev.Kind, ev.Detail)
		}
	}
	return nil
}

// listRuns prints every recorded run when no --run is given.
func listRuns(ctx context.Context, jnl *journal.Journal, formatter *OutputFormatter) error {
	runs, err := jnl.ListRuns(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(formatter.Writer, "No runs found in journal.")
		return nil
	}
	for _, run := range runs {
		status := "pass"
		if !run.Pass {
			status = "fail"
		}
		fmt.Fprintf(formatter.Writer, "%s  %s  %s  %s\n", run.ID, run.ScenarioName, status, run.CreatedAt)
	}
	return nil
}
