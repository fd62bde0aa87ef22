package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/lockstep/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Journal string
	RunID   string // optional - specific run only
}

// ReplayReport holds the overall replay result.
type ReplayReport struct {
	Runs             []journal.ReplayResult `json:"runs"`
	TotalRuns        int                    `json:"total_runs"`
	AllDeterministic bool                   `json:"all_deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Re-run recorded scenarios and verify determinism",
		Long: `Re-run recorded scenarios and verify the traces reproduce exactly.

Each recorded run stores the scenario YAML and its canonical trace.
Replay re-executes the stored scenario from scratch and compares the
fresh trace against the stored one row by row; any divergence means
the primitives changed behavior or something non-deterministic leaked
into a trace.

Exit codes:
  0 - All replayed runs are deterministic
  1 - Determinism verification failed (differences detected)
  2 - Command error (journal not found, unknown run ID, etc.)

Examples:
  lockstep replay --journal runs.db
  lockstep replay --journal runs.db --run 0190cb0c-0000-7000-8000-000000000001
  lockstep replay --journal runs.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Journal, "journal", "", "path to journal database (required)")
	_ = cmd.MarkFlagRequired("journal")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "replay specific run only")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	jnl, err := journal.Open(opts.Journal)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer jnl.Close()

	var runIDs []string
	if opts.RunID != "" {
		runIDs = []string{opts.RunID}
	} else {
		runs, err := jnl.ListRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list runs", err)
		}
		for _, run := range runs {
			runIDs = append(runIDs, run.ID)
		}
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	report := ReplayReport{
		Runs:             []journal.ReplayResult{},
		TotalRuns:        len(runIDs),
		AllDeterministic: true,
	}

	if len(runIDs) == 0 {
		if formatter.Format == "json" {
			return formatter.Success(report)
		}
		fmt.Fprintln(formatter.Writer, "No runs found in journal.")
		return nil
	}

	for _, id := range runIDs {
		formatter.VerboseLog("Replaying run %s", id)
		result, err := jnl.ReplayCheck(ctx, id)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("failed to replay run %s", id), err)
		}
		if !result.Deterministic {
			report.AllDeterministic = false
		}
		report.Runs = append(report.Runs, *result)
	}

	if formatter.Format == "json" {
		if err := formatter.Success(report); err != nil {
			return err
		}
	} else {
		for _, r := range report.Runs {
			status := "deterministic"
			if !r.Deterministic {
				status = "MISMATCH"
			}
			fmt.Fprintf(formatter.Writer, "%s  %s (%s)\n", r.RunID, r.ScenarioName, status)
			for _, m := range r.Mismatches {
				fmt.Fprintf(formatter.Writer, "    %s\n", m)
			}
		}
	}

	if !report.AllDeterministic {
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}
