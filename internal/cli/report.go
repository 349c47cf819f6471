package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cvdsim/internal/metrics"
	"github.com/roach88/cvdsim/internal/store"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	*RootOptions
	Database string
	RunID    string
	Filter   store.ReportFilter
}

// ReportResult is the output of the report command.
type ReportResult struct {
	Run     store.Run          `json:"run"`
	Filter  store.ReportFilter `json:"filter"`
	Entries []metrics.Entry    `json:"entries"`
}

// NewReportCommand creates the report command.
func NewReportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a stored run's report",
		Long: `Print the report of a stored run, optionally filtered.

Without --run the most recent run is used. Filters combine: --disease
and --measure match exactly, --match keeps keys containing a substring
and --stratum keeps keys ending in a risk stratum label.

Examples:
  cvdsim report --db runs.db
  cvdsim report --db runs.db --disease ischemic_stroke --measure person_time
  cvdsim report --db runs.db --stratum SBP_high_LDL_high_FPG_high_BMI_high`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID (default: latest run)")
	cmd.Flags().StringVar(&opts.Filter.Disease, "disease", "", "only keys of this disease")
	cmd.Flags().StringVar(&opts.Filter.Measure, "measure", "", "only this measure (person_time|event_count)")
	cmd.Flags().StringVar(&opts.Filter.Match, "match", "", "only keys containing this substring")
	cmd.Flags().StringVar(&opts.Filter.Stratum, "stratum", "", "only keys of this risk stratum")

	return cmd
}

func runReport(opts *ReportOptions, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	if m := opts.Filter.Measure; m != "" && m != metrics.MeasurePersonTime && m != metrics.MeasureEventCount {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, fmt.Sprintf("unknown measure %q", m))
	}

	st, err := openExistingStore(opts.Database)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error())
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	run, err := resolveRun(ctx, st, opts.RunID)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error())
	}

	entries, err := st.ReadReport(ctx, run.ID, opts.Filter)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error())
	}
	slog.Debug("report read", "run", run.ID, "entries", len(entries))

	if formatter.Format == "json" {
		return formatter.Success(ReportResult{Run: run, Filter: opts.Filter, Entries: entries})
	}

	fmt.Fprintf(formatter.Writer, "Run %s (seed %d, %d steps, model %s)\n\n", run.ID, run.Seed, run.Steps, run.ModelHash)
	if len(entries) == 0 {
		fmt.Fprintln(formatter.Writer, "No matching report values.")
		return nil
	}
	return WriteReport(formatter.Writer, entries)
}

// resolveRun reads the named run, or the latest one when id is empty.
func resolveRun(ctx context.Context, st *store.Store, id string) (store.Run, error) {
	var (
		run store.Run
		err error
	)
	if id == "" {
		run, err = st.LatestRun(ctx)
	} else {
		run, err = st.ReadRun(ctx, id)
	}
	if errors.Is(err, sql.ErrNoRows) {
		if id == "" {
			return store.Run{}, errors.New("database has no runs")
		}
		return store.Run{}, fmt.Errorf("run not found: %s", id)
	}
	return run, err
}

// openExistingStore opens a database that must already exist. Open alone
// would create an empty one.
func openExistingStore(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database not found: %s", path)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return st, nil
}
