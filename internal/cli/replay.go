package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/cvdsim/internal/config"
	"github.com/roach88/cvdsim/internal/store"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	RunID    string // optional - defaults to the latest run
}

// ReplayResult holds the replay result for one stored run.
type ReplayResult struct {
	RunID         string           `json:"run_id"`
	Seed          uint64           `json:"seed"`
	Steps         int              `json:"steps"`
	StoredHash    string           `json:"stored_model_hash"`
	CurrentHash   string           `json:"current_model_hash"`
	ModelDrift    bool             `json:"model_drift"`
	Keys          int              `json:"keys"`
	Mismatches    []store.Mismatch `json:"mismatches,omitempty"`
	Deterministic bool             `json:"deterministic"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <models-dir>",
		Short: "Re-run a stored run and verify its report",
		Long: `Re-run a stored run from its stored configuration and verify that the
replayed report matches the stored one bit for bit.

The models are compiled first and their hash compared with the hash
recorded for the run. A different hash means the models changed since
the run and the replay is not attempted.

Exit codes:
  0 - Replayed report is identical
  1 - Model drift or differing report values
  2 - Command error (database not found, run not found, etc.)

Examples:
  cvdsim replay ./models --db runs.db
  cvdsim replay ./models --db runs.db --run 0192f0c4-...
  cvdsim replay ./models --db runs.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run ID (default: latest run)")

	return cmd
}

func runReplay(opts *ReplayOptions, modelsDir string, cmd *cobra.Command) error {
	ctx := context.Background()
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

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

	cfg, err := config.FromJSON(run.Config)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err.Error())
	}
	cfg.Steps = run.Steps
	cfg.Seed = run.Seed

	loadResult, loadErrors := LoadModels(modelsDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		code, message := errorCode(loadErrors[0])
		return formatter.Fail(ExitCommandError, code, message)
	}

	result := ReplayResult{
		RunID:       run.ID,
		Seed:        run.Seed,
		Steps:       run.Steps,
		StoredHash:  run.ModelHash,
		CurrentHash: loadResult.Hash,
		ModelDrift:  run.ModelHash != loadResult.Hash,
	}

	if !result.ModelDrift {
		stored, err := st.ReadReport(ctx, run.ID, store.ReportFilter{})
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error())
		}

		slog.Info("replaying run", "run", run.ID, "seed", run.Seed, "steps", run.Steps)
		replayed, err := simulate(ctx, cfg, loadResult.Catalogue)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeSimulation, err.Error())
		}

		result.Keys = len(stored)
		result.Mismatches = store.CompareReports(stored, replayed)
		result.Deterministic = len(result.Mismatches) == 0
	}

	if opts.Format == "json" {
		return outputReplayJSON(cmd, result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(cmd *cobra.Command, result ReplayResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	message := replayFailure(result)
	if message != "" {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_DETERMINISM",
			Message: message,
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if message != "" {
		return NewExitError(ExitFailure, message)
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Replay of run %s (seed %d, %d steps)\n", result.RunID, result.Seed, result.Steps)
	if verbose {
		fmt.Fprintf(w, "  Stored model hash:  %s\n", result.StoredHash)
		fmt.Fprintf(w, "  Current model hash: %s\n", result.CurrentHash)
	}
	fmt.Fprintln(w)

	message := replayFailure(result)
	if message == "" {
		fmt.Fprintf(w, "✓ All %d report values reproduced exactly\n", result.Keys)
		return nil
	}

	for _, m := range result.Mismatches {
		fmt.Fprintf(w, "  %s\n", m)
	}
	fmt.Fprintf(w, "✗ %s\n", message)
	return NewExitError(ExitFailure, message)
}

// replayFailure describes why a replay failed, or returns "" on success.
func replayFailure(result ReplayResult) string {
	switch {
	case result.ModelDrift:
		return "models changed since the run (model hash differs)"
	case !result.Deterministic:
		return fmt.Sprintf("replay differs from stored report in %d of %d keys", len(result.Mismatches), result.Keys)
	default:
		return ""
	}
}
