package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/cvdsim/internal/config"
	"github.com/roach88/cvdsim/internal/metrics"
	"github.com/roach88/cvdsim/internal/model"
	"github.com/roach88/cvdsim/internal/sim"
	"github.com/roach88/cvdsim/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Config          string
	Database        string
	CheckInvariants bool
	Steps           int
	Seed            uint64

	// IDGenerator allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator store.RunIDGenerator
}

// RunResult is the output of the run command.
type RunResult struct {
	RunID     string          `json:"run_id,omitempty"`
	ModelHash string          `json:"model_hash"`
	Seed      uint64          `json:"seed"`
	Steps     int             `json:"steps"`
	Report    []metrics.Entry `json:"report"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <models-dir>",
		Short: "Simulate a population and print its report",
		Long: `Simulate a generated population through every disease model.

The run configuration (seed, steps, population, stratification, report
grouping) is read from --config, then CVDSIM_SEED, CVDSIM_STEPS and
CVDSIM_DB, then flags. With a database the run, its configuration and
its report are stored together so they can be reported on and replayed.

Example:
  cvdsim run ./models --config run.yaml
  cvdsim run ./models --config run.yaml --db runs.db --steps 520`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "path to run configuration YAML (required)")
	_ = cmd.MarkFlagRequired("config")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database to store the run")
	cmd.Flags().BoolVar(&opts.CheckInvariants, "check-invariants", false, "verify the person-time partition every step")
	cmd.Flags().IntVar(&opts.Steps, "steps", 0, "number of steps (overrides the configuration)")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "random seed (overrides the configuration)")

	return cmd
}

func runSimulation(opts *RunOptions, modelsDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err.Error())
	}
	if cmd.Flags().Changed("steps") {
		cfg.Steps = opts.Steps
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = opts.Seed
	}
	if opts.Database != "" {
		cfg.DB = opts.Database
	}
	if opts.CheckInvariants {
		cfg.CheckInvariants = true
	}
	if err := cfg.Validate(); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, err.Error())
	}

	slog.Info("compiling models", "dir", modelsDir)
	loadResult, loadErrors := LoadModels(modelsDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		code, message := errorCode(loadErrors[0])
		return formatter.Fail(ExitCommandError, code, message)
	}
	slog.Info("models compiled", "diseases", loadResult.Catalogue.Names(), "hash", loadResult.Hash)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	entries, err := simulate(ctx, cfg, loadResult.Catalogue)
	if err != nil {
		if model.IsConfigError(err) {
			return formatter.Fail(ExitCommandError, ErrCodeConfig, err.Error())
		}
		return formatter.Fail(ExitFailure, ErrCodeSimulation, err.Error())
	}

	result := RunResult{
		ModelHash: loadResult.Hash,
		Seed:      cfg.Seed,
		Steps:     cfg.Steps,
		Report:    entries,
	}

	if cfg.DB != "" {
		run, err := persistRun(ctx, cfg, loadResult.Hash, entries, opts.IDGenerator)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, err.Error())
		}
		result.RunID = run.ID
		slog.Info("run stored", "db", cfg.DB, "run", run.ID, "seq", run.Seq)
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	if err := WriteReport(formatter.Writer, result.Report); err != nil {
		return err
	}
	if result.RunID != "" {
		fmt.Fprintf(formatter.Writer, "\nStored run %s in %s\n", result.RunID, cfg.DB)
	}
	return nil
}

// simulate builds the population and simulation for cfg and runs it to
// the horizon.
func simulate(ctx context.Context, cfg *config.RunConfig, cat *model.Catalogue) ([]metrics.Entry, error) {
	s, err := cfg.Build(cat, sim.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}
	if err := s.Run(ctx, cfg.Steps); err != nil {
		return nil, err
	}
	return s.Entries(), nil
}

// persistRun stores a run and its report in one transaction.
func persistRun(ctx context.Context, cfg *config.RunConfig, hash string, entries []metrics.Entry, gen store.RunIDGenerator) (store.Run, error) {
	var storeOpts []store.Option
	if gen != nil {
		storeOpts = append(storeOpts, store.WithRunIDGenerator(gen))
	}
	st, err := store.Open(cfg.DB, storeOpts...)
	if err != nil {
		return store.Run{}, fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	cfgJSON, err := cfg.JSON()
	if err != nil {
		return store.Run{}, err
	}
	return st.WriteRunAtomic(ctx, store.Run{
		ModelHash: hash,
		Seed:      cfg.Seed,
		Steps:     cfg.Steps,
		Config:    cfgJSON,
	}, entries)
}

// signalContext cancels on SIGINT or SIGTERM. The simulation checks the
// context between steps.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
