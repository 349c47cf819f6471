package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/cvdsim/internal/compiler"
	"github.com/roach88/cvdsim/internal/metrics"
	"github.com/roach88/cvdsim/internal/model"
	"github.com/roach88/cvdsim/internal/sim"
	"github.com/roach88/cvdsim/internal/store"
	"github.com/roach88/cvdsim/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios against a fresh store with a fixed run ID.
type Harness struct {
	store     *store.Store
	catalogue *model.Catalogue
	modelHash string
	logger    *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Compile the scenario's models
// 3. Run the simulation and store the run with its report
// 4. Read the report back and evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:", store.WithRunIDGenerator(testutil.NewFixedIDGenerator(scenario.RunID)))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	_, cat, hash, err := compiler.CompileDir(scenario.Models)
	if err != nil {
		return nil, fmt.Errorf("failed to compile models: %w", err)
	}

	h := &Harness{
		store:     st,
		catalogue: cat,
		modelHash: hash,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	ctx := context.Background()

	entries, err := h.simulate(ctx, scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to run simulation: %w", err)
	}

	run, err := h.persist(ctx, scenario, entries)
	if err != nil {
		return nil, err
	}

	result := NewResult()
	result.RunID = run.ID
	result.ModelHash = hash
	result.Report, err = st.ReadReport(ctx, run.ID, store.ReportFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
		RunID: run.ID,
		Rerun: func() ([]metrics.Entry, error) {
			return h.simulate(ctx, scenario)
		},
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// simulate builds a fresh population and simulation from the scenario's
// configuration and runs it to the horizon.
func (h *Harness) simulate(ctx context.Context, scenario *Scenario) ([]metrics.Entry, error) {
	cfg := scenario.Config
	s, err := cfg.Build(h.catalogue, sim.WithLogger(h.logger))
	if err != nil {
		return nil, err
	}
	if err := s.Run(ctx, cfg.Steps); err != nil {
		return nil, err
	}
	return s.Entries(), nil
}

func (h *Harness) persist(ctx context.Context, scenario *Scenario, entries []metrics.Entry) (store.Run, error) {
	cfgJSON, err := scenario.Config.JSON()
	if err != nil {
		return store.Run{}, err
	}
	run, err := h.store.WriteRunAtomic(ctx, store.Run{
		ModelHash: h.modelHash,
		Seed:      scenario.Config.Seed,
		Steps:     scenario.Config.Steps,
		Config:    cfgJSON,
	}, entries)
	if err != nil {
		return store.Run{}, fmt.Errorf("failed to store run: %w", err)
	}
	return run, nil
}
