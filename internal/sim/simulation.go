package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/roach88/cvdsim/internal/engine"
	"github.com/roach88/cvdsim/internal/metrics"
	"github.com/roach88/cvdsim/internal/model"
	"github.com/roach88/cvdsim/internal/population"
	"github.com/roach88/cvdsim/internal/stratify"
)

// ErrPastHorizon is returned when a run would step beyond Config.Horizon.
var ErrPastHorizon = errors.New("step past the configured horizon")

// DefaultStepSize is one week.
const DefaultStepSize = 7 * 24 * time.Hour

// Config configures a simulation.
type Config struct {
	Start    time.Time
	StepSize time.Duration
	Seed     uint64

	// Horizon is the planned number of steps. It decides which years are
	// enumerated when reporting by year, and the clock never steps past it.
	Horizon int

	// Factors are the stratification factors. Nil means
	// stratify.DefaultFactors.
	Factors []stratify.Factor

	// Metrics selects report groupings for every disease.
	Metrics metrics.Config

	// AgeGroups overrides metrics.DefaultAgeGroups.
	AgeGroups []metrics.AgeGroup

	// Prevalence maps disease names to initial state shares.
	Prevalence map[string][]StateShare

	// CheckInvariants enables the accumulators' partition checks.
	CheckInvariants bool

	// RecordTrajectory keeps a copy of every state column after every step.
	RecordTrajectory bool
}

// Snapshot is the state of every disease after one step.
type Snapshot struct {
	Step   int64
	States map[string][]string
}

// Option configures a Simulation.
type Option func(*Simulation)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulation) { s.logger = l }
}

// Simulation runs a catalogue of disease models over a population.
type Simulation struct {
	cfg        Config
	catalogue  *model.Catalogue
	table      *population.Table
	clock      *engine.Clock
	stream     *engine.Stream
	registry   *Registry
	strat      *stratify.Stratifier
	components []*DiseaseComponent
	observers  []*metrics.Accumulator
	logger     *slog.Logger

	initialized bool
	trajectory  []Snapshot
}

// New wires components and observers for every model in the catalogue.
// Nothing touches the table until Initialize.
func New(cat *model.Catalogue, table *population.Table, cfg Config, opts ...Option) (*Simulation, error) {
	if cfg.StepSize <= 0 {
		cfg.StepSize = DefaultStepSize
	}
	factors := cfg.Factors
	if factors == nil {
		factors = stratify.DefaultFactors()
	}
	strat, err := stratify.New(factors...)
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		cfg:       cfg,
		catalogue: cat,
		table:     table,
		clock:     engine.NewClock(cfg.Start, cfg.StepSize),
		stream:    engine.NewStream(cfg.Seed),
		registry:  NewRegistry(),
		strat:     strat,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	for name := range cfg.Prevalence {
		if _, err := cat.Model(name); err != nil {
			return nil, fmt.Errorf("prevalence: %w", err)
		}
	}

	years := ReportYears(cfg.Start, cfg.StepSize, cfg.Horizon)
	for _, m := range cat.Models() {
		comp, err := NewDiseaseComponent(m, s.stream, cfg.Prevalence[m.Name()])
		if err != nil {
			return nil, err
		}
		acc, err := metrics.New(m, strat, metrics.Options{
			Config:          cfg.Metrics,
			Years:           years,
			AgeGroups:       cfg.AgeGroups,
			CheckInvariants: cfg.CheckInvariants,
		})
		if err != nil {
			return nil, err
		}
		s.components = append(s.components, comp)
		s.observers = append(s.observers, acc)
	}

	for _, c := range s.components {
		s.registry.Register(PhaseInitialize, c.Name(), c.Initialize)
	}
	s.registry.Register(PhaseInitialize, "stratify", func(ev Event) error {
		_, err := s.strat.Assign(ev.Table)
		return err
	})
	for _, acc := range s.observers {
		name := acc.Model().Name() + "_observer"
		s.registry.Register(PhaseInitialize, name, func(ev Event) error {
			return acc.Initialize(ev.Table)
		})
		s.registry.Register(PhasePrepare, name, func(ev Event) error {
			return acc.Prepare(ev.Table, ev.Now, ev.StepSize)
		})
		s.registry.Register(PhaseCollect, name, func(ev Event) error {
			return acc.Collect(ev.Table, ev.EventTime)
		})
	}
	for _, c := range s.components {
		s.registry.Register(PhaseStep, c.Name(), c.Step)
	}
	s.registry.Register(PhaseAdvance, "aging", ageSimulants)
	return s, nil
}

// ReportYears lists the calendar years touched by horizon steps from start,
// counting both step start times and event times.
func ReportYears(start time.Time, step time.Duration, horizon int) []int {
	first := start.Year()
	last := start.Add(time.Duration(horizon) * step).Year()
	years := make([]int, 0, last-first+1)
	for y := first; y <= last; y++ {
		years = append(years, y)
	}
	return years
}

func ageSimulants(ev Event) error {
	age, err := ev.Table.FloatColumn(population.ColumnAge)
	if err != nil {
		// Populations without ages are allowed; there is nothing to advance.
		return nil
	}
	years := float64(ev.StepSize) / float64(model.Year)
	for _, sim := range ev.Table.Index() {
		age[sim] += years
	}
	return nil
}

// Registry returns the lifecycle registry. Listeners registered before the
// first step run after the built-in ones for their phase.
func (s *Simulation) Registry() *Registry { return s.registry }

// Clock returns the simulation clock.
func (s *Simulation) Clock() *engine.Clock { return s.clock }

// Table returns the population table.
func (s *Simulation) Table() *population.Table { return s.table }

// Stratifier returns the stratifier.
func (s *Simulation) Stratifier() *stratify.Stratifier { return s.strat }

// Initialize emits the initialize phase once.
func (s *Simulation) Initialize() error {
	if s.initialized {
		return nil
	}
	if err := s.registry.Emit(PhaseInitialize, eventAt(s.table, s.clock, 0)); err != nil {
		return err
	}
	s.initialized = true
	s.logger.Info("simulation initialized",
		"models", s.catalogue.Names(),
		"simulants", s.table.Len(),
		"strata", len(s.strat.Labels()),
		"seed", s.cfg.Seed)
	return nil
}

// Run initializes if needed and takes steps steps. The context is checked
// before each step. A run that would end past the horizon takes no steps.
func (s *Simulation) Run(ctx context.Context, steps int) error {
	if end := s.clock.Current() + int64(steps); end > int64(s.cfg.Horizon) {
		return fmt.Errorf("run to step %d: %w (%d)", end, ErrPastHorizon, s.cfg.Horizon)
	}
	if err := s.Initialize(); err != nil {
		return err
	}
	for i := 0; i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("stopped after step %d: %w", s.clock.Current(), err)
		}
		if err := s.Step(); err != nil {
			return err
		}
	}
	s.logger.Info("simulation finished", "steps", s.clock.Current(), "time", s.clock.Now().Format(time.DateOnly))
	return nil
}

// Step takes one step.
func (s *Simulation) Step() error {
	if !s.initialized {
		return fmt.Errorf("step before initialize")
	}
	n := s.clock.Current() + 1
	if n > int64(s.cfg.Horizon) {
		return fmt.Errorf("step %d: %w (%d)", n, ErrPastHorizon, s.cfg.Horizon)
	}
	ev := eventAt(s.table, s.clock, n)
	for _, phase := range StepPhases {
		if err := s.registry.Emit(phase, ev); err != nil {
			return fmt.Errorf("step %d: %w", n, err)
		}
	}
	s.clock.Next()
	s.logger.Debug("step complete", "step", n, "time", ev.EventTime.Format(time.DateOnly))

	if s.cfg.RecordTrajectory {
		snap := Snapshot{Step: n, States: make(map[string][]string, len(s.components))}
		for _, c := range s.components {
			snap.States[c.Name()] = append([]string(nil), c.States()...)
		}
		s.trajectory = append(s.trajectory, snap)
	}
	return nil
}

// Trajectory returns the recorded snapshots.
func (s *Simulation) Trajectory() []Snapshot {
	return s.trajectory
}

// Report merges every disease's report.
func (s *Simulation) Report() map[string]float64 {
	out := make(map[string]float64)
	for _, acc := range s.observers {
		for k, v := range acc.Report() {
			out[k] = v
		}
	}
	return out
}

// Entries returns every disease's report entries sorted by key.
func (s *Simulation) Entries() []metrics.Entry {
	var out []metrics.Entry
	for _, acc := range s.observers {
		out = append(out, acc.Entries()...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
