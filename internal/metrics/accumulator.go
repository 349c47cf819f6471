package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/roach88/cvdsim/internal/model"
	"github.com/roach88/cvdsim/internal/population"
	"github.com/roach88/cvdsim/internal/stratify"
)

// Config selects the optional grouping keys. All default to false.
type Config struct {
	ByAge  bool `yaml:"by_age" json:"by_age"`
	ByYear bool `yaml:"by_year" json:"by_year"`
	BySex  bool `yaml:"by_sex" json:"by_sex"`
}

// Options configures an Accumulator.
type Options struct {
	Config

	// Years enumerates the year buckets when ByYear is set.
	Years []int

	// Sexes enumerates the sex buckets when BySex is set.
	// Defaults to DefaultSexes.
	Sexes []string

	// AgeGroups enumerates the age buckets when ByAge is set.
	// Defaults to DefaultAgeGroups.
	AgeGroups []AgeGroup

	// States and Transitions restrict what is observed. Empty means
	// every state and every state-changing transition of the model.
	States      []string
	Transitions []string

	// CheckInvariants enables the person-time partition check.
	CheckInvariants bool
}

// Entry is one report value.
type Entry struct {
	Key     string  `json:"key"`
	Disease string  `json:"disease"`
	Measure string  `json:"measure"`
	Value   float64 `json:"value"`
}

// Accumulator collects metrics for one disease model.
type Accumulator struct {
	model    *model.DiseaseModel
	strat    *stratify.Stratifier
	opts     Options
	states   []string
	observed map[string]bool
	trans    map[string]bool

	values  map[string]float64
	measure map[string]string

	stateCol []string
	prevCol  []string
	ageCol   []float64
	sexCol   []string
}

// PreviousColumn returns the name of the previous-state column for a
// disease.
func PreviousColumn(disease string) string {
	return "previous_" + disease
}

// New creates an accumulator and its dense set of zero-valued keys.
// States and transitions named in opts must belong to m.
func New(m *model.DiseaseModel, s *stratify.Stratifier, opts Options) (*Accumulator, error) {
	if opts.Sexes == nil {
		opts.Sexes = DefaultSexes()
	}
	if opts.AgeGroups == nil {
		opts.AgeGroups = DefaultAgeGroups()
	}
	if opts.ByYear && len(opts.Years) == 0 {
		return nil, &InvariantError{Code: ErrCodeOptions, Model: m.Name(), Message: "by_year requires at least one year"}
	}

	a := &Accumulator{
		model:   m,
		strat:   s,
		opts:    opts,
		trans:   make(map[string]bool),
		values:  make(map[string]float64),
		measure: make(map[string]string),
	}

	if len(opts.States) == 0 {
		a.states = m.StateIDs()
	} else {
		for _, id := range opts.States {
			if _, ok := m.State(id); !ok {
				return nil, &model.ConfigError{
					Code:    model.ErrCodeUnknownCatalogueID,
					Model:   m.Name(),
					Field:   "states",
					Message: fmt.Sprintf("observed state %q is not in the model", id),
				}
			}
			a.states = append(a.states, id)
		}
	}

	var transitions []string
	if len(opts.Transitions) == 0 {
		for _, t := range m.EventTransitions() {
			transitions = append(transitions, t.ID)
		}
	} else {
		known := make(map[string]bool)
		for _, t := range m.EventTransitions() {
			known[t.ID] = true
		}
		for _, id := range opts.Transitions {
			if !known[id] {
				return nil, &model.ConfigError{
					Code:    model.ErrCodeUnknownCatalogueID,
					Model:   m.Name(),
					Field:   "transitions",
					Message: fmt.Sprintf("observed transition %q is not in the model", id),
				}
			}
			transitions = append(transitions, id)
		}
	}
	for _, id := range transitions {
		a.trans[id] = true
	}
	a.observed = make(map[string]bool, len(a.states))
	for _, st := range a.states {
		a.observed[st] = true
	}

	for _, c := range a.cells() {
		for _, st := range a.states {
			a.touch(PersonTimeKey(st, c), MeasurePersonTime)
		}
		for _, id := range transitions {
			a.touch(EventCountKey(id, c), MeasureEventCount)
		}
	}
	return a, nil
}

// Model returns the observed disease model.
func (a *Accumulator) Model() *model.DiseaseModel { return a.model }

func (a *Accumulator) touch(key, measure string) {
	if _, ok := a.values[key]; !ok {
		a.values[key] = 0
		a.measure[key] = measure
	}
}

func (a *Accumulator) add(key, measure string, v float64) {
	a.touch(key, measure)
	a.values[key] += v
}

// cells enumerates every (year, sex, age group, stratum) combination.
func (a *Accumulator) cells() []Cell {
	years := []int{0}
	if a.opts.ByYear {
		years = a.opts.Years
	}
	sexes := []string{""}
	if a.opts.BySex {
		sexes = a.opts.Sexes
	}
	ages := []string{""}
	if a.opts.ByAge {
		ages = ages[:0]
		for _, g := range a.opts.AgeGroups {
			ages = append(ages, g.Name)
		}
	}
	var out []Cell
	for _, y := range years {
		for _, sx := range sexes {
			for _, ag := range ages {
				for _, st := range a.strat.Labels() {
					out = append(out, Cell{Year: y, Sex: sx, AgeGroup: ag, Stratum: st})
				}
			}
		}
	}
	return out
}

// Initialize creates the previous-state column and makes sure strata are
// assigned. The disease's state column must already exist.
func (a *Accumulator) Initialize(t *population.Table) error {
	name := a.model.Name()
	state, err := t.StringColumn(name)
	if err != nil {
		return fmt.Errorf("initialize %s observer: %w", name, err)
	}
	prev, err := t.CreateStringColumn(PreviousColumn(name), "")
	if err != nil {
		return fmt.Errorf("initialize %s observer: %w", name, err)
	}
	if !t.HasColumn(stratify.ColumnStratum) {
		if _, err := a.strat.Assign(t); err != nil {
			return fmt.Errorf("initialize %s observer: %w", name, err)
		}
	}
	if a.opts.ByAge {
		if a.ageCol, err = t.FloatColumn(population.ColumnAge); err != nil {
			return fmt.Errorf("initialize %s observer: %w", name, err)
		}
	}
	if a.opts.BySex {
		if a.sexCol, err = t.StringColumn(population.ColumnSex); err != nil {
			return fmt.Errorf("initialize %s observer: %w", name, err)
		}
	}
	a.stateCol = state
	a.prevCol = prev
	return nil
}

// cell returns the demographic part of a simulant's cell. ok is false when
// the simulant falls outside every age group.
func (a *Accumulator) cell(sim int, year int, stratum string) (Cell, bool) {
	c := Cell{Stratum: stratum}
	if a.opts.ByYear {
		c.Year = year
	}
	if a.opts.BySex {
		c.Sex = a.sexCol[sim]
	}
	if a.opts.ByAge {
		age := a.ageCol[sim]
		found := false
		for _, g := range a.opts.AgeGroups {
			if age >= g.Start && age < g.End {
				c.AgeGroup = g.Name
				found = true
				break
			}
		}
		if !found {
			return c, false
		}
	}
	return c, true
}

type bucket struct {
	state string
	cell  Cell
}

// Prepare accrues person-time for the step starting at now and then
// snapshots current states as previous states.
func (a *Accumulator) Prepare(t *population.Table, now time.Time, step time.Duration) error {
	if a.stateCol == nil {
		return fmt.Errorf("prepare %s observer: not initialized", a.model.Name())
	}
	index := t.Index()
	groups, err := a.strat.Group(t, index)
	if err != nil {
		return a.wrapGroupError(err)
	}

	years := float64(step) / float64(model.Year)
	counts := make(map[bucket]int)
	grouped := 0
	for _, g := range groups {
		for _, sim := range g.Members {
			st := a.stateCol[sim]
			if !a.observed[st] {
				continue
			}
			c, ok := a.cell(sim, now.Year(), g.Label)
			if !ok {
				continue
			}
			counts[bucket{state: st, cell: c}]++
			grouped++
		}
	}

	keys := make([]bucket, 0, len(counts))
	for b := range counts {
		keys = append(keys, b)
	}
	sort.Slice(keys, func(i, j int) bool {
		return PersonTimeKey(keys[i].state, keys[i].cell) < PersonTimeKey(keys[j].state, keys[j].cell)
	})
	var accrued float64
	for _, b := range keys {
		pt := float64(counts[b]) * years
		a.add(PersonTimeKey(b.state, b.cell), MeasurePersonTime, pt)
		accrued += pt
	}

	if a.opts.CheckInvariants {
		if err := a.checkPartition(index, now, years, grouped, accrued); err != nil {
			return err
		}
	}

	for _, sim := range index {
		a.prevCol[sim] = a.stateCol[sim]
	}
	return nil
}

// checkPartition recomputes the step's person-time without stratification
// and compares it with what the strata accrued.
func (a *Accumulator) checkPartition(index []int, now time.Time, years float64, grouped int, accrued float64) error {
	total := 0
	for _, sim := range index {
		if !a.observed[a.stateCol[sim]] {
			continue
		}
		if _, ok := a.cell(sim, now.Year(), ""); ok {
			total++
		}
	}
	want := float64(total) * years
	if total != grouped || math.Abs(accrued-want) > 1e-9*math.Max(1, want) {
		return &InvariantError{
			Code:    ErrCodePartition,
			Model:   a.model.Name(),
			Message: fmt.Sprintf("stratified person-time %.12g (%d simulants) differs from total %.12g (%d simulants)", accrued, grouped, want, total),
		}
	}
	return nil
}

// Collect counts the step's state changes, attributed to the year of
// eventTime.
func (a *Accumulator) Collect(t *population.Table, eventTime time.Time) error {
	if a.stateCol == nil {
		return fmt.Errorf("collect %s observer: not initialized", a.model.Name())
	}
	index := t.Index()
	groups, err := a.strat.Group(t, index)
	if err != nil {
		return a.wrapGroupError(err)
	}
	for _, g := range groups {
		for _, sim := range g.Members {
			prev, cur := a.prevCol[sim], a.stateCol[sim]
			if prev == cur || prev == "" {
				continue
			}
			tr, ok := a.model.Between(prev, cur)
			if !ok {
				return &InvariantError{
					Code:     ErrCodeUndeclared,
					Model:    a.model.Name(),
					Simulant: sim,
					Message:  fmt.Sprintf("simulant %d moved from %q to %q without a declared transition", sim, prev, cur),
				}
			}
			if !a.trans[tr.ID] {
				continue
			}
			c, ok := a.cell(sim, eventTime.Year(), g.Label)
			if !ok {
				continue
			}
			a.add(EventCountKey(tr.ID, c), MeasureEventCount, 1)
		}
	}
	return nil
}

func (a *Accumulator) wrapGroupError(err error) error {
	var le *stratify.LabelError
	if errors.As(err, &le) {
		return &InvariantError{
			Code:     ErrCodeUnknownStratum,
			Model:    a.model.Name(),
			Simulant: le.Simulant,
			Message:  "unknown stratum label",
			Err:      err,
		}
	}
	return fmt.Errorf("group %s strata: %w", a.model.Name(), err)
}

// Report returns a copy of every counter.
func (a *Accumulator) Report() map[string]float64 {
	out := make(map[string]float64, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

// Entries returns every counter sorted by key.
func (a *Accumulator) Entries() []Entry {
	keys := make([]string, 0, len(a.values))
	for k := range a.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Entry, len(keys))
	for i, k := range keys {
		out[i] = Entry{Key: k, Disease: a.model.Name(), Measure: a.measure[k], Value: a.values[k]}
	}
	return out
}
