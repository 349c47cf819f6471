package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/roach88/cvdsim/internal/engine"
	"github.com/roach88/cvdsim/internal/model"
	"github.com/roach88/cvdsim/internal/population"
	"github.com/roach88/cvdsim/internal/stratify"
)

// StateShare is the share of simulants that start in a state.
type StateShare struct {
	State string  `yaml:"state" json:"state"`
	Share float64 `yaml:"share" json:"share"`
}

// TimeInStateColumn returns the name of a disease's time-in-state column.
func TimeInStateColumn(disease string) string {
	return disease + "_time_in_state"
}

// DiseaseComponent owns one disease model's state columns and advances
// them through the state machine each step.
type DiseaseComponent struct {
	machine    *engine.Machine
	stream     *engine.Stream
	prevalence []StateShare

	state   []string
	tis     []time.Duration
	age     []float64
	sex     []string
	stratum []string
}

// NewDiseaseComponent creates a component. Initial prevalence shares must
// name states of m and sum to at most one; everyone else starts
// susceptible.
func NewDiseaseComponent(m *model.DiseaseModel, stream *engine.Stream, prevalence []StateShare) (*DiseaseComponent, error) {
	var total float64
	for _, p := range prevalence {
		if _, ok := m.State(p.State); !ok {
			return nil, &model.ConfigError{
				Code:    model.ErrCodeUnknownCatalogueID,
				Model:   m.Name(),
				Field:   "prevalence",
				Message: fmt.Sprintf("state %q is not in the model", p.State),
			}
		}
		if p.Share < 0 || math.IsNaN(p.Share) {
			return nil, &model.ConfigError{
				Code:    model.ErrCodePrevalence,
				Model:   m.Name(),
				Field:   "prevalence",
				Message: fmt.Sprintf("share for %q must be non-negative, got %v", p.State, p.Share),
			}
		}
		total += p.Share
	}
	if total > 1+1e-12 {
		return nil, &model.ConfigError{
			Code:    model.ErrCodePrevalence,
			Model:   m.Name(),
			Field:   "prevalence",
			Message: fmt.Sprintf("shares sum to %v, more than 1", total),
		}
	}
	return &DiseaseComponent{
		machine:    engine.NewMachine(m),
		stream:     stream,
		prevalence: append([]StateShare(nil), prevalence...),
	}, nil
}

// Name returns the disease name, which is also the state column name.
func (c *DiseaseComponent) Name() string { return c.machine.Model().Name() }

// States returns the state column. Nil before Initialize.
func (c *DiseaseComponent) States() []string { return c.state }

// InitialStateKey is the draw key used to assign initial states.
func InitialStateKey(disease string) string {
	return "initial_state/" + disease
}

// Initialize creates the state and time-in-state columns and assigns
// initial states.
func (c *DiseaseComponent) Initialize(ev Event) error {
	t := ev.Table
	m := c.machine.Model()

	state, err := t.CreateStringColumn(c.Name(), m.Susceptible())
	if err != nil {
		return err
	}
	tis, err := t.CreateDurationColumn(TimeInStateColumn(c.Name()))
	if err != nil {
		return err
	}
	if len(c.prevalence) > 0 {
		key := InitialStateKey(c.Name())
		for _, sim := range t.Index() {
			u := c.stream.Uniform(int64(sim), 0, key)
			var cum float64
			for _, p := range c.prevalence {
				cum += p.Share
				if u < cum {
					state[sim] = p.State
					break
				}
			}
		}
	}
	c.state = state
	c.tis = tis

	// Optional context for rate providers.
	c.age, _ = t.FloatColumn(population.ColumnAge)
	c.sex, _ = t.StringColumn(population.ColumnSex)
	return nil
}

// Step resolves every living simulant once.
func (c *DiseaseComponent) Step(ev Event) error {
	if c.state == nil {
		return fmt.Errorf("%s: not initialized", c.Name())
	}
	if c.stratum == nil && ev.Table.HasColumn(stratify.ColumnStratum) {
		c.stratum, _ = ev.Table.StringColumn(stratify.ColumnStratum)
	}

	sc := model.SimulantContext{
		Model: c.Name(),
		Time:  ev.EventTime,
		Step:  ev.StepSize,
	}
	for _, sim := range ev.Table.Index() {
		sc.Simulant = int64(sim)
		sc.State = c.state[sim]
		sc.TimeInState = c.tis[sim]
		if c.age != nil {
			sc.Age = c.age[sim]
		}
		if c.sex != nil {
			sc.Sex = c.sex[sim]
		}
		if c.stratum != nil {
			sc.Stratum = c.stratum[sim]
		}

		out, err := c.machine.Resolve(sc, c.stream.For(sc.Simulant, ev.Step))
		if err != nil {
			return err
		}
		if out.Changed() {
			c.state[sim] = out.Next
			c.tis[sim] = 0
		} else {
			c.tis[sim] += ev.StepSize
		}
	}
	return nil
}
