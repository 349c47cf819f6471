package engine

import (
	"math"
	"time"

	"github.com/roach88/cvdsim/internal/model"
)

// Outcome is the result of resolving one simulant for one step.
type Outcome struct {
	// Next is the state after the step.
	Next string

	// Transition is the transition taken; the self transition when the
	// simulant stays.
	Transition *model.Transition
}

// Changed reports whether the outcome moves the simulant to a new state.
func (o Outcome) Changed() bool {
	return o.Transition != nil && o.Transition.Kind != model.KindSelf
}

// Machine resolves transitions for one disease model.
type Machine struct {
	model *model.DiseaseModel
}

// NewMachine creates a machine for a built model.
func NewMachine(m *model.DiseaseModel) *Machine {
	return &Machine{model: m}
}

// Model returns the machine's disease model.
func (m *Machine) Model() *model.DiseaseModel { return m.model }

// Resolve decides the simulant's transition for the step described by sc.
//
// sc.TimeInState is the time spent in sc.State before this step; dwell
// times are compared against the time in state at the end of the step.
// draws is consulted once per rate transition evaluated, keyed by
// transition ID.
func (m *Machine) Resolve(sc model.SimulantContext, draws Draws) (Outcome, error) {
	state, ok := m.model.State(sc.State)
	if !ok {
		return Outcome{}, &DataError{
			Code:     ErrCodeUnknownState,
			Model:    m.model.Name(),
			State:    sc.State,
			Simulant: sc.Simulant,
		}
	}

	stay := Outcome{Next: state.ID, Transition: state.Self()}

	if state.HasDwell() && sc.TimeInState+sc.Step < state.Dwell {
		return stay, nil
	}
	if t := state.DwellExit(); t != nil {
		return Outcome{Next: t.To, Transition: t}, nil
	}

	for _, t := range state.RateTransitions() {
		p, err := m.probability(t, sc)
		if err != nil {
			return Outcome{}, err
		}
		if Bernoulli(draws(t.ID), p) {
			return Outcome{Next: t.To, Transition: t}, nil
		}
	}
	return stay, nil
}

// probability queries t's provider and converts the result to a validated
// per-step probability.
func (m *Machine) probability(t *model.Transition, sc model.SimulantContext) (float64, error) {
	r, err := t.Rate(sc)
	if err != nil {
		return 0, m.dataError(ErrCodeProvider, t, sc, 0, err)
	}
	p, code := CheckedProbability(r, sc.Step)
	if code != "" {
		return 0, m.dataError(code, t, sc, p, nil)
	}
	return p, nil
}

func (m *Machine) dataError(code string, t *model.Transition, sc model.SimulantContext, v float64, err error) *DataError {
	return &DataError{
		Code:       code,
		Model:      m.model.Name(),
		State:      sc.State,
		Transition: t.ID,
		Simulant:   sc.Simulant,
		Value:      v,
		Err:        err,
	}
}

// CheckedProbability converts r to a per-step probability. When r is
// invalid it returns the offending value and a data error code instead.
func CheckedProbability(r model.Rate, step time.Duration) (float64, string) {
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return r.Value, ErrCodeNonFinite
	}
	if r.IsProbability() {
		if r.Value < 0 || r.Value > 1 {
			return r.Value, ErrCodeProbabilityRange
		}
		return r.Value, ""
	}
	if r.Value < 0 {
		return r.Value, ErrCodeNegativeRate
	}
	p := r.StepProbability(step)
	if math.IsNaN(p) || p < 0 || p > 1 {
		return p, ErrCodeProbabilityRange
	}
	return p, ""
}
