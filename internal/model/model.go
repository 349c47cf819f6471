package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DiseaseModel is a validated, immutable disease state machine.
type DiseaseModel struct {
	def         Definition
	states      []*State
	byID        map[string]*State
	transitions []*Transition
	events      []*Transition
	byPair      map[pair]*Transition
}

type pair struct{ from, to string }

// State is a validated state with its outgoing transitions grouped by kind.
type State struct {
	ID        string
	CauseType CauseType
	Dwell     time.Duration

	outgoing []*Transition
	self     *Transition
	dwell    *Transition
	rates    []*Transition
}

// Transition is a validated transition. For rate transitions the provider
// function is attached at build time.
type Transition struct {
	ID       string
	From     string
	To       string
	Kind     TransitionKind
	Provider string

	rate RateFunc
}

// TransitionID returns the catalogue ID for a transition between two states.
func TransitionID(from, to string) string {
	return strings.ToLower(from + "_to_" + to)
}

// Build validates def and resolves rate providers from providers.
//
// All violations are collected and returned together as a joined error of
// *ConfigError values; nothing is returned on failure.
func Build(def Definition, providers ProviderSet) (*DiseaseModel, error) {
	if errs := validate(def, providers); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i := range errs {
			joined[i] = errs[i]
		}
		return nil, errors.Join(joined...)
	}

	m := &DiseaseModel{
		def:    cloneDefinition(def),
		byID:   make(map[string]*State, len(def.States)),
		byPair: make(map[pair]*Transition),
	}
	for _, sd := range def.States {
		s := &State{ID: sd.ID, CauseType: sd.CauseType, Dwell: sd.Dwell}
		m.states = append(m.states, s)
		m.byID[s.ID] = s
	}
	for _, td := range def.Transitions {
		t := &Transition{
			ID:       TransitionID(td.From, td.To),
			From:     td.From,
			To:       td.To,
			Kind:     td.Kind,
			Provider: td.Provider,
		}
		if td.Kind == KindRate {
			t.rate = providers[td.Provider]
		}
		m.transitions = append(m.transitions, t)

		src := m.byID[td.From]
		src.outgoing = append(src.outgoing, t)
		switch td.Kind {
		case KindSelf:
			src.self = t
		case KindDwell:
			src.dwell = t
		case KindRate:
			src.rates = append(src.rates, t)
		}
		if td.Kind != KindSelf {
			m.events = append(m.events, t)
			m.byPair[pair{td.From, td.To}] = t
		}
	}
	return m, nil
}

// MustBuild is like Build but panics on error.
// Use only in tests or for definitions known to be valid.
func MustBuild(def Definition, providers ProviderSet) *DiseaseModel {
	m, err := Build(def, providers)
	if err != nil {
		panic(err)
	}
	return m
}

// Name returns the model name.
func (m *DiseaseModel) Name() string { return m.def.Name }

// Susceptible returns the initial state ID.
func (m *DiseaseModel) Susceptible() string { return m.def.Susceptible }

// Definition returns a copy of the definition the model was built from.
func (m *DiseaseModel) Definition() Definition { return cloneDefinition(m.def) }

// States returns the states in declaration order.
func (m *DiseaseModel) States() []*State {
	return append([]*State(nil), m.states...)
}

// StateIDs returns the state IDs in declaration order.
func (m *DiseaseModel) StateIDs() []string {
	ids := make([]string, len(m.states))
	for i, s := range m.states {
		ids[i] = s.ID
	}
	return ids
}

// State looks up a state by ID.
func (m *DiseaseModel) State(id string) (*State, bool) {
	s, ok := m.byID[id]
	return s, ok
}

// Transitions returns every declared transition, self transitions included,
// in declaration order.
func (m *DiseaseModel) Transitions() []*Transition {
	return append([]*Transition(nil), m.transitions...)
}

// EventTransitions returns the state-changing transitions in declaration
// order. These are the transitions that metrics count.
func (m *DiseaseModel) EventTransitions() []*Transition {
	return append([]*Transition(nil), m.events...)
}

// Between returns the state-changing transition from one state to another.
func (m *DiseaseModel) Between(from, to string) (*Transition, bool) {
	t, ok := m.byPair[pair{from, to}]
	return t, ok
}

// Outgoing returns the state's transitions in declaration order.
func (s *State) Outgoing() []*Transition {
	return append([]*Transition(nil), s.outgoing...)
}

// Self returns the state's self transition.
func (s *State) Self() *Transition { return s.self }

// DwellExit returns the state's dwell transition, or nil.
func (s *State) DwellExit() *Transition { return s.dwell }

// RateTransitions returns the competing rate transitions in declared order.
func (s *State) RateTransitions() []*Transition {
	return append([]*Transition(nil), s.rates...)
}

// HasDwell reports whether the state imposes a minimum duration.
func (s *State) HasDwell() bool { return s.Dwell > 0 }

// Rate queries the transition's provider.
func (t *Transition) Rate(sc SimulantContext) (Rate, error) {
	if t.rate == nil {
		return Rate{}, fmt.Errorf("transition %s has no rate provider", t.ID)
	}
	return t.rate(sc)
}

func cloneDefinition(def Definition) Definition {
	out := def
	out.States = append([]StateDef(nil), def.States...)
	out.Transitions = append([]TransitionDef(nil), def.Transitions...)
	return out
}
