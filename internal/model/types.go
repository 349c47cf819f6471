package model

import (
	"math"
	"time"
)

// CauseType is an opaque accounting tag carried by a state ("cause" or
// "sequela"). The core passes it through without interpreting it.
type CauseType string

const (
	CauseTypeCause   CauseType = "cause"
	CauseTypeSequela CauseType = "sequela"
)

// TransitionKind enumerates the three transition variants.
type TransitionKind string

const (
	KindSelf  TransitionKind = "self"
	KindDwell TransitionKind = "dwell"
	KindRate  TransitionKind = "rate"
)

// ValidKinds defines allowed transition kinds.
var ValidKinds = map[TransitionKind]bool{
	KindSelf:  true,
	KindDwell: true,
	KindRate:  true,
}

// Year is the unit hazards are expressed in unless a provider says
// otherwise.
const Year = 8766 * time.Hour // 365.25 days

// Definition is the declarative form of one disease model.
type Definition struct {
	Name        string          `json:"name"`
	Susceptible string          `json:"susceptible"`
	States      []StateDef      `json:"states"`
	Transitions []TransitionDef `json:"transitions"`
}

// StateDef declares a state. A zero Dwell means no minimum duration.
type StateDef struct {
	ID        string        `json:"id"`
	CauseType CauseType     `json:"cause_type"`
	Dwell     time.Duration `json:"dwell,omitempty"`
}

// TransitionDef declares a transition. Provider names the rate provider and
// is only meaningful for KindRate.
type TransitionDef struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Kind     TransitionKind `json:"kind"`
	Provider string         `json:"provider,omitempty"`
}

// SimulantContext is what a rate provider sees about one simulant at the
// start of a step.
type SimulantContext struct {
	Simulant    int64
	Model       string
	State       string
	TimeInState time.Duration
	Stratum     string
	Age         float64
	Sex         string
	Time        time.Time
	Step        time.Duration
}

// Rate is either a hazard per unit time (Per > 0) or an already converted
// per-step probability (Per == 0).
type Rate struct {
	Value float64
	Per   time.Duration
}

// Hazard returns a hazard of v events per unit of time per.
func Hazard(v float64, per time.Duration) Rate {
	return Rate{Value: v, Per: per}
}

// AnnualHazard returns a hazard expressed per year.
func AnnualHazard(v float64) Rate {
	return Rate{Value: v, Per: Year}
}

// Probability returns a per-step probability.
func Probability(p float64) Rate {
	return Rate{Value: p}
}

// IsProbability reports whether r is already a per-step probability.
func (r Rate) IsProbability() bool {
	return r.Per == 0
}

// StepProbability converts r to the probability of at least one event
// during a step: p = 1 - exp(-rate * step/per). Probabilities pass through.
// Validation of the result is the caller's job.
func (r Rate) StepProbability(step time.Duration) float64 {
	if r.IsProbability() {
		return r.Value
	}
	return -math.Expm1(-r.Value * float64(step) / float64(r.Per))
}

// RateFunc is a transition rate provider.
type RateFunc func(SimulantContext) (Rate, error)

// ProviderSet maps provider names used in definitions to functions. It is
// consulted once, in Build.
type ProviderSet map[string]RateFunc
