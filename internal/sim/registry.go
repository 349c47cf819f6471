package sim

import (
	"fmt"
	"time"

	"github.com/roach88/cvdsim/internal/engine"
	"github.com/roach88/cvdsim/internal/population"
)

// Phase is a lifecycle phase.
type Phase string

const (
	PhaseInitialize Phase = "initialize"
	PhasePrepare    Phase = "prepare"
	PhaseStep       Phase = "step"
	PhaseCollect    Phase = "collect"
	PhaseAdvance    Phase = "advance"
)

// StepPhases are the phases emitted for every step, in order.
var StepPhases = []Phase{PhasePrepare, PhaseStep, PhaseCollect, PhaseAdvance}

// Event is passed to every listener.
type Event struct {
	Table *population.Table

	// Step is the 1-based number of the step being taken; 0 during
	// initialization.
	Step int64

	// Now is the time at the start of the step.
	Now time.Time

	// EventTime is the time at the end of the step.
	EventTime time.Time

	// StepSize is the length of the step.
	StepSize time.Duration
}

// Listener handles one phase.
type Listener func(Event) error

type registration struct {
	name string
	fn   Listener
}

// Registry holds listeners per phase in registration order.
type Registry struct {
	listeners map[Phase][]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{listeners: make(map[Phase][]registration)}
}

// Register adds a listener for a phase.
func (r *Registry) Register(phase Phase, name string, fn Listener) {
	r.listeners[phase] = append(r.listeners[phase], registration{name: name, fn: fn})
}

// Listeners returns the names registered for a phase, in order.
func (r *Registry) Listeners(phase Phase) []string {
	regs := r.listeners[phase]
	names := make([]string, len(regs))
	for i, reg := range regs {
		names[i] = reg.name
	}
	return names
}

// Emit calls every listener for phase. The first error stops the phase.
func (r *Registry) Emit(phase Phase, ev Event) error {
	for _, reg := range r.listeners[phase] {
		if err := reg.fn(ev); err != nil {
			return fmt.Errorf("%s %s: %w", phase, reg.name, err)
		}
	}
	return nil
}

func eventAt(t *population.Table, c *engine.Clock, step int64) Event {
	return Event{
		Table:     t,
		Step:      step,
		Now:       c.Now(),
		EventTime: c.EventTime(),
		StepSize:  c.Step(),
	}
}
