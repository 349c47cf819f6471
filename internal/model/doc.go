// Package model provides the declarative disease model catalogue.
//
// A disease model is a small state machine: a distinguished susceptible
// state, a list of states with an opaque cause type and an optional dwell
// time, and an ordered list of transitions. Each transition has an explicit
// kind:
//   - self: the simulant keeps its state
//   - dwell: fires once the source state's dwell time has elapsed
//   - rate: fires on a Bernoulli draw with the step probability derived
//     from a rate provider
//
// Definitions are plain data (compiled from CUE by internal/compiler). Build
// turns a Definition into an immutable DiseaseModel, attaching each rate
// transition's provider function and validating the whole graph before any
// simulation step runs.
//
// This package imports nothing internal. All other internal packages may
// import it.
package model
