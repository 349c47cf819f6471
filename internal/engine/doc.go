// Package engine implements the disease state machine runtime.
//
// The engine resolves one simulant's transition for one step. It owns the
// order of evaluation, hazard conversion, validation of provider output,
// and the reproducible random draws that decide rate transitions.
//
// Resolution order for a simulant in state S:
//
//  1. S has a dwell time that has not elapsed by the end of the step:
//     stay (self transition). Rate transitions out of S are not consulted.
//  2. S declares a dwell transition: fire it.
//  3. Rate transitions in declaration order: convert the provider's rate to
//     a per-step probability, draw once, fire on the first success.
//  4. Stay (self transition).
//
// At most one transition fires per simulant per step.
//
// CRITICAL PATTERNS:
//
// Logical Clock
// Steps are counted by Clock. Simulation time is derived from the step
// count, never read from the wall clock.
//
// Deterministic Draws
// Each draw is a pure function of (seed, simulant, transition, step).
// Population size, model order, and evaluation order do not shift any
// other simulant's draws.
package engine
