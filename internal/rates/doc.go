// Package rates builds transition rate providers from declarative
// specifications.
//
// Four kinds are supported:
//
//   - hazard: a constant hazard per unit time (one year by default)
//   - probability: a constant per-step probability
//   - table: a value looked up by simulant age and sex
//   - scale_up: another provider multiplied by a factor that moves
//     linearly between two dates
//
// Table providers index their rows once when built. Scale-up providers
// depend on simulation time and are evaluated on every query.
package rates
