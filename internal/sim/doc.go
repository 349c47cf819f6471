// Package sim hosts disease models over a population.
//
// A Simulation owns the population table, the logical clock, the random
// stream and a lifecycle Registry. Each step emits the phases prepare,
// step, collect and advance in that order to the listeners registered for
// them, in registration order. Disease components listen on step;
// metrics accumulators listen on prepare and collect; the host ages
// simulants on advance.
//
// Everything runs on the caller's goroutine. Cancellation is checked
// between steps only; a step is never left half applied.
package sim
