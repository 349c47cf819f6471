// Package metrics accumulates stratified person-time and transition counts
// for one disease model.
//
// An Accumulator is driven by three lifecycle hooks. Initialize creates the
// previous-state column. Prepare runs before any state changes in a step;
// it adds person-time for every simulant's current state and then copies
// the current state into the previous-state column. Collect runs after the
// state machine; it counts one event for every simulant whose state changed.
//
// Report keys follow these templates, with the optional parts present only
// when the matching grouping is enabled:
//
//	{state}_person_time[_in_{year}][_among_{sex}][_in_age_group_{group}]_{stratum}
//	{transition}_event_count[_in_{year}][_among_{sex}][_in_age_group_{group}]_{stratum}
//
// Reports are dense: every combination is present from setup onward, with
// zero values where nothing was observed.
package metrics
