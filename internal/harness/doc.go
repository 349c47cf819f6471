// Package harness runs simulation scenarios as executable tests.
//
// A scenario names a directory of CUE disease models, an inline run
// configuration and a list of assertions on the resulting report.
//
// # Scenario Format
//
//	name: dwell_only
//	description: "Everyone has one acute episode and recovers"
//	models: ../models
//	config:
//	  seed: 7
//	  steps: 4
//	  population: {size: 4, age_start: 40, age_end: 60, male_share: 0.5}
//	  stratification: []
//	assertions:
//	  - type: report_value
//	    key: at_risk_to_acute_event_count
//	    value: 4
//	  - type: measure_total
//	    disease: acute_event
//	    measure: person_time
//	    value: 0.306639
//	    tolerance: 0.000001
//	  - type: reproducible
//
// # Assertion Types
//
//   - report_value: one report key has the expected value, within tolerance
//   - report_key_count: the report (optionally filtered) has exactly count keys
//   - measure_total: the sum of a disease's measure matches, within tolerance
//   - reproducible: a second run with the same seed reproduces every value bit for bit
//
// # Deterministic Testing
//
// Each scenario runs in a fresh in-memory store with a fixed run ID and a
// discarded log, and the run configuration never consults the
// environment. The same scenario therefore stores byte-identical rows,
// which keeps golden snapshots stable.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/dwell_only.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, e := range result.Errors {
//	        log.Println(e)
//	    }
//	}
package harness
