package harness

import "github.com/roach88/cvdsim/internal/metrics"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// RunID is the stored run's ID.
	RunID string `json:"run_id"`

	// ModelHash identifies the compiled models.
	ModelHash string `json:"model_hash"`

	// Report holds the run's report as read back from the store, sorted
	// by key.
	Report []metrics.Entry `json:"report"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Report: []metrics.Entry{},
		Errors: []string{},
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Value returns the value stored under key.
func (r *Result) Value(key string) (float64, bool) {
	for _, e := range r.Report {
		if e.Key == key {
			return e.Value, true
		}
	}
	return 0, false
}
