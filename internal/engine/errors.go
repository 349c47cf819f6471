package engine

import (
	"errors"
	"fmt"
)

// DataError is a run-time error caused by values flowing through the state
// machine. Data errors abort the step; values are never clamped.
type DataError struct {
	// Code identifies the error category.
	Code string

	// Model is the disease model being resolved.
	Model string

	// State is the simulant's current state.
	State string

	// Transition is the transition ID, when one was being evaluated.
	Transition string

	// Simulant is the simulant being resolved.
	Simulant int64

	// Value is the offending value, when there is one.
	Value float64

	// Err is the underlying provider error, when there is one.
	Err error
}

// Data error codes (E300-E399).
const (
	// ErrCodeNegativeRate indicates a provider returned a hazard below zero.
	ErrCodeNegativeRate = "E300"

	// ErrCodeProbabilityRange indicates a per-step probability outside [0, 1].
	ErrCodeProbabilityRange = "E301"

	// ErrCodeNonFinite indicates a NaN or infinite rate.
	ErrCodeNonFinite = "E302"

	// ErrCodeProvider indicates the rate provider itself failed.
	ErrCodeProvider = "E303"

	// ErrCodeUnknownState indicates a simulant is in a state the model
	// does not declare.
	ErrCodeUnknownState = "E304"
)

var dataErrorMessages = map[string]string{
	ErrCodeNegativeRate:     "negative rate",
	ErrCodeProbabilityRange: "probability outside [0, 1]",
	ErrCodeNonFinite:        "non-finite rate",
	ErrCodeProvider:         "rate provider failed",
	ErrCodeUnknownState:     "unknown state",
}

// Error implements the error interface.
func (e *DataError) Error() string {
	msg := dataErrorMessages[e.Code]
	switch {
	case e.Err != nil:
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	case e.Code == ErrCodeUnknownState:
		msg = fmt.Sprintf("%s %q", msg, e.State)
	default:
		msg = fmt.Sprintf("%s: %v", msg, e.Value)
	}
	if e.Transition != "" {
		return fmt.Sprintf("[%s] %s (model=%s, transition=%s, simulant=%d)", e.Code, msg, e.Model, e.Transition, e.Simulant)
	}
	return fmt.Sprintf("[%s] %s (model=%s, simulant=%d)", e.Code, msg, e.Model, e.Simulant)
}

// Unwrap returns the underlying provider error.
func (e *DataError) Unwrap() error {
	return e.Err
}

// IsDataError returns true if err is or wraps a DataError.
func IsDataError(err error) bool {
	var de *DataError
	return errors.As(err, &de)
}
