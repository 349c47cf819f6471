package stratify

import (
	"errors"
	"fmt"
)

// Stratification error codes (E400-E409).
const (
	ErrCodeDependency   = "E400" // exposure column missing or not a number
	ErrCodeUnknownLabel = "E401" // simulant carries a label outside the product
	ErrCodeFactor       = "E402" // invalid factor configuration
)

// DependencyError reports an exposure that was not available when strata
// were assigned. It means the component producing the exposure was not
// initialized first.
type DependencyError struct {
	Factor   string
	Column   string
	Simulant int
	Err      error
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] factor %s: exposure %q unavailable: %v", ErrCodeDependency, e.Factor, e.Column, e.Err)
	}
	return fmt.Sprintf("[%s] factor %s: exposure %q is NaN for simulant %d", ErrCodeDependency, e.Factor, e.Column, e.Simulant)
}

// Unwrap returns the underlying error.
func (e *DependencyError) Unwrap() error { return e.Err }

// LabelError reports a simulant whose label is not one of the stratifier's.
type LabelError struct {
	Simulant int
	Label    string
}

// Error implements the error interface.
func (e *LabelError) Error() string {
	return fmt.Sprintf("[%s] simulant %d has unknown stratum %q", ErrCodeUnknownLabel, e.Simulant, e.Label)
}

// FactorError reports an invalid factor list.
type FactorError struct {
	Factor  string
	Message string
}

// Error implements the error interface.
func (e *FactorError) Error() string {
	return fmt.Sprintf("[%s] factor %q: %s", ErrCodeFactor, e.Factor, e.Message)
}

// IsDependencyError returns true if err is or wraps a DependencyError.
func IsDependencyError(err error) bool {
	var de *DependencyError
	return errors.As(err, &de)
}

// IsLabelError returns true if err is or wraps a LabelError.
func IsLabelError(err error) bool {
	var le *LabelError
	return errors.As(err, &le)
}
