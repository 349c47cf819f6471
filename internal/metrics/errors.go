package metrics

import (
	"errors"
	"fmt"
)

// Invariant error codes (E410-E419).
const (
	ErrCodePartition      = "E410" // stratified person-time differs from the total
	ErrCodeUndeclared     = "E411" // observed a state change the model does not declare
	ErrCodeUnknownStratum = "E412" // simulant label outside the stratifier's labels
	ErrCodeOptions        = "E413" // invalid observer options
)

// InvariantError reports a broken accumulator invariant.
type InvariantError struct {
	Code     string
	Model    string
	Simulant int
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *InvariantError) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Code, e.Model, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *InvariantError) Unwrap() error { return e.Err }

// IsInvariantError returns true if err is or wraps an InvariantError.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}
