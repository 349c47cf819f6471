package model

import (
	"errors"
	"fmt"
)

// Configuration error codes (E200-E219).
const (
	ErrCodeModelName          = "E200" // model name is required
	ErrCodeSusceptible        = "E201" // susceptible state missing or undeclared
	ErrCodeDuplicateState     = "E202" // duplicate state ID
	ErrCodeUndeclaredState    = "E203" // transition references an undeclared state
	ErrCodeInvalidKind        = "E204" // unknown kind or endpoints inconsistent with kind
	ErrCodeMissingProvider    = "E205" // rate transition without a resolvable provider
	ErrCodeInvalidDwell       = "E206" // dwell transition without dwell time, or more than one
	ErrCodeSelfTransition     = "E207" // state lacks exactly one self transition
	ErrCodeDuplicateEdge      = "E208" // two state-changing transitions share endpoints
	ErrCodeUnreachable        = "E209" // state not reachable from susceptible
	ErrCodeNegativeDwell      = "E210" // dwell time below zero
	ErrCodeCatalogue          = "E211" // duplicate model or state shared across models
	ErrCodeUnknownModel       = "E212" // model not in catalogue
	ErrCodeUnknownCatalogueID = "E213" // state or transition not in a model's catalogue
	ErrCodeRateSpec           = "E214" // malformed rate provider specification
	ErrCodePrevalence         = "E215" // initial prevalence shares invalid
)

// ConfigError is a fatal model configuration error detected before any
// simulation step runs.
type ConfigError struct {
	Code    string `json:"code"`
	Model   string `json:"model,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	switch {
	case e.Model != "" && e.Field != "":
		return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.Model, e.Field, e.Message)
	case e.Model != "":
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Model, e.Message)
	default:
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
}

// IsConfigError returns true if err is or wraps a ConfigError.
// Joined errors are searched as well.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// ConfigErrors flattens err into the ConfigErrors it contains, in order.
func ConfigErrors(err error) []*ConfigError {
	if err == nil {
		return nil
	}
	var out []*ConfigError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, ConfigErrors(e)...)
		}
		return out
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		out = append(out, ce)
	}
	return out
}
