package compiler

import (
	"fmt"
	"math"
	"regexp"

	"github.com/roach88/cvdsim/internal/model"
	"github.com/roach88/cvdsim/internal/rates"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedType = "E100" // unsupported type for validation

	// Disease definition errors (E101-E109)
	ErrInvalidIdentifier = "E101" // model or state name not a lowercase identifier
	ErrInvalidCauseType  = "E102" // cause_type not cause or sequela
	ErrInvalidKind       = "E103" // transition kind not self, dwell or rate
	ErrNegativeDwell     = "E104" // dwell_days below zero
	ErrRateReference     = "E105" // rate named on a non-rate transition, or missing on a rate one

	// Rate spec errors (E110-E119)
	ErrInvalidRateName  = "E110" // rate name not a lowercase identifier
	ErrNegativeRate     = "E111" // hazard or table value below zero
	ErrProbabilityRange = "E112" // probability outside [0, 1]
	ErrInvalidRow       = "E113" // table row with empty or negative age interval
	ErrEmptyTable       = "E114" // table without rows
	ErrInvalidPer       = "E115" // per_days not positive
	ErrInvalidScaleUp   = "E116" // negative factor or end not after start
	ErrNonFiniteRate    = "E117" // NaN or infinite number
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// identifierPattern matches names that are safe inside metric keys and
// column names.
var identifierPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Validate checks compiled definitions against schema rules.
// Returns all errors found (does not fail-fast).
// Structural rules that need the whole model (reachability, self
// transitions, providers) are checked by model.Build.
func Validate(v any) []ValidationError {
	switch x := v.(type) {
	case *model.Definition:
		return validateDefinition(x)
	case model.Definition:
		return validateDefinition(&x)
	case *rates.Spec:
		return validateRate(x)
	case rates.Spec:
		return validateRate(&x)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

func validateDefinition(def *model.Definition) []ValidationError {
	var errs []ValidationError

	if !identifierPattern.MatchString(def.Name) {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: fmt.Sprintf("invalid model name %q", def.Name),
			Code:    ErrInvalidIdentifier,
		})
	}

	for i, s := range def.States {
		if !identifierPattern.MatchString(s.ID) {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("states[%d].id", i),
				Message: fmt.Sprintf("invalid state id %q", s.ID),
				Code:    ErrInvalidIdentifier,
			})
		}
		if s.CauseType != model.CauseTypeCause && s.CauseType != model.CauseTypeSequela {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("states[%d].cause_type", i),
				Message: fmt.Sprintf("cause_type %q must be \"cause\" or \"sequela\"", s.CauseType),
				Code:    ErrInvalidCauseType,
			})
		}
		if s.Dwell < 0 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("states[%d].dwell_days", i),
				Message: fmt.Sprintf("state %q has negative dwell", s.ID),
				Code:    ErrNegativeDwell,
			})
		}
	}

	for i, t := range def.Transitions {
		field := fmt.Sprintf("transitions[%d]", i)
		if !model.ValidKinds[t.Kind] {
			errs = append(errs, ValidationError{
				Field:   field + ".kind",
				Message: fmt.Sprintf("invalid kind %q, must be \"self\", \"dwell\", or \"rate\"", t.Kind),
				Code:    ErrInvalidKind,
			})
			continue
		}
		switch {
		case t.Kind == model.KindRate && t.Provider == "":
			errs = append(errs, ValidationError{
				Field:   field + ".rate",
				Message: fmt.Sprintf("rate transition %s -> %s must name a rate", t.From, t.To),
				Code:    ErrRateReference,
			})
		case t.Kind != model.KindRate && t.Provider != "":
			errs = append(errs, ValidationError{
				Field:   field + ".rate",
				Message: fmt.Sprintf("%s transition %s -> %s cannot name a rate", t.Kind, t.From, t.To),
				Code:    ErrRateReference,
			})
		}
	}

	return errs
}

func validateRate(s *rates.Spec) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	if !identifierPattern.MatchString(s.Name) {
		add("name", ErrInvalidRateName, "invalid rate name %q", s.Name)
	}
	if s.Per < 0 {
		add("per_days", ErrInvalidPer, "per_days must be positive")
	}

	switch s.Kind {
	case rates.KindHazard:
		checkValue(add, "value", s.Value, false)
	case rates.KindProbability:
		checkValue(add, "value", s.Value, true)
	case rates.KindTable:
		if len(s.Rows) == 0 {
			add("rows", ErrEmptyTable, "table has no rows")
		}
		for i, r := range s.Rows {
			field := fmt.Sprintf("rows[%d]", i)
			if r.AgeStart < 0 || !(r.AgeEnd > r.AgeStart) {
				add(field, ErrInvalidRow, "age interval [%g, %g) is empty or negative", r.AgeStart, r.AgeEnd)
			}
			checkValue(add, field+".value", r.Value, s.Probability)
		}
	case rates.KindScaleUp:
		if s.From < 0 || s.To < 0 {
			add("from", ErrInvalidScaleUp, "scale-up factors must be non-negative")
		}
		if !s.End.After(s.Start) {
			add("end", ErrInvalidScaleUp, "end must be after start")
		}
	}
	return errs
}

func checkValue(add func(field, code, format string, args ...any), field string, v float64, probability bool) {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		add(field, ErrNonFiniteRate, "value must be finite")
	case probability && (v < 0 || v > 1):
		add(field, ErrProbabilityRange, "probability %g outside [0, 1]", v)
	case v < 0:
		add(field, ErrNegativeRate, "rate %g is negative", v)
	}
}
