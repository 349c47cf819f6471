package compiler

import (
	"fmt"
	"time"

	"cuelang.org/go/cue"

	"github.com/roach88/cvdsim/internal/rates"
)

// CompileRate parses a CUE value into a rate provider spec.
//
//	rate: stroke_incidence: { kind: "hazard", value: 0.0025 }
//	rate: mi_incidence: {
//		kind: "table"
//		rows: [{ age_start: 30, age_end: 60, value: 0.002 }, ...]
//	}
//	rate: screened_mi: {
//		kind: "scale_up", base: "mi_incidence"
//		from: 1.0, to: 0.8, start: "2021-01-01", end: "2030-01-01"
//	}
func CompileRate(v cue.Value) (*rates.Spec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &rates.Spec{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	kind, err := requiredString(v, "kind")
	if err != nil {
		return nil, err
	}
	spec.Kind = rates.Kind(kind)

	if days, ok, err := optionalFloat(v, "per_days"); err != nil {
		return nil, err
	} else if ok {
		spec.Per = time.Duration(days * float64(Day))
	}

	switch spec.Kind {
	case rates.KindHazard, rates.KindProbability:
		value, ok, err := optionalFloat(v, "value")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &CompileError{Field: "value", Message: "value is required", Pos: v.Pos()}
		}
		spec.Value = value

	case rates.KindTable:
		spec.Rows, err = parseRows(v)
		if err != nil {
			return nil, err
		}
		if p, ok, err := optionalBool(v, "probability"); err != nil {
			return nil, err
		} else if ok {
			spec.Probability = p
		}

	case rates.KindScaleUp:
		if spec.Base, err = requiredString(v, "base"); err != nil {
			return nil, err
		}
		if spec.From, err = requiredFloat(v, "from"); err != nil {
			return nil, err
		}
		if spec.To, err = requiredFloat(v, "to"); err != nil {
			return nil, err
		}
		if spec.Start, err = requiredDate(v, "start"); err != nil {
			return nil, err
		}
		if spec.End, err = requiredDate(v, "end"); err != nil {
			return nil, err
		}

	default:
		return nil, &CompileError{
			Field:   "kind",
			Message: fmt.Sprintf("unknown rate kind %q", kind),
			Pos:     v.LookupPath(cue.ParsePath("kind")).Pos(),
		}
	}

	return spec, nil
}

// parseRows extracts table rows.
func parseRows(v cue.Value) ([]rates.Row, error) {
	rowsVal := v.LookupPath(cue.ParsePath("rows"))
	if !rowsVal.Exists() {
		return nil, &CompileError{Field: "rows", Message: "rows are required for a table", Pos: v.Pos()}
	}
	iter, err := rowsVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rows []rates.Row
	for iter.Next() {
		rv := iter.Value()
		var row rates.Row
		if row.AgeStart, err = requiredFloat(rv, "age_start"); err != nil {
			return nil, err
		}
		if row.AgeEnd, err = requiredFloat(rv, "age_end"); err != nil {
			return nil, err
		}
		if row.Value, err = requiredFloat(rv, "value"); err != nil {
			return nil, err
		}
		if sex, ok, err := optionalString(rv, "sex"); err != nil {
			return nil, err
		} else if ok {
			row.Sex = sex
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func requiredFloat(v cue.Value, field string) (float64, error) {
	f, ok, err := optionalFloat(v, field)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &CompileError{Field: field, Message: field + " is required", Pos: v.Pos()}
	}
	return f, nil
}

// requiredDate parses a YYYY-MM-DD string as midnight UTC.
func requiredDate(v cue.Value, field string) (time.Time, error) {
	s, err := requiredString(v, field)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, &CompileError{
			Field:   field,
			Message: fmt.Sprintf("invalid date %q: want YYYY-MM-DD", s),
			Pos:     v.LookupPath(cue.ParsePath(field)).Pos(),
		}
	}
	return t, nil
}
