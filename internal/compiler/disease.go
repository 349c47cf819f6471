package compiler

import (
	"fmt"
	"math"
	"time"

	"cuelang.org/go/cue"

	"github.com/roach88/cvdsim/internal/model"
)

// Day is the unit dwell times are written in.
const Day = 24 * time.Hour

// CompileDisease parses a CUE value into a model definition.
//
// The CUE value should be the disease struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`disease: ischemic_stroke: { ... }`)
//	def, err := CompileDisease(v.LookupPath(cue.ParsePath("disease.ischemic_stroke")))
func CompileDisease(v cue.Value) (*model.Definition, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	def := &model.Definition{}

	// Disease name comes from the struct label
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		def.Name = labels[len(labels)-1].String()
	}

	susceptible, err := requiredString(v, "susceptible")
	if err != nil {
		return nil, err
	}
	def.Susceptible = susceptible

	def.States, err = parseStateDefs(v)
	if err != nil {
		return nil, err
	}
	if len(def.States) == 0 {
		return nil, &CompileError{
			Field:   "states",
			Message: "at least one state is required",
			Pos:     v.Pos(),
		}
	}

	def.Transitions, err = parseTransitionDefs(v)
	if err != nil {
		return nil, err
	}

	return def, nil
}

// parseStateDefs extracts the ordered state list.
func parseStateDefs(v cue.Value) ([]model.StateDef, error) {
	statesVal := v.LookupPath(cue.ParsePath("states"))
	if !statesVal.Exists() {
		return nil, nil
	}

	iter, err := statesVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var states []model.StateDef
	for iter.Next() {
		sv := iter.Value()

		id, err := requiredString(sv, "id")
		if err != nil {
			return nil, err
		}
		state := model.StateDef{ID: id, CauseType: model.CauseTypeCause}

		if ct, ok, err := optionalString(sv, "cause_type"); err != nil {
			return nil, err
		} else if ok {
			state.CauseType = model.CauseType(ct)
		}

		if days, ok, err := optionalFloat(sv, "dwell_days"); err != nil {
			return nil, err
		} else if ok {
			if math.IsNaN(days) || math.IsInf(days, 0) {
				return nil, &CompileError{
					Field:   "dwell_days",
					Message: fmt.Sprintf("state %q: dwell must be finite", id),
					Pos:     sv.Pos(),
				}
			}
			state.Dwell = time.Duration(days * float64(Day))
		}

		states = append(states, state)
	}
	return states, nil
}

// parseTransitionDefs extracts the ordered transition list. Order matters:
// rate transitions out of a state are evaluated in declaration order.
func parseTransitionDefs(v cue.Value) ([]model.TransitionDef, error) {
	transVal := v.LookupPath(cue.ParsePath("transitions"))
	if !transVal.Exists() {
		return nil, nil
	}

	iter, err := transVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var transitions []model.TransitionDef
	for iter.Next() {
		tv := iter.Value()

		from, err := requiredString(tv, "from")
		if err != nil {
			return nil, err
		}
		to, err := requiredString(tv, "to")
		if err != nil {
			return nil, err
		}
		kind, err := requiredString(tv, "kind")
		if err != nil {
			return nil, err
		}

		td := model.TransitionDef{From: from, To: to, Kind: model.TransitionKind(kind)}
		if rate, ok, err := optionalString(tv, "rate"); err != nil {
			return nil, err
		} else if ok {
			td.Provider = rate
		}
		transitions = append(transitions, td)
	}
	return transitions, nil
}

func requiredString(v cue.Value, field string) (string, error) {
	s, ok, err := optionalString(v, field)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &CompileError{
			Field:   field,
			Message: field + " is required",
			Pos:     v.Pos(),
		}
	}
	return s, nil
}

func optionalString(v cue.Value, field string) (string, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return "", false, nil
	}
	s, err := fv.String()
	if err != nil {
		return "", false, formatCUEError(err)
	}
	return s, true, nil
}

func optionalFloat(v cue.Value, field string) (float64, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return 0, false, nil
	}
	f, err := fv.Float64()
	if err != nil {
		return 0, false, formatCUEError(err)
	}
	return f, true, nil
}

func optionalBool(v cue.Value, field string) (bool, bool, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		return false, false, nil
	}
	b, err := fv.Bool()
	if err != nil {
		return false, false, formatCUEError(err)
	}
	return b, true, nil
}
