package rates

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/cvdsim/internal/model"
)

// ErrNoRow is returned by table providers when no row covers a simulant.
var ErrNoRow = errors.New("no table row covers simulant")

// Constant returns a provider that always reports r.
func Constant(r model.Rate) model.RateFunc {
	return func(model.SimulantContext) (model.Rate, error) {
		return r, nil
	}
}

// Table returns a provider that looks up rows by age and sex. Rows are
// indexed once; overlapping rows for the same sex are rejected.
func Table(rows []Row, per time.Duration, probability bool) (model.RateFunc, error) {
	index := make(map[string][]Row)
	for i, r := range rows {
		if !(r.AgeEnd > r.AgeStart) {
			return nil, fmt.Errorf("row %d: age_end %v must exceed age_start %v", i, r.AgeEnd, r.AgeStart)
		}
		index[r.Sex] = append(index[r.Sex], r)
	}
	for sex, rs := range index {
		sort.Slice(rs, func(i, j int) bool { return rs[i].AgeStart < rs[j].AgeStart })
		for i := 1; i < len(rs); i++ {
			if rs[i].AgeStart < rs[i-1].AgeEnd {
				return nil, fmt.Errorf("rows for sex %q overlap at age %v", sex, rs[i].AgeStart)
			}
		}
	}
	if per == 0 {
		per = model.Year
	}

	lookup := func(rs []Row, age float64) (Row, bool) {
		i := sort.Search(len(rs), func(i int) bool { return rs[i].AgeEnd > age })
		if i < len(rs) && rs[i].AgeStart <= age {
			return rs[i], true
		}
		return Row{}, false
	}

	return func(sc model.SimulantContext) (model.Rate, error) {
		row, ok := lookup(index[sc.Sex], sc.Age)
		if !ok && sc.Sex != "" {
			row, ok = lookup(index[""], sc.Age)
		}
		if !ok {
			return model.Rate{}, fmt.Errorf("%w: age %.4f sex %q", ErrNoRow, sc.Age, sc.Sex)
		}
		if probability {
			return model.Probability(row.Value), nil
		}
		return model.Hazard(row.Value, per), nil
	}, nil
}

// ScaleUpFactor returns the multiplier at t: from before start, to after
// end, and linear in between.
func ScaleUpFactor(from, to float64, start, end, t time.Time) float64 {
	switch {
	case !t.After(start):
		return from
	case !t.Before(end):
		return to
	}
	frac := float64(t.Sub(start)) / float64(end.Sub(start))
	return from + (to-from)*frac
}

// ScaleUp multiplies base by the scale-up factor at the simulant's time.
func ScaleUp(base model.RateFunc, from, to float64, start, end time.Time) model.RateFunc {
	return func(sc model.SimulantContext) (model.Rate, error) {
		r, err := base(sc)
		if err != nil {
			return model.Rate{}, err
		}
		r.Value *= ScaleUpFactor(from, to, start, end, sc.Time)
		return r, nil
	}
}

// Build resolves specs into a provider set. Scale-up bases may reference
// specs declared in any order; unknown and cyclic references are errors.
// Every problem is reported in a joined error of *model.ConfigError.
func Build(specs []Spec) (model.ProviderSet, error) {
	byName := make(map[string]Spec, len(specs))
	var errs []error
	fail := func(name, format string, args ...any) {
		errs = append(errs, &model.ConfigError{
			Code:    model.ErrCodeRateSpec,
			Field:   "rate." + name,
			Message: fmt.Sprintf(format, args...),
		})
	}

	for _, s := range specs {
		if s.Name == "" {
			fail("", "rate name is required")
			continue
		}
		if _, dup := byName[s.Name]; dup {
			fail(s.Name, "duplicate rate")
			continue
		}
		byName[s.Name] = s
	}

	set := make(model.ProviderSet, len(byName))
	resolving := make(map[string]bool)
	failed := make(map[string]bool)

	var build func(name string) model.RateFunc
	resolve := func(name string) model.RateFunc {
		if fn, ok := set[name]; ok {
			return fn
		}
		if failed[name] {
			return nil
		}
		fn := build(name)
		if fn == nil {
			failed[name] = true
			return nil
		}
		set[name] = fn
		return fn
	}

	build = func(name string) model.RateFunc {
		s := byName[name]
		per := s.Per
		if per == 0 {
			per = model.Year
		}
		var fn model.RateFunc
		switch s.Kind {
		case KindHazard:
			fn = Constant(model.Hazard(s.Value, per))
		case KindProbability:
			fn = Constant(model.Probability(s.Value))
		case KindTable:
			t, err := Table(s.Rows, per, s.Probability)
			if err != nil {
				fail(name, "%v", err)
				return nil
			}
			fn = t
		case KindScaleUp:
			if _, ok := byName[s.Base]; !ok {
				fail(name, "base rate %q is not defined", s.Base)
				return nil
			}
			if resolving[name] {
				fail(name, "scale_up base chain is cyclic")
				return nil
			}
			if !s.End.After(s.Start) {
				fail(name, "end %s must be after start %s", s.End.Format(time.DateOnly), s.Start.Format(time.DateOnly))
				return nil
			}
			resolving[name] = true
			base := resolve(s.Base)
			delete(resolving, name)
			if base == nil {
				return nil
			}
			fn = ScaleUp(base, s.From, s.To, s.Start, s.End)
		default:
			fail(name, "unknown kind %q", s.Kind)
			return nil
		}
		return fn
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		resolve(name)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return set, nil
}
