package stratify

import (
	"fmt"
	"math"
	"strings"

	"github.com/roach88/cvdsim/internal/population"
)

// ColumnStratum is the label column created by Assign.
const ColumnStratum = "stratum"

// Factor is one binary risk factor. A simulant is high when its exposure
// is strictly above Threshold.
type Factor struct {
	Name      string  `yaml:"name" json:"name"`
	Column    string  `yaml:"column" json:"column"`
	Threshold float64 `yaml:"threshold" json:"threshold"`

	// High and Low override the tokens <Name>_high and <Name>_normal.
	High string `yaml:"high,omitempty" json:"high,omitempty"`
	Low  string `yaml:"low,omitempty" json:"low,omitempty"`
}

// Tokens returns the factor's high and low tokens.
func (f Factor) Tokens() (high, low string) {
	high, low = f.High, f.Low
	if high == "" {
		high = f.Name + "_high"
	}
	if low == "" {
		low = f.Name + "_normal"
	}
	return high, low
}

// DefaultFactors are the metabolic risk factors used to stratify results:
// systolic blood pressure above 140 mmHg, LDL cholesterol above 5 mmol/L,
// fasting plasma glucose above 7 mmol/L and BMI above 25.
func DefaultFactors() []Factor {
	return []Factor{
		{Name: "SBP", Column: "sbp", Threshold: 140},
		{Name: "LDL", Column: "ldl", Threshold: 5},
		{Name: "FPG", Column: "fpg", Threshold: 7},
		{Name: "BMI", Column: "bmi", Threshold: 25},
	}
}

// EventFactor is a factor on a 0/1 event-history column, labelled
// <name>_post and <name>_none.
func EventFactor(name, column string) Factor {
	return Factor{
		Name:      name,
		Column:    column,
		Threshold: 0.5,
		High:      name + "_post",
		Low:       name + "_none",
	}
}

// Stratifier assigns and groups strata for an ordered list of factors.
type Stratifier struct {
	factors []Factor
	labels  []string
	index   map[string]int
}

// New creates a stratifier. Factor names and tokens must be unique.
func New(factors ...Factor) (*Stratifier, error) {
	seen := make(map[string]bool)
	for _, f := range factors {
		if f.Name == "" || f.Column == "" {
			return nil, &FactorError{Factor: f.Name, Message: "name and column are required"}
		}
		if math.IsNaN(f.Threshold) {
			return nil, &FactorError{Factor: f.Name, Message: "threshold is NaN"}
		}
		high, low := f.Tokens()
		if high == low {
			return nil, &FactorError{Factor: f.Name, Message: "high and low tokens are identical"}
		}
		for _, key := range []string{"name:" + f.Name, "token:" + high, "token:" + low} {
			if seen[key] {
				return nil, &FactorError{Factor: f.Name, Message: "duplicate " + key}
			}
			seen[key] = true
		}
	}

	labels := []string{""}
	for _, f := range factors {
		high, low := f.Tokens()
		next := make([]string, 0, len(labels)*2)
		for _, prefix := range labels {
			for _, tok := range []string{high, low} {
				if prefix == "" {
					next = append(next, tok)
				} else {
					next = append(next, prefix+"_"+tok)
				}
			}
		}
		labels = next
	}

	s := &Stratifier{
		factors: append([]Factor(nil), factors...),
		labels:  labels,
		index:   make(map[string]int, len(labels)),
	}
	for i, l := range labels {
		s.index[l] = i
	}
	return s, nil
}

// Factors returns the factors in canonical order.
func (s *Stratifier) Factors() []Factor {
	return append([]Factor(nil), s.factors...)
}

// Labels returns all 2^k labels in canonical order. With no factors there
// is a single empty label.
func (s *Stratifier) Labels() []string {
	return append([]string(nil), s.labels...)
}

// Label computes the label for one set of exposures, given in factor order.
func (s *Stratifier) Label(exposures []float64) string {
	parts := make([]string, len(s.factors))
	for i, f := range s.factors {
		high, low := f.Tokens()
		if exposures[i] > f.Threshold {
			parts[i] = high
		} else {
			parts[i] = low
		}
	}
	return strings.Join(parts, "_")
}

// Assign computes every simulant's label and stores it in the stratum
// column, which must not exist yet. Missing exposure columns and NaN
// exposures are dependency errors.
func (s *Stratifier) Assign(t *population.Table) ([]string, error) {
	cols := make([][]float64, len(s.factors))
	for i, f := range s.factors {
		col, err := t.FloatColumn(f.Column)
		if err != nil {
			return nil, &DependencyError{Factor: f.Name, Column: f.Column, Err: err}
		}
		cols[i] = col
	}

	labels := make([]string, t.Len())
	exposures := make([]float64, len(s.factors))
	for sim := range labels {
		for i, col := range cols {
			if math.IsNaN(col[sim]) {
				return nil, &DependencyError{Factor: s.factors[i].Name, Column: s.factors[i].Column, Simulant: sim}
			}
			exposures[i] = col[sim]
		}
		labels[sim] = s.Label(exposures)
	}

	col, err := t.CreateStringColumn(ColumnStratum, "")
	if err != nil {
		return nil, fmt.Errorf("assign strata: %w", err)
	}
	copy(col, labels)
	return col, nil
}

// Group is one stratum and the simulants in it.
type Group struct {
	Label   string
	Members []int
}

// Group partitions index by stratum. Every label is returned, in canonical
// order, including those with no members.
func (s *Stratifier) Group(t *population.Table, index []int) ([]Group, error) {
	col, err := t.StringColumn(ColumnStratum)
	if err != nil {
		return nil, fmt.Errorf("group strata: %w", err)
	}
	groups := make([]Group, len(s.labels))
	for i, l := range s.labels {
		groups[i].Label = l
	}
	for _, sim := range index {
		i, ok := s.index[col[sim]]
		if !ok {
			return nil, &LabelError{Simulant: sim, Label: col[sim]}
		}
		groups[i].Members = append(groups[i].Members, sim)
	}
	return groups, nil
}

// Has reports whether label is one of the stratifier's labels.
func (s *Stratifier) Has(label string) bool {
	_, ok := s.index[label]
	return ok
}
