package rates

import (
	"strconv"
	"time"
)

// Kind identifies a provider kind.
type Kind string

const (
	KindHazard      Kind = "hazard"
	KindProbability Kind = "probability"
	KindTable       Kind = "table"
	KindScaleUp     Kind = "scale_up"
)

// Spec declares one named rate provider.
type Spec struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`

	// hazard, probability
	Value float64 `json:"value,omitempty"`

	// hazard, table: unit of time the value is expressed per.
	// Zero means one year.
	Per time.Duration `json:"per,omitempty"`

	// table
	Rows []Row `json:"rows,omitempty"`
	// table: values are per-step probabilities rather than hazards.
	Probability bool `json:"probability,omitempty"`

	// scale_up
	Base  string    `json:"base,omitempty"`
	From  float64   `json:"from,omitempty"`
	To    float64   `json:"to,omitempty"`
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

// Row is one table entry covering ages in [AgeStart, AgeEnd). An empty Sex
// matches every sex.
type Row struct {
	AgeStart float64 `json:"age_start"`
	AgeEnd   float64 `json:"age_end"`
	Sex      string  `json:"sex,omitempty"`
	Value    float64 `json:"value"`
}

// Canonical returns the spec as a canonical-JSON-ready object. Floats are
// encoded as shortest round-trip strings and times as RFC 3339.
func (s Spec) Canonical() map[string]any {
	obj := map[string]any{
		"name": s.Name,
		"kind": string(s.Kind),
	}
	switch s.Kind {
	case KindHazard, KindProbability:
		obj["value"] = formatFloat(s.Value)
		obj["per_ns"] = int64(s.Per)
	case KindTable:
		rows := make([]any, len(s.Rows))
		for i, r := range s.Rows {
			rows[i] = map[string]any{
				"age_start": formatFloat(r.AgeStart),
				"age_end":   formatFloat(r.AgeEnd),
				"sex":       r.Sex,
				"value":     formatFloat(r.Value),
			}
		}
		obj["rows"] = rows
		obj["per_ns"] = int64(s.Per)
		obj["probability"] = s.Probability
	case KindScaleUp:
		obj["base"] = s.Base
		obj["from"] = formatFloat(s.From)
		obj["to"] = formatFloat(s.To)
		obj["start"] = s.Start.UTC().Format(time.RFC3339)
		obj["end"] = s.End.UTC().Format(time.RFC3339)
	}
	return obj
}

// CanonicalSet returns every spec keyed by name, for hashing.
func CanonicalSet(specs []Spec) map[string]any {
	out := make(map[string]any, len(specs))
	for _, s := range specs {
		out[s.Name] = s.Canonical()
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
