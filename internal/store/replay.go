package store

import (
	"fmt"
	"math"
	"sort"

	"github.com/roach88/cvdsim/internal/metrics"
)

// Mismatch is one key whose stored and replayed values differ.
type Mismatch struct {
	Key      string  `json:"key"`
	Stored   float64 `json:"stored"`
	Replayed float64 `json:"replayed"`
	// Missing is "stored" or "replayed" when the key exists on one side only.
	Missing string `json:"missing,omitempty"`
}

func (m Mismatch) String() string {
	if m.Missing != "" {
		return fmt.Sprintf("%s: missing from %s report", m.Key, m.Missing)
	}
	return fmt.Sprintf("%s: stored %v, replayed %v", m.Key, m.Stored, m.Replayed)
}

// CompareReports compares two reports bit for bit. Values are equal only
// when their float64 bit patterns match, so -0 and +0 differ and NaN
// equals itself. Mismatches are returned sorted by key.
func CompareReports(stored, replayed []metrics.Entry) []Mismatch {
	want := make(map[string]float64, len(stored))
	for _, e := range stored {
		want[e.Key] = e.Value
	}
	got := make(map[string]float64, len(replayed))
	for _, e := range replayed {
		got[e.Key] = e.Value
	}

	var out []Mismatch
	for key, w := range want {
		g, ok := got[key]
		switch {
		case !ok:
			out = append(out, Mismatch{Key: key, Stored: w, Missing: "replayed"})
		case math.Float64bits(w) != math.Float64bits(g):
			out = append(out, Mismatch{Key: key, Stored: w, Replayed: g})
		}
	}
	for key, g := range got {
		if _, ok := want[key]; !ok {
			out = append(out, Mismatch{Key: key, Replayed: g, Missing: "stored"})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
