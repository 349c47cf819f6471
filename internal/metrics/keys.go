package metrics

import (
	"fmt"
	"strconv"
	"strings"
)

// Measures.
const (
	MeasurePersonTime = "person_time"
	MeasureEventCount = "event_count"
)

// AgeGroup is a half-open age interval [Start, End) with a report name.
type AgeGroup struct {
	Name  string  `yaml:"name" json:"name"`
	Start float64 `yaml:"start" json:"start"`
	End   float64 `yaml:"end" json:"end"`
}

// DefaultAgeGroups returns five-year groups from 30 to 95 and an open
// 95_plus group.
func DefaultAgeGroups() []AgeGroup {
	var groups []AgeGroup
	for start := 30; start < 95; start += 5 {
		groups = append(groups, AgeGroup{
			Name:  fmt.Sprintf("%d_to_%d", start, start+4),
			Start: float64(start),
			End:   float64(start + 5),
		})
	}
	return append(groups, AgeGroup{Name: "95_plus", Start: 95, End: 125})
}

// DefaultSexes lists the sexes reported when grouping by sex.
func DefaultSexes() []string {
	return []string{"male", "female"}
}

// Cell identifies one report key apart from its subject and measure.
// Empty fields are omitted from the key.
type Cell struct {
	Year     int
	Sex      string
	AgeGroup string
	Stratum  string
}

// Key renders the report key for a subject (a state or transition ID) and
// measure.
func Key(subject, measure string, c Cell) string {
	var b strings.Builder
	b.WriteString(subject)
	b.WriteByte('_')
	b.WriteString(measure)
	if c.Year != 0 {
		b.WriteString("_in_")
		b.WriteString(strconv.Itoa(c.Year))
	}
	if c.Sex != "" {
		b.WriteString("_among_")
		b.WriteString(c.Sex)
	}
	if c.AgeGroup != "" {
		b.WriteString("_in_age_group_")
		b.WriteString(c.AgeGroup)
	}
	if c.Stratum != "" {
		b.WriteByte('_')
		b.WriteString(c.Stratum)
	}
	return b.String()
}

// PersonTimeKey renders a person-time key.
func PersonTimeKey(state string, c Cell) string {
	return Key(state, MeasurePersonTime, c)
}

// EventCountKey renders a transition count key.
func EventCountKey(transition string, c Cell) string {
	return Key(transition, MeasureEventCount, c)
}
