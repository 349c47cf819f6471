package population

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Exposure distribution kinds.
const (
	DistributionNormal    = "normal"
	DistributionBernoulli = "bernoulli"
)

// Exposure describes one risk exposure column to generate.
type Exposure struct {
	// Column is the name of the float column to create.
	Column string `yaml:"column" json:"column"`

	// Distribution is "normal" (the default) or "bernoulli".
	Distribution string `yaml:"distribution,omitempty" json:"distribution,omitempty"`

	// Mean and SD parameterize a normal exposure, clipped at zero.
	Mean float64 `yaml:"mean,omitempty" json:"mean,omitempty"`
	SD   float64 `yaml:"sd,omitempty" json:"sd,omitempty"`

	// Prevalence is the share of simulants with value 1 for a bernoulli
	// exposure, such as a prior cardiovascular event.
	Prevalence float64 `yaml:"prevalence,omitempty" json:"prevalence,omitempty"`
}

// Config describes a generated population.
type Config struct {
	Size      int        `yaml:"size" json:"size"`
	AgeStart  float64    `yaml:"age_start" json:"age_start"`
	AgeEnd    float64    `yaml:"age_end" json:"age_end"`
	MaleShare float64    `yaml:"male_share" json:"male_share"`
	Exposures []Exposure `yaml:"exposures,omitempty" json:"exposures,omitempty"`
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("population size must be positive, got %d", c.Size)
	}
	if c.AgeEnd < c.AgeStart || c.AgeStart < 0 {
		return fmt.Errorf("invalid age range [%v, %v)", c.AgeStart, c.AgeEnd)
	}
	if c.MaleShare < 0 || c.MaleShare > 1 {
		return fmt.Errorf("male_share %v outside [0, 1]", c.MaleShare)
	}
	seen := make(map[string]bool, len(c.Exposures))
	for _, e := range c.Exposures {
		if e.Column == "" || seen[e.Column] {
			return fmt.Errorf("exposure column %q is empty or repeated", e.Column)
		}
		seen[e.Column] = true
		switch e.Distribution {
		case "", DistributionNormal:
			if e.SD < 0 {
				return fmt.Errorf("exposure %s: negative sd", e.Column)
			}
		case DistributionBernoulli:
			if e.Prevalence < 0 || e.Prevalence > 1 {
				return fmt.Errorf("exposure %s: prevalence %v outside [0, 1]", e.Column, e.Prevalence)
			}
		default:
			return fmt.Errorf("exposure %s: unknown distribution %q", e.Column, e.Distribution)
		}
	}
	return nil
}

// Generate builds a population deterministically from seed. It creates the
// age, sex and alive columns and one float column per exposure.
func Generate(cfg Config, seed uint64) (*Table, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	t := NewTable(cfg.Size)

	age, _ := t.CreateFloatColumn(ColumnAge)
	sex, _ := t.CreateStringColumn(ColumnSex, "")
	if _, err := t.CreateBoolColumn(ColumnAlive, true); err != nil {
		return nil, err
	}
	for i := 0; i < cfg.Size; i++ {
		age[i] = cfg.AgeStart + rng.Float64()*(cfg.AgeEnd-cfg.AgeStart)
		if rng.Float64() < cfg.MaleShare {
			sex[i] = "male"
		} else {
			sex[i] = "female"
		}
	}

	for _, e := range cfg.Exposures {
		col, err := t.CreateFloatColumn(e.Column)
		if err != nil {
			return nil, err
		}
		for i := range col {
			switch e.Distribution {
			case DistributionBernoulli:
				if rng.Float64() < e.Prevalence {
					col[i] = 1
				}
			default:
				col[i] = math.Max(0, e.Mean+e.SD*rng.NormFloat64())
			}
		}
	}
	return t, nil
}
