// Package config loads simulation run configuration from YAML, with
// environment variable overrides.
//
// Example run.yaml:
//
//	seed: 42
//	steps: 104
//	start: "2022-01-01"
//	step_days: 7
//	population:
//	  size: 10000
//	  age_start: 30
//	  age_end: 95
//	  male_share: 0.5
//	  exposures:
//	    - {column: sbp, mean: 135, sd: 18}
//	metrics:
//	  by_age: true
//	  by_year: true
//	  by_sex: true
//	prevalence:
//	  ischemic_stroke:
//	    - {state: chronic_ischemic_stroke, share: 0.02}
//
// Environment overrides: CVDSIM_SEED, CVDSIM_STEPS, CVDSIM_DB.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/cvdsim/internal/metrics"
	"github.com/roach88/cvdsim/internal/model"
	"github.com/roach88/cvdsim/internal/population"
	"github.com/roach88/cvdsim/internal/sim"
	"github.com/roach88/cvdsim/internal/stratify"
)

// Defaults applied by SetDefaults.
const (
	DefaultStart    = "2022-01-01"
	DefaultStepDays = 7
)

// RunConfig is everything needed to reproduce a run apart from the models.
type RunConfig struct {
	Seed     uint64  `yaml:"seed" json:"seed"`
	Steps    int     `yaml:"steps" json:"steps"`
	Start    string  `yaml:"start" json:"start"`
	StepDays float64 `yaml:"step_days" json:"step_days"`

	// DB is where the run is persisted. It is not part of the stored
	// configuration.
	DB string `yaml:"db,omitempty" json:"-"`

	CheckInvariants bool `yaml:"check_invariants" json:"check_invariants"`

	Population population.Config `yaml:"population" json:"population"`

	// Stratification lists the risk factors. Omitted means the default
	// SBP/LDL/FPG/BMI factors; an explicit empty list means no strata.
	Stratification []stratify.Factor `yaml:"stratification" json:"stratification"`

	Metrics   metrics.Config     `yaml:"metrics" json:"metrics"`
	AgeGroups []metrics.AgeGroup `yaml:"age_groups,omitempty" json:"age_groups,omitempty"`

	Prevalence map[string][]sim.StateShare `yaml:"prevalence,omitempty" json:"prevalence,omitempty"`
}

// Overrides are read from the environment and win over the file.
type Overrides struct {
	Seed  *uint64 `env:"CVDSIM_SEED"`
	Steps *int    `env:"CVDSIM_STEPS"`
	DB    string  `env:"CVDSIM_DB"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads a run configuration file, applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*RunConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Decode parses YAML strictly (unknown fields are errors) and applies
// defaults. It does not consult the environment.
func Decode(r io.Reader) (*RunConfig, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var cfg RunConfig
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty config")
		}
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	cfg.SetDefaults()
	return &cfg, nil
}

// ApplyEnv applies CVDSIM_* overrides.
func (c *RunConfig) ApplyEnv() error {
	var o Overrides
	if err := ParseEnv(&o); err != nil {
		return err
	}
	if o.Seed != nil {
		c.Seed = *o.Seed
	}
	if o.Steps != nil {
		c.Steps = *o.Steps
	}
	if o.DB != "" {
		c.DB = o.DB
	}
	return nil
}

// SetDefaults fills zero start and step size.
func (c *RunConfig) SetDefaults() {
	if c.Start == "" {
		c.Start = DefaultStart
	}
	if c.StepDays == 0 {
		c.StepDays = DefaultStepDays
	}
}

// Validate checks the configuration. Model-specific checks (prevalence
// states, unknown diseases) happen when the simulation is built.
func (c *RunConfig) Validate() error {
	var errs []error
	if c.Steps < 0 {
		errs = append(errs, fmt.Errorf("steps must be non-negative, got %d", c.Steps))
	}
	if _, err := time.Parse(time.DateOnly, c.Start); err != nil {
		errs = append(errs, fmt.Errorf("start %q: want YYYY-MM-DD", c.Start))
	}
	if c.StepDays <= 0 {
		errs = append(errs, fmt.Errorf("step_days must be positive, got %v", c.StepDays))
	}
	if err := c.Population.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("population: %w", err))
	}
	for _, g := range c.AgeGroups {
		if g.Name == "" || !(g.End > g.Start) {
			errs = append(errs, fmt.Errorf("age group %q: empty name or interval", g.Name))
		}
	}
	return errors.Join(errs...)
}

// StartTime returns the parsed start date at midnight UTC.
func (c *RunConfig) StartTime() time.Time {
	t, _ := time.Parse(time.DateOnly, c.Start)
	return t
}

// StepSize returns the step length.
func (c *RunConfig) StepSize() time.Duration {
	return time.Duration(c.StepDays * float64(24*time.Hour))
}

// SimConfig converts the run configuration into simulation settings.
func (c *RunConfig) SimConfig() sim.Config {
	return sim.Config{
		Start:           c.StartTime(),
		StepSize:        c.StepSize(),
		Seed:            c.Seed,
		Horizon:         c.Steps,
		Factors:         c.Stratification,
		Metrics:         c.Metrics,
		AgeGroups:       c.AgeGroups,
		Prevalence:      c.Prevalence,
		CheckInvariants: c.CheckInvariants,
	}
}

// Build generates the population and wires a simulation over cat.
func (c *RunConfig) Build(cat *model.Catalogue, opts ...sim.Option) (*sim.Simulation, error) {
	table, err := population.Generate(c.Population, c.Seed)
	if err != nil {
		return nil, fmt.Errorf("generate population: %w", err)
	}
	s, err := sim.New(cat, table, c.SimConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("build simulation: %w", err)
	}
	return s, nil
}

// JSON encodes the configuration for storage. Struct fields keep
// declaration order and map keys are sorted, so equal configurations
// encode identically.
func (c *RunConfig) JSON() (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(c); err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(bytes.TrimSpace(buf.Bytes())), nil
}

// FromJSON decodes a stored configuration.
func FromJSON(data string) (*RunConfig, error) {
	var cfg RunConfig
	if err := json.Unmarshal([]byte(data), &cfg); err != nil {
		return nil, fmt.Errorf("decode stored config: %w", err)
	}
	return &cfg, nil
}
