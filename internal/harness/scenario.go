package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cvdsim/internal/config"
	"github.com/roach88/cvdsim/internal/metrics"
)

// Scenario defines one simulation test.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden
	// snapshot.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Models is the directory holding the CUE disease and rate models.
	// Relative paths are resolved against the scenario's base path.
	Models string `yaml:"models"`

	// Config is the run configuration. It is decoded as strictly as a run
	// file, but environment overrides are never applied.
	Config config.RunConfig `yaml:"config"`

	// Assertions validate the stored report.
	Assertions []Assertion `yaml:"assertions"`

	// RunID is an optional fixed run ID. If empty, defaults to
	// "test-run-default".
	RunID string `yaml:"run_id,omitempty"`
}

// Assertion validates the stored report.
type Assertion struct {
	// Type specifies the assertion type:
	// - "report_value": Check one key's value
	// - "report_key_count": Check how many keys the report has
	// - "measure_total": Check the sum of a disease's measure
	// - "reproducible": Run again and compare every value
	Type string `yaml:"type"`

	// Key is the report key (used by report_value).
	Key string `yaml:"key,omitempty"`

	// Value is the expected value (used by report_value, measure_total).
	Value *float64 `yaml:"value,omitempty"`

	// Tolerance is the allowed absolute difference. Zero means exact.
	Tolerance float64 `yaml:"tolerance,omitempty"`

	// Count is the expected number of keys (used by report_key_count).
	Count *int `yaml:"count,omitempty"`

	// Disease, Measure and Match filter the report (used by
	// report_key_count and measure_total). Match is a key substring.
	Disease string `yaml:"disease,omitempty"`
	Measure string `yaml:"measure,omitempty"`
	Match   string `yaml:"match,omitempty"`
}

// Assertion type constants.
const (
	AssertReportValue    = "report_value"
	AssertReportKeyCount = "report_key_count"
	AssertMeasureTotal   = "measure_total"
	AssertReproducible   = "reproducible"
)

// LoadScenario reads and parses a scenario YAML file, resolving the
// models path relative to the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the models path relative to basePath.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding reaches into the inline config as well
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve the models path BEFORE validation
	if scenario.Models != "" && !filepath.IsAbs(scenario.Models) && basePath != "" {
		scenario.Models = filepath.Join(basePath, scenario.Models)
	}
	scenario.Config.SetDefaults()

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Models == "" {
		return fmt.Errorf("models directory is required")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	info, err := os.Stat(s.Models)
	if err != nil {
		return fmt.Errorf("models directory not found: %s", s.Models)
	}
	if !info.IsDir() {
		return fmt.Errorf("models path is not a directory: %s", s.Models)
	}

	if err := s.Config.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Tolerance < 0 {
		return fmt.Errorf("assertions[%d]: tolerance must be non-negative", index)
	}
	if a.Measure != "" && a.Measure != metrics.MeasurePersonTime && a.Measure != metrics.MeasureEventCount {
		return fmt.Errorf("assertions[%d]: unknown measure %q", index, a.Measure)
	}

	switch a.Type {
	case AssertReportValue:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for report_value", index)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for report_value", index)
		}
	case AssertReportKeyCount:
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for report_key_count", index)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for report_key_count", index)
		}
	case AssertMeasureTotal:
		if a.Disease == "" || a.Measure == "" {
			return fmt.Errorf("assertions[%d]: disease and measure are required for measure_total", index)
		}
		if a.Value == nil {
			return fmt.Errorf("assertions[%d]: value is required for measure_total", index)
		}
	case AssertReproducible:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
