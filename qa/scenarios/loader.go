// Package scenarios runs end-to-end training scenarios described in YAML:
// a simulated fleet, model and training overrides, and the outcome the run
// must reach.
package scenarios

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/vrf/config"
)

// Expected bounds the outcome of a scenario run.
type Expected struct {
	Epochs        int     `yaml:"epochs"`
	Stopped       bool    `yaml:"stopped"`
	MaxSkipped    int     `yaml:"max_skipped"`
	MaxMeanErrorM float64 `yaml:"max_mean_error_m"`
	HasTest       bool    `yaml:"has_test"`
}

// Scenario is one YAML scenario file. Config holds the same sections as the
// service configuration file.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Config      map[string]any `yaml:"config"`
	Expected    Expected       `yaml:"expected"`
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("scenario %s: name is required", path)
	}
	return &sc, nil
}

// BuildConfig decodes the scenario overrides onto an empty configuration,
// then applies defaults and validates.
func (s *Scenario) BuildConfig() (*config.Config, error) {
	var cfg config.Config
	if len(s.Config) > 0 {
		raw, err := json.Marshal(s.Config)
		if err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
		}
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	return &cfg, nil
}
