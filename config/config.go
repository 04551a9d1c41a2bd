// Package config loads the training service settings from a YAML or JSON
// file with K_ prefixed environment overrides, e.g. K_TRAINING__EPOCHS=3.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/vrf/core/forecast"
	"github.com/kilianp07/vrf/core/metrics"
	"github.com/kilianp07/vrf/core/optim"
	"github.com/kilianp07/vrf/core/training"
	"github.com/kilianp07/vrf/infra/mqtt"
	"github.com/kilianp07/vrf/simulator"
)

type Config struct {
	Data       DataConfig               `json:"data"`
	Scale      ScaleConfig              `json:"scale"`
	Model      forecast.Config          `json:"model"`
	Optimizer  optim.Config             `json:"optimizer"`
	Loss       LossConfig               `json:"loss"`
	Training   training.Config          `json:"training"`
	EarlyStop  training.EarlyStopConfig `json:"early_stop"`
	Checkpoint CheckpointConfig         `json:"checkpoint"`
	Evaluation EvaluationConfig         `json:"evaluation"`
	Metrics    metrics.Config           `json:"metrics"`
	History    HistoryConfig            `json:"history"`
	MQTT       mqtt.Config              `json:"mqtt"`
	Sentry     SentryConfig             `json:"sentry"`
	Simulator  simulator.Config         `json:"simulator"`
}

// Load reads path, applies environment overrides, fills defaults and
// validates the result. An empty path loads defaults and the environment
// only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		ext := strings.ToLower(filepath.Ext(path))
		var parser koanf.Parser
		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section. The MQTT section is left alone unless a
// broker is configured.
func (c *Config) SetDefaults() {
	c.Data.SetDefaults()
	c.Scale.SetDefaults()
	c.Model.SetDefaults()
	c.Optimizer.SetDefaults()
	c.Loss.SetDefaults()
	c.Training.SetDefaults()
	c.EarlyStop.SetDefaults()
	c.Checkpoint.SetDefaults()
	c.Evaluation.SetDefaults()
	c.History.SetDefaults()
	c.Simulator.SetDefaults()
	if c.MQTT.Broker != "" {
		c.MQTT.SetDefaults()
	}
}

// Validate checks every section and joins the errors.
func (c Config) Validate() error {
	errs := []error{
		c.Data.Validate(),
		c.Scale.Validate(),
		c.Model.Validate(),
		c.Optimizer.Validate(),
		c.Loss.Validate(),
		c.Training.Validate(),
		c.EarlyStop.Validate(),
		c.Checkpoint.Validate(),
		c.Evaluation.Validate(),
		c.History.Validate(),
		c.Sentry.Validate(),
		c.Simulator.Validate(),
	}
	if c.MQTT.Broker != "" {
		errs = append(errs, c.MQTT.Validate())
	}
	if c.Scale.Source == ScaleFeatures {
		for _, col := range c.Scale.Columns {
			if col < 0 || col >= c.Model.InputSize {
				errs = append(errs, fmt.Errorf("scale: column %d outside input_size %d", col, c.Model.InputSize))
			}
		}
	}
	return errors.Join(errs...)
}

// Default returns a validated configuration built from defaults only.
func Default() *Config {
	var c Config
	c.SetDefaults()
	return &c
}
