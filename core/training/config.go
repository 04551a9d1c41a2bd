package training

import "fmt"

// InstabilityPolicy decides what happens to a numerically unstable batch.
type InstabilityPolicy string

const (
	// PolicySkip logs the batch, drops its loss and keeps training.
	PolicySkip InstabilityPolicy = "skip"
	// PolicyAbort stops the run with an *InstabilityError.
	PolicyAbort InstabilityPolicy = "abort"
)

// Config controls the epoch loop.
type Config struct {
	Epochs int `json:"epochs"`
	// EvaluateEvery runs the evaluation report every N epochs. A negative
	// value disables it; SetDefaults turns 0 into 5.
	EvaluateEvery int               `json:"evaluate_every"`
	Instability   InstabilityPolicy `json:"instability"`
	// HistoryLimit bounds the retained loss history; 0 keeps everything.
	HistoryLimit int `json:"history_limit"`
	// LogEvery emits batch progress every N batches.
	LogEvery int `json:"log_every"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Epochs == 0 {
		c.Epochs = 100
	}
	if c.EvaluateEvery == 0 {
		c.EvaluateEvery = 5
	}
	if c.Instability == "" {
		c.Instability = PolicySkip
	}
	if c.LogEvery == 0 {
		c.LogEvery = 1
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("training: epochs must be positive, got %d", c.Epochs)
	}
	if c.Instability != PolicySkip && c.Instability != PolicyAbort {
		return fmt.Errorf("training: unknown instability policy %q", c.Instability)
	}
	if c.HistoryLimit < 0 || c.LogEvery < 0 {
		return fmt.Errorf("training: history_limit and log_every must not be negative")
	}
	return nil
}

// EarlyStopConfig parametrises EarlyStopping.
type EarlyStopConfig struct {
	// Disabled turns early stopping and the best checkpoint off.
	Disabled bool `json:"disabled"`
	Patience int  `json:"patience"`
	// MinDelta is the improvement threshold. Unset means 1e-4; an explicit
	// 0 accepts any improvement.
	MinDelta *float64 `json:"min_delta,omitempty"`
}

// DefaultMinDelta is the threshold used when min_delta is not configured.
const DefaultMinDelta = 1e-4

// SetDefaults applies a patience of 5 and, when unset, DefaultMinDelta.
func (c *EarlyStopConfig) SetDefaults() {
	if c.Patience == 0 {
		c.Patience = 5
	}
	if c.MinDelta == nil {
		d := DefaultMinDelta
		c.MinDelta = &d
	}
}

// Threshold returns the configured MinDelta or DefaultMinDelta.
func (c EarlyStopConfig) Threshold() float64 {
	if c.MinDelta == nil {
		return DefaultMinDelta
	}
	return *c.MinDelta
}

// Validate checks the configuration.
func (c EarlyStopConfig) Validate() error {
	if c.Patience <= 0 {
		return fmt.Errorf("training: patience must be positive, got %d", c.Patience)
	}
	if c.Threshold() < 0 {
		return fmt.Errorf("training: min_delta must not be negative")
	}
	return nil
}
