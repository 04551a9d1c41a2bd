package config

import (
	"fmt"

	"github.com/kilianp07/vrf/core/checkpoint"
	"github.com/kilianp07/vrf/core/dataset"
	"github.com/kilianp07/vrf/core/evaluation"
	"github.com/kilianp07/vrf/core/forecast"
)

// DataConfig locates the sample files and sets the batching policy. When
// DevPath is empty the training file is split by Split.
type DataConfig struct {
	TrainPath string    `json:"train_path"`
	DevPath   string    `json:"dev_path"`
	TestPath  string    `json:"test_path"`
	Split     []float64 `json:"split"`
	BatchSize int       `json:"batch_size"`
	Shuffle   bool      `json:"shuffle"`
	Seed      uint64    `json:"seed"`
}

// SetDefaults applies a batch size of 32 and an 80/20 split.
func (c *DataConfig) SetDefaults() {
	if c.BatchSize == 0 {
		c.BatchSize = 32
	}
	if len(c.Split) == 0 {
		c.Split = []float64{0.8, 0.2}
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
}

// Validate checks the batching policy and split.
func (c DataConfig) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("data: batch_size must be positive, got %d", c.BatchSize)
	}
	if c.DevPath == "" && len(c.Split) < 2 {
		return fmt.Errorf("data: split needs train and dev fractions when dev_path is empty")
	}
	sum := 0.0
	for _, f := range c.Split {
		if f <= 0 {
			return fmt.Errorf("data: split fraction %v must be positive", f)
		}
		sum += f
	}
	if sum > 1+1e-9 {
		return fmt.Errorf("data: split fractions %v sum above 1", c.Split)
	}
	return nil
}

// Scale sources.
const (
	ScaleFeatures = "features"
	ScaleLabels   = "labels"
	ScaleFixed    = "fixed"
	ScaleNone     = "none"
)

// ScaleConfig selects the de-standardization applied to model outputs.
// "features" takes Columns of the feature standardizer, "labels" fits the
// training labels, "fixed" uses Mean and Scale verbatim and "none" builds an
// unscaled model.
type ScaleConfig struct {
	Source  string    `json:"source"`
	Columns []int     `json:"columns"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
}

// SetDefaults fits the labels.
func (c *ScaleConfig) SetDefaults() {
	if c.Source == "" {
		c.Source = ScaleLabels
	}
	if c.Source == ScaleFeatures && len(c.Columns) == 0 {
		c.Columns = []int{0, 1}
	}
}

// Validate checks the source.
func (c ScaleConfig) Validate() error {
	switch c.Source {
	case ScaleFeatures, ScaleLabels, ScaleNone:
		return nil
	case ScaleFixed:
		return forecast.ScaleSpec{Mean: c.Mean, Scale: c.Scale}.Validate()
	default:
		return fmt.Errorf("scale: unknown source %q", c.Source)
	}
}

// Resolve builds the scale for a model trained on train. It returns nil for
// the "none" source.
func (c ScaleConfig) Resolve(train *dataset.Store) (*forecast.ScaleSpec, error) {
	var (
		s   forecast.ScaleSpec
		err error
	)
	switch c.Source {
	case ScaleNone:
		return nil, nil
	case ScaleFixed:
		s = forecast.ScaleSpec{Mean: c.Mean, Scale: c.Scale}
		err = s.Validate()
	case ScaleLabels:
		s, err = forecast.ScaleFromLabels(train.Labels())
	case ScaleFeatures:
		s, err = forecast.ScaleFromStandardizer(train.Standardizer(), c.Columns...)
	default:
		err = fmt.Errorf("scale: unknown source %q", c.Source)
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CheckpointConfig configures the two checkpoint triggers.
type CheckpointConfig struct {
	Dir      string                     `json:"dir"`
	Periodic checkpoint.PeriodicTrigger `json:"periodic"`
	Best     checkpoint.BestTrigger     `json:"best"`
}

// SetDefaults saves the best model to best.json under "checkpoints".
func (c *CheckpointConfig) SetDefaults() {
	if c.Dir == "" {
		c.Dir = "checkpoints"
	}
	if c.Best.Path == "" {
		c.Best.Path = "best.json"
	}
	if c.Periodic.Every > 0 && c.Periodic.PathTemplate == "" {
		c.Periodic.PathTemplate = "epoch_%03d.json"
	}
}

// Validate checks the triggers.
func (c CheckpointConfig) Validate() error {
	if c.Periodic.Every < 0 {
		return fmt.Errorf("checkpoint: periodic.every must not be negative")
	}
	return nil
}

// EvaluationConfig holds the horizon bin edges in seconds.
type EvaluationConfig struct {
	Bins []float64 `json:"bins"`
}

// SetDefaults uses 0 to 1800 in steps of 300.
func (c *EvaluationConfig) SetDefaults() {
	if len(c.Bins) == 0 {
		c.Bins = evaluation.DefaultEdges()
	}
}

// Validate checks the edges.
func (c EvaluationConfig) Validate() error {
	_, err := evaluation.NewReporter(c.Bins, nil)
	return err
}

// LossConfig configures the RMSE criterion.
type LossConfig struct {
	Eps float64 `json:"eps"`
}

// SetDefaults applies an epsilon of 1e-3.
func (c *LossConfig) SetDefaults() {
	if c.Eps == 0 {
		c.Eps = 1e-3
	}
}

// Validate checks epsilon.
func (c LossConfig) Validate() error {
	if c.Eps < 0 {
		return fmt.Errorf("loss: eps must not be negative")
	}
	return nil
}
