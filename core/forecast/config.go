package forecast

import (
	"fmt"

	"github.com/kilianp07/vrf/core/nn"
)

// Config describes the network architecture.
type Config struct {
	Cell          nn.CellKind `json:"cell"`
	InputSize     int         `json:"input_size"`
	HiddenSize    int         `json:"hidden_size"`
	NumLayers     int         `json:"num_layers"`
	OutputSize    int         `json:"output_size"`
	FCLayers      []int       `json:"fc_layers"`
	Bidirectional bool        `json:"bidirectional"`
	Seed          uint64      `json:"seed"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Cell == "" {
		c.Cell = nn.LSTM
	}
	if c.InputSize == 0 {
		c.InputSize = 4
	}
	if c.HiddenSize == 0 {
		c.HiddenSize = 150
	}
	if c.NumLayers == 0 {
		c.NumLayers = 1
	}
	if c.OutputSize == 0 {
		c.OutputSize = 2
	}
	if c.FCLayers == nil {
		c.FCLayers = []int{50}
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.Cell {
	case nn.LSTM, nn.GRU:
	default:
		return fmt.Errorf("forecast: unknown cell %q", c.Cell)
	}
	if c.InputSize <= 0 || c.HiddenSize <= 0 || c.NumLayers <= 0 || c.OutputSize <= 0 {
		return fmt.Errorf("forecast: input_size, hidden_size, num_layers and output_size must be positive")
	}
	for i, w := range c.FCLayers {
		if w <= 0 {
			return fmt.Errorf("forecast: fc_layers[%d] must be positive, got %d", i, w)
		}
	}
	return nil
}

// decoderSizes returns the layer widths of the decoder head.
func (c Config) decoderSizes(encoded int) []int {
	sizes := make([]int, 0, len(c.FCLayers)+2)
	sizes = append(sizes, encoded)
	sizes = append(sizes, c.FCLayers...)
	return append(sizes, c.OutputSize)
}
