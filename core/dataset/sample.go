package dataset

import (
	"errors"
	"fmt"
)

// ErrEmpty is returned when a store or split receives no samples.
var ErrEmpty = errors.New("dataset: no samples")

// Sample is one trajectory window: an ordered list of feature rows of fixed
// width paired with the next-delta label.
type Sample struct {
	Features [][]float64 `json:"features"`
	Label    []float64   `json:"label"`
}

// Len returns the true length of the sample.
func (s Sample) Len() int { return len(s.Features) }

// Horizon returns the forecast horizon of the sample, stored as the last
// feature of its last row.
func (s Sample) Horizon() float64 {
	if len(s.Features) == 0 {
		return 0
	}
	last := s.Features[len(s.Features)-1]
	if len(last) == 0 {
		return 0
	}
	return last[len(last)-1]
}

// RawData is the upstream contract: "samples" holds variable-length 2-D
// arrays and "labels" holds 1 x L arrays aligned by index.
type RawData struct {
	Samples [][][]float64 `json:"samples"`
	Labels  [][]float64   `json:"labels"`
}

// Len returns the number of samples.
func (r RawData) Len() int { return len(r.Samples) }

// ToSamples validates index alignment and converts the raw mapping.
func (r RawData) ToSamples() ([]Sample, error) {
	if len(r.Samples) != len(r.Labels) {
		return nil, fmt.Errorf("dataset: %d samples but %d labels", len(r.Samples), len(r.Labels))
	}
	out := make([]Sample, len(r.Samples))
	for i := range r.Samples {
		out[i] = Sample{Features: r.Samples[i], Label: r.Labels[i]}
	}
	return out, nil
}

// FromSamples is the inverse of ToSamples.
func FromSamples(samples []Sample) RawData {
	raw := RawData{
		Samples: make([][][]float64, len(samples)),
		Labels:  make([][]float64, len(samples)),
	}
	for i, s := range samples {
		raw.Samples[i] = s.Features
		raw.Labels[i] = s.Label
	}
	return raw
}

// ShapeError reports a sample whose feature or label width differs from the
// width established by the first sample.
type ShapeError struct {
	Index int
	Field string
	Want  int
	Got   int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("dataset: sample %d: %s width %d, want %d", e.Index, e.Field, e.Got, e.Want)
}
