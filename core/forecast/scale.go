package forecast

import (
	"fmt"

	"github.com/kilianp07/vrf/core/dataset"
)

// ScaleSpec is the label-space de-standardization: output = raw*scale + mean.
// Mean and Scale describe one displacement vector and are tiled across the
// output width.
type ScaleSpec struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Width returns the width of one displacement vector.
func (s ScaleSpec) Width() int { return len(s.Mean) }

// Validate checks mean and scale agree and are non-empty.
func (s ScaleSpec) Validate() error {
	if len(s.Mean) == 0 || len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("forecast: scale spec mean width %d, scale width %d", len(s.Mean), len(s.Scale))
	}
	return nil
}

// tile repeats mean and scale to cover width outputs. The receiver is never
// modified.
func (s ScaleSpec) tile(width int) (mean, scale []float64, err error) {
	w := s.Width()
	if w == 0 || width%w != 0 {
		return nil, nil, fmt.Errorf("forecast: output width %d is not a multiple of scale width %d", width, w)
	}
	mean = make([]float64, 0, width)
	scale = make([]float64, 0, width)
	for range width / w {
		mean = append(mean, s.Mean...)
		scale = append(scale, s.Scale...)
	}
	return mean, scale, nil
}

// ScaleFromLabels fits mean and population standard deviation over labels.
func ScaleFromLabels(labels [][]float64) (ScaleSpec, error) {
	std, err := dataset.FitStandardizer(labels)
	if err != nil {
		return ScaleSpec{}, err
	}
	return ScaleSpec{Mean: std.Mean, Scale: std.Scale}, nil
}

// ScaleFromStandardizer selects columns of a feature standardizer, typically
// the dx and dy deltas the label predicts.
func ScaleFromStandardizer(std *dataset.Standardizer, columns ...int) (ScaleSpec, error) {
	if std == nil {
		return ScaleSpec{}, fmt.Errorf("forecast: nil standardizer")
	}
	s := ScaleSpec{}
	for _, c := range columns {
		if c < 0 || c >= std.Width() {
			return ScaleSpec{}, fmt.Errorf("forecast: column %d outside standardizer width %d", c, std.Width())
		}
		s.Mean = append(s.Mean, std.Mean[c])
		s.Scale = append(s.Scale, std.Scale[c])
	}
	return s, s.Validate()
}
