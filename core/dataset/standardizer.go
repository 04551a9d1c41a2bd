package dataset

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// Standardizer holds per-feature mean and scale. A zero variance feature gets
// a scale of one so that it is centred but not divided.
type Standardizer struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitStandardizer computes population mean and standard deviation of every
// column over rows.
func FitStandardizer(rows [][]float64) (*Standardizer, error) {
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	width := len(rows[0])
	col := make([]float64, len(rows))
	s := &Standardizer{Mean: make([]float64, width), Scale: make([]float64, width)}
	for j := 0; j < width; j++ {
		for i, r := range rows {
			if len(r) != width {
				return nil, &ShapeError{Index: i, Field: "feature", Want: width, Got: len(r)}
			}
			col[i] = r[j]
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		if std == 0 {
			std = 1
		}
		s.Mean[j], s.Scale[j] = mean, std
	}
	return s, nil
}

// Width returns the number of features the standardizer was fitted on.
func (s *Standardizer) Width() int { return len(s.Mean) }

// Validate checks that mean and scale agree and no scale is zero.
func (s *Standardizer) Validate() error {
	if len(s.Mean) != len(s.Scale) {
		return fmt.Errorf("standardizer: mean width %d, scale width %d", len(s.Mean), len(s.Scale))
	}
	for j, v := range s.Scale {
		if v == 0 {
			return fmt.Errorf("standardizer: zero scale for feature %d", j)
		}
	}
	return nil
}

// Transform returns a standardized copy of row.
func (s *Standardizer) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// Inverse maps a standardized row back to the original units.
func (s *Standardizer) Inverse(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = v*s.Scale[j] + s.Mean[j]
	}
	return out
}
