package dataset

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Item is a single standardized sample ready for collation.
type Item struct {
	Index    int
	Features *mat.Dense // Length x F, standardized
	Label    []float64  // width L
	Length   int
	Horizon  float64 // raw, not standardized
}

// Store provides random access to standardized samples.
type Store struct {
	samples []Sample
	width   int
	labels  int
	scaler  *Standardizer
}

// NewStore validates the samples and fits a Standardizer over the
// concatenation of every feature row when scaler is nil. A supplied scaler is
// used as is, which is how dev and test stores reuse the training fit.
func NewStore(samples []Sample, scaler *Standardizer) (*Store, error) {
	if len(samples) == 0 {
		return nil, ErrEmpty
	}
	if samples[0].Len() == 0 {
		return nil, fmt.Errorf("dataset: sample 0 is empty")
	}
	width := len(samples[0].Features[0])
	labels := len(samples[0].Label)
	if width == 0 || labels == 0 {
		return nil, fmt.Errorf("dataset: sample 0 has %d features and %d labels", width, labels)
	}
	total := 0
	for i, s := range samples {
		if s.Len() == 0 {
			return nil, fmt.Errorf("dataset: sample %d is empty", i)
		}
		for _, row := range s.Features {
			if len(row) != width {
				return nil, &ShapeError{Index: i, Field: "feature", Want: width, Got: len(row)}
			}
		}
		if len(s.Label) != labels {
			return nil, &ShapeError{Index: i, Field: "label", Want: labels, Got: len(s.Label)}
		}
		total += s.Len()
	}
	if scaler == nil {
		rows := make([][]float64, 0, total)
		for _, s := range samples {
			rows = append(rows, s.Features...)
		}
		fitted, err := FitStandardizer(rows)
		if err != nil {
			return nil, err
		}
		scaler = fitted
	} else {
		if err := scaler.Validate(); err != nil {
			return nil, err
		}
		if scaler.Width() != width {
			return nil, &ShapeError{Index: -1, Field: "standardizer", Want: width, Got: scaler.Width()}
		}
	}
	return &Store{samples: samples, width: width, labels: labels, scaler: scaler}, nil
}

// Len returns the number of samples.
func (s *Store) Len() int { return len(s.samples) }

// FeatureWidth returns F.
func (s *Store) FeatureWidth() int { return s.width }

// LabelWidth returns L.
func (s *Store) LabelWidth() int { return s.labels }

// Standardizer returns the fitted or supplied standardizer.
func (s *Store) Standardizer() *Standardizer { return s.scaler }

// Sample returns the raw sample at i.
func (s *Store) Sample(i int) Sample { return s.samples[i] }

// Labels returns every raw label in store order.
func (s *Store) Labels() [][]float64 {
	out := make([][]float64, len(s.samples))
	for i, smp := range s.samples {
		out[i] = smp.Label
	}
	return out
}

// Get returns the standardized features, label, true length and horizon of
// sample i.
func (s *Store) Get(i int) Item {
	smp := s.samples[i]
	n := smp.Len()
	data := make([]float64, 0, n*s.width)
	for _, row := range smp.Features {
		data = append(data, s.scaler.Transform(row)...)
	}
	label := make([]float64, len(smp.Label))
	copy(label, smp.Label)
	return Item{
		Index:    i,
		Features: mat.NewDense(n, s.width, data),
		Label:    label,
		Length:   n,
		Horizon:  smp.Horizon(),
	}
}
