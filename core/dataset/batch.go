package dataset

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Batch is a zero right-padded stack of sequences in input order.
type Batch struct {
	// Features holds one MaxLen x F matrix per row.
	Features []*mat.Dense
	// Lengths holds the true length of every row.
	Lengths []int
	// Labels is B x L.
	Labels *mat.Dense
	// Indices are the store indices of every row.
	Indices []int
	// Horizons are the raw horizons of every row.
	Horizons []float64
	MaxLen   int
	Width    int
}

// Size returns the number of rows.
func (b *Batch) Size() int { return len(b.Lengths) }

// Collate pads every item to the batch's maximum true length with zero rows
// and stacks labels and lengths in the order of items. The batch is never
// sorted here.
func Collate(items []Item) (*Batch, error) {
	if len(items) == 0 {
		return nil, ErrEmpty
	}
	_, width := items[0].Features.Dims()
	labels := len(items[0].Label)
	maxLen := 0
	for i, it := range items {
		r, c := it.Features.Dims()
		if c != width {
			return nil, &ShapeError{Index: it.Index, Field: "feature", Want: width, Got: c}
		}
		if len(it.Label) != labels {
			return nil, &ShapeError{Index: it.Index, Field: "label", Want: labels, Got: len(it.Label)}
		}
		if it.Length != r || r == 0 {
			return nil, fmt.Errorf("dataset: item %d length %d does not match %d rows", i, it.Length, r)
		}
		maxLen = max(maxLen, r)
	}
	b := &Batch{
		Features: make([]*mat.Dense, len(items)),
		Lengths:  make([]int, len(items)),
		Labels:   mat.NewDense(len(items), labels, nil),
		Indices:  make([]int, len(items)),
		Horizons: make([]float64, len(items)),
		MaxLen:   maxLen,
		Width:    width,
	}
	for i, it := range items {
		padded := mat.NewDense(maxLen, width, nil)
		padded.Slice(0, it.Length, 0, width).(*mat.Dense).Copy(it.Features)
		b.Features[i] = padded
		b.Lengths[i] = it.Length
		b.Labels.SetRow(i, it.Label)
		b.Indices[i] = it.Index
		b.Horizons[i] = it.Horizon
	}
	return b, nil
}
