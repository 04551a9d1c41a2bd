// Package evaluation runs an inference pass and reports mean loss, mean
// displacement error and the displacement error binned by forecast horizon.
package evaluation

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/vrf/core/dataset"
	"github.com/kilianp07/vrf/core/loss"
)

// Predictor is the inference side of a forecast model.
type Predictor interface {
	Predict(b *dataset.Batch) (*mat.Dense, error)
}

// Criterion scores a prediction against its target.
type Criterion interface {
	Loss(pred, target mat.Matrix) (float64, error)
}

// DefaultEdges returns 0 to 1800 seconds in steps of 300.
func DefaultEdges() []float64 {
	edges := make([]float64, 7)
	floats.Span(edges, 0, 1800)
	return edges
}

// Bin is the horizon interval [Lo, Hi). The last bin of a report also holds
// its upper edge. MeanError is nil when no instance fell in the bin.
type Bin struct {
	Lo        float64  `json:"lo" yaml:"lo"`
	Hi        float64  `json:"hi" yaml:"hi"`
	Count     int      `json:"count" yaml:"count"`
	MeanError *float64 `json:"mean_error" yaml:"mean_error"`
}

// Defined reports whether the bin holds at least one instance.
func (b Bin) Defined() bool { return b.MeanError != nil }

// Value returns the mean error, or NaN for an empty bin.
func (b Bin) Value() float64 {
	if b.MeanError == nil {
		return math.NaN()
	}
	return *b.MeanError
}

// Instance is the displacement error of one evaluated sample.
type Instance struct {
	Index   int     `json:"index" yaml:"index"`
	Horizon float64 `json:"horizon" yaml:"horizon"`
	Error   float64 `json:"error" yaml:"error"`
}

// Report is the outcome of one evaluation pass.
type Report struct {
	Loss      float64    `json:"loss" yaml:"loss"`
	MeanError float64    `json:"mean_error" yaml:"mean_error"`
	Bins      []Bin      `json:"bins" yaml:"bins"`
	Instances []Instance `json:"instances,omitempty" yaml:"instances,omitempty"`
}

// Summary renders "Loss: x | Accuracy: y | b1, b2, ... m". Undefined bins
// print as nan.
func (r *Report) Summary() string {
	parts := make([]string, len(r.Bins))
	for i, b := range r.Bins {
		if b.Defined() {
			parts[i] = fmt.Sprintf("%.5f", *b.MeanError)
		} else {
			parts[i] = "nan"
		}
	}
	return fmt.Sprintf("Loss: %.5f | Accuracy: %.5f | %s m", r.Loss, r.MeanError, strings.Join(parts, ", "))
}

// Reporter evaluates models over a loader.
type Reporter struct {
	edges []float64
	crit  Criterion
}

// NewReporter validates edges, which must be strictly increasing with at
// least two entries. Nil edges select DefaultEdges and a nil criterion the
// default RMSE.
func NewReporter(edges []float64, crit Criterion) (*Reporter, error) {
	if edges == nil {
		edges = DefaultEdges()
	}
	if len(edges) < 2 {
		return nil, fmt.Errorf("evaluation: need at least two bin edges, got %d", len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if !(edges[i] > edges[i-1]) {
			return nil, fmt.Errorf("evaluation: bin edges must increase, %v then %v", edges[i-1], edges[i])
		}
	}
	if crit == nil {
		crit = loss.NewRMSE(0)
	}
	return &Reporter{edges: append([]float64(nil), edges...), crit: crit}, nil
}

// Edges returns a copy of the bin edges.
func (r *Reporter) Edges() []float64 { return append([]float64(nil), r.edges...) }

// Evaluate runs m over one pass of l. Horizons travel with every batch row,
// so the result does not depend on loader order.
func (r *Reporter) Evaluate(m Predictor, l *dataset.Loader) (*Report, error) {
	batches, err := l.Batches()
	if err != nil {
		return nil, err
	}
	rep := &Report{}
	lossSum := 0.0
	for _, b := range batches {
		pred, err := m.Predict(b)
		if err != nil {
			return nil, err
		}
		v, err := r.crit.Loss(pred, b.Labels)
		if err != nil {
			return nil, err
		}
		lossSum += v
		for i := 0; i < b.Size(); i++ {
			var d mat.VecDense
			d.SubVec(pred.RowView(i), b.Labels.RowView(i))
			rep.Instances = append(rep.Instances, Instance{
				Index:   b.Indices[i],
				Horizon: b.Horizons[i],
				Error:   mat.Norm(&d, 2),
			})
		}
	}
	if len(batches) == 0 {
		return nil, dataset.ErrEmpty
	}
	rep.Loss = lossSum / float64(len(batches))
	errs := make([]float64, len(rep.Instances))
	horizons := make([]float64, len(rep.Instances))
	for i, in := range rep.Instances {
		errs[i], horizons[i] = in.Error, in.Horizon
	}
	rep.MeanError = floats.Sum(errs) / float64(len(errs))
	rep.Bins = r.Bin(horizons, errs)
	return rep, nil
}

// Bin groups errs by horizon. Horizons outside every bin are left out of
// the table but still count toward the overall mean error.
func (r *Reporter) Bin(horizons, errs []float64) []Bin {
	bins := make([]Bin, len(r.edges)-1)
	sums := make([]float64, len(bins))
	for i := range bins {
		bins[i].Lo, bins[i].Hi = r.edges[i], r.edges[i+1]
	}
	for i, h := range horizons {
		k := r.index(h)
		if k < 0 {
			continue
		}
		bins[k].Count++
		sums[k] += errs[i]
	}
	for i := range bins {
		if bins[i].Count > 0 {
			mean := sums[i] / float64(bins[i].Count)
			bins[i].MeanError = &mean
		}
	}
	return bins
}

func (r *Reporter) index(h float64) int {
	last := len(r.edges) - 1
	if h < r.edges[0] || h > r.edges[last] || math.IsNaN(h) {
		return -1
	}
	if h == r.edges[last] {
		return last - 1
	}
	for i := 0; i < last; i++ {
		if h < r.edges[i+1] {
			return i
		}
	}
	return -1
}
