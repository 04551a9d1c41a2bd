package evaluation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/vrf/core/dataset"
)

// offsetModel predicts every label shifted by (3, 4), an error of 5.
type offsetModel struct{}

func (offsetModel) Predict(b *dataset.Batch) (*mat.Dense, error) {
	var out mat.Dense
	out.Apply(func(_, j int, v float64) float64 { return v + float64(3+j) }, b.Labels)
	return &out, nil
}

func TestBin_HalfOpenAndUndefined(t *testing.T) {
	r, err := NewReporter([]float64{0, 300, 600, 900, 1200}, nil)
	require.NoError(t, err)
	bins := r.Bin([]float64{100, 350, 700}, []float64{1, 2, 3})
	require.Len(t, bins, 4)
	for i, want := range []float64{1, 2, 3} {
		require.True(t, bins[i].Defined())
		assert.Equal(t, 1, bins[i].Count)
		assert.Equal(t, want, *bins[i].MeanError)
	}
	assert.False(t, bins[3].Defined())
	assert.True(t, math.IsNaN(bins[3].Value()))
}

func TestBin_Edges(t *testing.T) {
	r, err := NewReporter([]float64{0, 300, 600}, nil)
	require.NoError(t, err)
	bins := r.Bin([]float64{0, 300, 600, 601, -1}, []float64{1, 2, 4, 8, 16})
	assert.Equal(t, 1, bins[0].Count)
	assert.Equal(t, 2, bins[1].Count, "300 opens the second bin and 600 closes the last")
	assert.Equal(t, 3.0, *bins[1].MeanError)
}

func TestBin_ZeroErrorIsDefined(t *testing.T) {
	r, err := NewReporter(nil, nil)
	require.NoError(t, err)
	bins := r.Bin([]float64{10}, []float64{0})
	assert.True(t, bins[0].Defined())
	assert.Equal(t, 0.0, *bins[0].MeanError)
	assert.False(t, bins[1].Defined())
}

func TestNewReporter_Validation(t *testing.T) {
	_, err := NewReporter([]float64{1}, nil)
	assert.Error(t, err)
	_, err = NewReporter([]float64{0, 300, 300}, nil)
	assert.Error(t, err)
	r, err := NewReporter(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 300, 600, 900, 1200, 1500, 1800}, r.Edges())
}

func TestEvaluate_MeanErrorAndSummary(t *testing.T) {
	samples := []dataset.Sample{
		{Features: [][]float64{{1, 100}}, Label: []float64{0, 0}},
		{Features: [][]float64{{1, 0}, {2, 350}}, Label: []float64{1, 1}},
		{Features: [][]float64{{3, 700}}, Label: []float64{2, 2}},
	}
	store, err := dataset.NewStore(samples, nil)
	require.NoError(t, err)
	loader, err := dataset.NewLoader(store, 2, true, 5)
	require.NoError(t, err)

	r, err := NewReporter([]float64{0, 300, 600, 900, 1200}, nil)
	require.NoError(t, err)
	rep, err := r.Evaluate(offsetModel{}, loader)
	require.NoError(t, err)

	assert.InDelta(t, 5, rep.MeanError, 1e-12)
	assert.InDelta(t, math.Sqrt(25.0/2+1e-3), rep.Loss, 1e-12)
	require.Len(t, rep.Instances, 3)
	for _, in := range rep.Instances {
		assert.Equal(t, samples[in.Index].Horizon(), in.Horizon)
	}
	assert.Equal(t, "Loss: 3.53568 | Accuracy: 5.00000 | 5.00000, 5.00000, 5.00000, nan m", rep.Summary())
}
