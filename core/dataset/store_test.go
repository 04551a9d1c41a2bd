package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSamples() []Sample {
	return []Sample{
		{Features: [][]float64{{1, 2, 300}, {3, 4, 300}}, Label: []float64{0.5, 0.5}},
		{Features: [][]float64{{5, 6, 600}}, Label: []float64{1, -1}},
		{Features: [][]float64{{7, 8, 900}, {9, 10, 900}, {11, 12, 900}}, Label: []float64{2, 0}},
	}
}

func TestNewStore_FitsOverConcatenation(t *testing.T) {
	samples := testSamples()
	st, err := NewStore(samples, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Len())
	assert.Equal(t, 3, st.FeatureWidth())
	assert.Equal(t, 2, st.LabelWidth())

	var rows [][]float64
	for _, s := range samples {
		rows = append(rows, s.Features...)
	}
	want, err := FitStandardizer(rows)
	require.NoError(t, err)
	assert.Equal(t, want, st.Standardizer())
}

func TestStore_Get(t *testing.T) {
	st, err := NewStore(testSamples(), nil)
	require.NoError(t, err)

	it := st.Get(2)
	assert.Equal(t, 2, it.Index)
	assert.Equal(t, 3, it.Length)
	assert.Equal(t, []float64{2, 0}, it.Label)
	assert.Equal(t, 900.0, it.Horizon)
	r, c := it.Features.Dims()
	assert.Equal(t, 3, r)
	assert.Equal(t, 3, c)
	assert.Equal(t, st.Standardizer().Transform([]float64{9, 10, 900}), it.Features.RawRowView(1))

	// label is a copy
	it.Label[0] = 42
	assert.Equal(t, 2.0, st.Sample(2).Label[0])
}

func TestNewStore_ReusesSuppliedStandardizer(t *testing.T) {
	scaler := &Standardizer{Mean: []float64{0, 0, 0}, Scale: []float64{1, 1, 1}}
	st, err := NewStore(testSamples(), scaler)
	require.NoError(t, err)
	assert.Same(t, scaler, st.Standardizer())
	assert.Equal(t, []float64{5, 6, 600}, st.Get(1).Features.RawRowView(0))

	_, err = NewStore(testSamples(), &Standardizer{Mean: []float64{0}, Scale: []float64{1}})
	var se *ShapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "standardizer", se.Field)
}

func TestNewStore_ShapeErrors(t *testing.T) {
	samples := testSamples()
	samples[1].Features = [][]float64{{1, 2}}
	_, err := NewStore(samples, nil)
	var se *ShapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Index)
	assert.Equal(t, 3, se.Want)
	assert.Equal(t, 2, se.Got)

	samples = testSamples()
	samples[2].Label = []float64{1}
	_, err = NewStore(samples, nil)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "label", se.Field)

	_, err = NewStore(nil, nil)
	assert.ErrorIs(t, err, ErrEmpty)

	samples = testSamples()
	samples[1].Features = nil
	_, err = NewStore(samples, nil)
	assert.Error(t, err)
}

func TestRawData_ToSamples(t *testing.T) {
	raw := RawData{
		Samples: [][][]float64{{{1, 2}}, {{3, 4}, {5, 6}}},
		Labels:  [][]float64{{1, 1}, {2, 2}},
	}
	s, err := raw.ToSamples()
	require.NoError(t, err)
	assert.Len(t, s, 2)
	assert.Equal(t, raw, FromSamples(s))

	raw.Labels = raw.Labels[:1]
	_, err = raw.ToSamples()
	assert.Error(t, err)
}
