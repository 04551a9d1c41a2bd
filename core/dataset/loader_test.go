package dataset

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func manySamples(n int) []Sample {
	out := make([]Sample, n)
	for i := range out {
		rows := make([][]float64, i%4+1)
		for r := range rows {
			rows[r] = []float64{float64(i), float64(r), float64(60 * i)}
		}
		out[i] = Sample{Features: rows, Label: []float64{float64(i), -float64(i)}}
	}
	return out
}

func TestLoader_CoversEveryIndexOnce(t *testing.T) {
	st, err := NewStore(manySamples(10), nil)
	require.NoError(t, err)
	l, err := NewLoader(st, 4, true, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, l.Len())

	batches, err := l.Batches()
	require.NoError(t, err)
	require.Len(t, batches, 3)
	assert.Equal(t, 2, batches[2].Size())

	var seen []int
	for _, b := range batches {
		seen = append(seen, b.Indices...)
		for i, idx := range b.Indices {
			assert.Equal(t, st.Sample(idx).Label, b.Labels.RawRowView(i))
		}
	}
	sort.Ints(seen)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, seen)
}

func TestLoader_SeededShuffleIsReproducible(t *testing.T) {
	st, err := NewStore(manySamples(20), nil)
	require.NoError(t, err)
	a, _ := NewLoader(st, 5, true, 42)
	b, _ := NewLoader(st, 5, true, 42)
	assert.Equal(t, a.Order(), b.Order())

	plain, _ := NewLoader(st, 5, false, 42)
	order := plain.Order()
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestNewLoader_Errors(t *testing.T) {
	st, err := NewStore(manySamples(2), nil)
	require.NoError(t, err)
	_, err = NewLoader(st, 0, false, 0)
	assert.Error(t, err)
	_, err = NewLoader(nil, 1, false, 0)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestSplit(t *testing.T) {
	parts, err := Split(manySamples(10), []float64{0.7, 0.2, 0.1}, 1)
	require.NoError(t, err)
	require.Len(t, parts, 3)
	assert.Len(t, parts[0], 7)
	assert.Len(t, parts[1], 2)
	assert.Len(t, parts[2], 1)

	again, err := Split(manySamples(10), []float64{0.7, 0.2, 0.1}, 1)
	require.NoError(t, err)
	assert.Equal(t, parts, again)

	_, err = Split(manySamples(10), []float64{0.8, 0.8}, 1)
	assert.Error(t, err)
	_, err = Split(nil, []float64{1}, 1)
	assert.ErrorIs(t, err, ErrEmpty)
}
