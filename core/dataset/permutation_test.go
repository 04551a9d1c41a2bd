package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestSortByLength_StableDescending(t *testing.T) {
	p := SortByLength([]int{2, 5, 2, 7, 5})
	assert.Equal(t, Permutation{3, 1, 4, 0, 2}, p)
	require.NoError(t, p.Validate())
	assert.Equal(t, []int{7, 5, 5, 2, 2}, p.Ints([]int{2, 5, 2, 7, 5}))
}

func TestPermutation_InverseRoundTrip(t *testing.T) {
	p := SortByLength([]int{1, 4, 3, 2})
	m := mat.NewDense(4, 2, []float64{
		1, 1,
		4, 4,
		3, 3,
		2, 2,
	})
	sorted := p.Rows(m)
	assert.Equal(t, []float64{4, 4}, sorted.RawRowView(0))
	back := p.Inverse().Rows(sorted)
	assert.True(t, mat.Equal(m, back))

	q := p.Inverse()
	for i := range p {
		assert.Equal(t, i, q[p[i]])
	}
}

func TestPermutation_Validate(t *testing.T) {
	assert.Error(t, Permutation{0, 0}.Validate())
	assert.Error(t, Permutation{1, 2}.Validate())
	assert.NoError(t, Identity(3).Validate())
}
