package dataset

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Permutation maps a position in a reordered batch to the row of the original
// batch: reordered[i] = original[p[i]].
type Permutation []int

// SortByLength returns the stable permutation that orders lengths descending.
// Equal lengths keep their original relative order.
func SortByLength(lengths []int) Permutation {
	p := make(Permutation, len(lengths))
	for i := range p {
		p[i] = i
	}
	sort.SliceStable(p, func(a, b int) bool { return lengths[p[a]] > lengths[p[b]] })
	return p
}

// Identity returns the identity permutation of size n.
func Identity(n int) Permutation {
	p := make(Permutation, n)
	for i := range p {
		p[i] = i
	}
	return p
}

// Validate checks that p is a bijection over [0, len(p)).
func (p Permutation) Validate() error {
	seen := make([]bool, len(p))
	for i, v := range p {
		if v < 0 || v >= len(p) || seen[v] {
			return fmt.Errorf("permutation: invalid entry %d at %d", v, i)
		}
		seen[v] = true
	}
	return nil
}

// Inverse returns q such that applying p then q restores the original order.
func (p Permutation) Inverse() Permutation {
	q := make(Permutation, len(p))
	for i, v := range p {
		q[v] = i
	}
	return q
}

// Ints reorders a slice of ints.
func (p Permutation) Ints(v []int) []int {
	out := make([]int, len(p))
	for i, src := range p {
		out[i] = v[src]
	}
	return out
}

// Rows returns a new matrix whose row i is row p[i] of m.
func (p Permutation) Rows(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	if r != len(p) {
		panic(fmt.Sprintf("permutation: %d rows, permutation of %d", r, len(p)))
	}
	out := mat.NewDense(r, c, nil)
	for i, src := range p {
		out.SetRow(i, m.RawRowView(src))
	}
	return out
}

// Matrices reorders a slice of matrices without copying them.
func (p Permutation) Matrices(ms []*mat.Dense) []*mat.Dense {
	out := make([]*mat.Dense, len(p))
	for i, src := range p {
		out[i] = ms[src]
	}
	return out
}
