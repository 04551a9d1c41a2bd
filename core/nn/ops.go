package nn

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// affine returns x * w^T + b, with b a 1 x n row broadcast over every row.
func affine(x mat.Matrix, w, b *mat.Dense) *mat.Dense {
	var y mat.Dense
	y.Mul(x, w.T())
	addRow(&y, b)
	return &y
}

func addRow(m *mat.Dense, row *mat.Dense) {
	r, _ := m.Dims()
	b := row.RawRowView(0)
	for i := 0; i < r; i++ {
		dst := m.RawRowView(i)
		for j := range dst {
			dst[j] += b[j]
		}
	}
}

// accumulateLinear adds dy^T * x to dw and the column sums of dy to db.
func accumulateLinear(dw, db *mat.Dense, dy, x mat.Matrix) {
	var g mat.Dense
	g.Mul(dy.T(), x)
	dw.Add(dw, &g)
	r, c := dy.Dims()
	dst := db.RawRowView(0)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			dst[j] += dy.At(i, j)
		}
	}
}

// cols returns a view of columns [from, to) of m.
func cols(m *mat.Dense, from, to int) *mat.Dense {
	r, _ := m.Dims()
	return m.Slice(0, r, from, to).(*mat.Dense)
}

// rows returns a view of the first k rows of m.
func rows(m *mat.Dense, k int) *mat.Dense {
	_, c := m.Dims()
	return m.Slice(0, k, 0, c).(*mat.Dense)
}

// HStack concatenates matrices with the same row count side by side.
func HStack(ms ...*mat.Dense) *mat.Dense {
	r, _ := ms[0].Dims()
	width := 0
	for _, m := range ms {
		_, c := m.Dims()
		width += c
	}
	out := mat.NewDense(r, width, nil)
	off := 0
	for _, m := range ms {
		_, c := m.Dims()
		cols(out, off, off+c).Copy(m)
		off += c
	}
	return out
}
