package nn

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Param is a trainable matrix together with its accumulated gradient.
type Param struct {
	Name  string
	Value *mat.Dense
	Grad  *mat.Dense
}

// NewParam allocates a zero parameter of the given shape.
func NewParam(name string, rows, cols int) *Param {
	return &Param{
		Name:  name,
		Value: mat.NewDense(rows, cols, nil),
		Grad:  mat.NewDense(rows, cols, nil),
	}
}

// Uniform fills the parameter with samples from U(-bound, bound).
func (p *Param) Uniform(rng *rand.Rand, bound float64) {
	raw := p.Value.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j := range row {
			row[j] = (2*rng.Float64() - 1) * bound
		}
	}
}

// ZeroGrad clears the accumulated gradient.
func (p *Param) ZeroGrad() { p.Grad.Zero() }

// Size returns the number of scalar entries.
func (p *Param) Size() int {
	r, c := p.Value.Dims()
	return r * c
}

// ZeroGrads clears every gradient in params.
func ZeroGrads(params []*Param) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// FiniteGrads reports whether every gradient entry is a finite number.
func FiniteGrads(params []*Param) bool {
	for _, p := range params {
		if !finite(p.Grad) {
			return false
		}
	}
	return true
}

// GradNorm returns the global L2 norm over every gradient.
func GradNorm(params []*Param) float64 {
	sum := 0.0
	for _, p := range params {
		n := mat.Norm(p.Grad, 2)
		sum += n * n
	}
	return math.Sqrt(sum)
}

func finite(m *mat.Dense) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for _, v := range m.RawRowView(i)[:c] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Finite reports whether every entry of m is a finite number.
func Finite(m *mat.Dense) bool { return finite(m) }
