package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Linear is a dense layer y = x * W^T + b with W of shape Out x In.
type Linear struct {
	In, Out int
	W, B    *Param
}

// NewLinear creates a layer initialised from U(-1/sqrt(in), 1/sqrt(in)).
func NewLinear(name string, in, out int, rng *rand.Rand) *Linear {
	l := &Linear{
		In:  in,
		Out: out,
		W:   NewParam(name+".weight", out, in),
		B:   NewParam(name+".bias", 1, out),
	}
	bound := 1 / math.Sqrt(float64(in))
	l.W.Uniform(rng, bound)
	l.B.Uniform(rng, bound)
	return l
}

// Forward applies the layer to every row of x.
func (l *Linear) Forward(x *mat.Dense) *mat.Dense {
	return affine(x, l.W.Value, l.B.Value)
}

// Backward accumulates parameter gradients for the input x that produced the
// upstream gradient dy and returns the gradient with respect to x.
func (l *Linear) Backward(x, dy *mat.Dense) *mat.Dense {
	accumulateLinear(l.W.Grad, l.B.Grad, dy, x)
	var dx mat.Dense
	dx.Mul(dy, l.W.Value)
	return &dx
}

// Params returns the weight and bias.
func (l *Linear) Params() []*Param { return []*Param{l.W, l.B} }

// MLP is a stack of Linear layers with a ReLU after every layer but the last.
type MLP struct {
	Layers []*Linear
}

// MLPTrace records the inputs of every layer for the backward pass.
type MLPTrace struct {
	inputs []*mat.Dense
	pre    []*mat.Dense
}

// NewMLP builds a network over sizes [in, hidden..., out].
func NewMLP(name string, sizes []int, rng *rand.Rand) (*MLP, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("mlp: need at least input and output size, got %v", sizes)
	}
	m := &MLP{}
	for i := 0; i+1 < len(sizes); i++ {
		if sizes[i] <= 0 || sizes[i+1] <= 0 {
			return nil, fmt.Errorf("mlp: non-positive layer size in %v", sizes)
		}
		m.Layers = append(m.Layers, NewLinear(fmt.Sprintf("%s.%d", name, i), sizes[i], sizes[i+1], rng))
	}
	return m, nil
}

// Forward runs x through the stack.
func (m *MLP) Forward(x *mat.Dense) (*mat.Dense, *MLPTrace) {
	tr := &MLPTrace{}
	h := x
	for i, l := range m.Layers {
		tr.inputs = append(tr.inputs, h)
		y := l.Forward(h)
		if i == len(m.Layers)-1 {
			h = y
			break
		}
		tr.pre = append(tr.pre, y)
		var a mat.Dense
		a.Apply(func(_, _ int, v float64) float64 { return math.Max(v, 0) }, y)
		h = &a
	}
	return h, tr
}

// Backward propagates dy through the stack and returns the input gradient.
func (m *MLP) Backward(tr *MLPTrace, dy *mat.Dense) *mat.Dense {
	g := dy
	for i := len(m.Layers) - 1; i >= 0; i-- {
		if i < len(m.Layers)-1 {
			pre := tr.pre[i]
			var masked mat.Dense
			masked.Apply(func(r, c int, v float64) float64 {
				if pre.At(r, c) > 0 {
					return v
				}
				return 0
			}, g)
			g = &masked
		}
		g = m.Layers[i].Backward(tr.inputs[i], g)
	}
	return g
}

// Params returns every parameter of the stack in layer order.
func (m *MLP) Params() []*Param {
	var ps []*Param
	for _, l := range m.Layers {
		ps = append(ps, l.Params()...)
	}
	return ps
}
