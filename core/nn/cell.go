package nn

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// CellKind names a recurrent cell implementation.
type CellKind string

const (
	LSTM CellKind = "lstm"
	GRU  CellKind = "gru"
)

// Cell advances a batch of recurrent states by one timestep. h and c hold one
// row per active sequence; c is ignored by cells without a cell state.
type Cell interface {
	Step(x, h, c *mat.Dense) (hNext, cNext *mat.Dense, cache any)
	Backstep(cache any, dh, dc *mat.Dense) (dx, dhPrev, dcPrev *mat.Dense)
	InputSize() int
	HiddenSize() int
	Params() []*Param
}

// NewCell creates a cell of the given kind initialised from
// U(-1/sqrt(hidden), 1/sqrt(hidden)).
func NewCell(kind CellKind, name string, in, hidden int, rng *rand.Rand) (Cell, error) {
	if in <= 0 || hidden <= 0 {
		return nil, fmt.Errorf("cell: input %d and hidden %d must be positive", in, hidden)
	}
	var gates int
	switch kind {
	case LSTM:
		gates = 4
	case GRU:
		gates = 3
	default:
		return nil, fmt.Errorf("cell: unknown kind %q", kind)
	}
	w := gateWeights{
		in:     in,
		hidden: hidden,
		Wih:    NewParam(name+".weight_ih", gates*hidden, in),
		Whh:    NewParam(name+".weight_hh", gates*hidden, hidden),
		Bih:    NewParam(name+".bias_ih", 1, gates*hidden),
		Bhh:    NewParam(name+".bias_hh", 1, gates*hidden),
	}
	bound := 1 / math.Sqrt(float64(hidden))
	for _, p := range w.Params() {
		p.Uniform(rng, bound)
	}
	if kind == LSTM {
		return &LSTMCell{w}, nil
	}
	return &GRUCell{w}, nil
}

// gateWeights is the PyTorch parameter layout shared by LSTM and GRU.
type gateWeights struct {
	in, hidden int
	Wih, Whh   *Param
	Bih, Bhh   *Param
}

func (w *gateWeights) InputSize() int   { return w.in }
func (w *gateWeights) HiddenSize() int  { return w.hidden }
func (w *gateWeights) Params() []*Param { return []*Param{w.Wih, w.Whh, w.Bih, w.Bhh} }

// LSTMCell uses gate order input, forget, cell, output.
type LSTMCell struct{ gateWeights }

type lstmCache struct {
	x, h, c *mat.Dense
	act     *mat.Dense // i, f, g, o after activation
	tc      *mat.Dense // tanh(c_next)
}

func (l *LSTMCell) Step(x, h, c *mat.Dense) (*mat.Dense, *mat.Dense, any) {
	k, _ := x.Dims()
	H := l.hidden
	gates := affine(x, l.Wih.Value, l.Bih.Value)
	var gh mat.Dense
	gh.Mul(h, l.Whh.Value.T())
	gates.Add(gates, &gh)
	addRow(gates, l.Bhh.Value)

	hNext := mat.NewDense(k, H, nil)
	cNext := mat.NewDense(k, H, nil)
	tc := mat.NewDense(k, H, nil)
	for r := 0; r < k; r++ {
		g := gates.RawRowView(r)
		cp := c.RawRowView(r)
		hn, cn, t := hNext.RawRowView(r), cNext.RawRowView(r), tc.RawRowView(r)
		for j := 0; j < H; j++ {
			in := sigmoid(g[j])
			f := sigmoid(g[H+j])
			cand := math.Tanh(g[2*H+j])
			o := sigmoid(g[3*H+j])
			g[j], g[H+j], g[2*H+j], g[3*H+j] = in, f, cand, o
			cn[j] = f*cp[j] + in*cand
			t[j] = math.Tanh(cn[j])
			hn[j] = o * t[j]
		}
	}
	cache := &lstmCache{
		x:   x,
		h:   mat.DenseCopyOf(h),
		c:   mat.DenseCopyOf(c),
		act: gates,
		tc:  tc,
	}
	return hNext, cNext, cache
}

func (l *LSTMCell) Backstep(cache any, dh, dc *mat.Dense) (*mat.Dense, *mat.Dense, *mat.Dense) {
	cc := cache.(*lstmCache)
	k, _ := cc.x.Dims()
	H := l.hidden
	dGates := mat.NewDense(k, 4*H, nil)
	dcPrev := mat.NewDense(k, H, nil)
	for r := 0; r < k; r++ {
		a := cc.act.RawRowView(r)
		t := cc.tc.RawRowView(r)
		cp := cc.c.RawRowView(r)
		dhr, dcr := dh.RawRowView(r), dc.RawRowView(r)
		dg, dcp := dGates.RawRowView(r), dcPrev.RawRowView(r)
		for j := 0; j < H; j++ {
			in, f, cand, o := a[j], a[H+j], a[2*H+j], a[3*H+j]
			dct := dcr[j] + dhr[j]*o*(1-t[j]*t[j])
			dg[j] = dct * cand * in * (1 - in)
			dg[H+j] = dct * cp[j] * f * (1 - f)
			dg[2*H+j] = dct * in * (1 - cand*cand)
			dg[3*H+j] = dhr[j] * t[j] * o * (1 - o)
			dcp[j] = dct * f
		}
	}
	accumulateLinear(l.Wih.Grad, l.Bih.Grad, dGates, cc.x)
	accumulateLinear(l.Whh.Grad, l.Bhh.Grad, dGates, cc.h)
	var dx, dhPrev mat.Dense
	dx.Mul(dGates, l.Wih.Value)
	dhPrev.Mul(dGates, l.Whh.Value)
	return &dx, &dhPrev, dcPrev
}

// GRUCell uses gate order reset, update, new.
type GRUCell struct{ gateWeights }

type gruCache struct {
	x, h *mat.Dense
	act  *mat.Dense // r, z, n after activation
	ghn  *mat.Dense // W_hn h + b_hn
}

func (g *GRUCell) Step(x, h, _ *mat.Dense) (*mat.Dense, *mat.Dense, any) {
	k, _ := x.Dims()
	H := g.hidden
	gi := affine(x, g.Wih.Value, g.Bih.Value)
	gh := affine(h, g.Whh.Value, g.Bhh.Value)

	act := mat.NewDense(k, 3*H, nil)
	ghn := mat.NewDense(k, H, nil)
	hNext := mat.NewDense(k, H, nil)
	for r := 0; r < k; r++ {
		xi, hh := gi.RawRowView(r), gh.RawRowView(r)
		hp := h.RawRowView(r)
		a, gn, hn := act.RawRowView(r), ghn.RawRowView(r), hNext.RawRowView(r)
		for j := 0; j < H; j++ {
			rs := sigmoid(xi[j] + hh[j])
			z := sigmoid(xi[H+j] + hh[H+j])
			gn[j] = hh[2*H+j]
			n := math.Tanh(xi[2*H+j] + rs*gn[j])
			a[j], a[H+j], a[2*H+j] = rs, z, n
			hn[j] = (1-z)*n + z*hp[j]
		}
	}
	return hNext, nil, &gruCache{x: x, h: mat.DenseCopyOf(h), act: act, ghn: ghn}
}

func (g *GRUCell) Backstep(cache any, dh, _ *mat.Dense) (*mat.Dense, *mat.Dense, *mat.Dense) {
	cc := cache.(*gruCache)
	k, _ := cc.x.Dims()
	H := g.hidden
	dGi := mat.NewDense(k, 3*H, nil)
	dGh := mat.NewDense(k, 3*H, nil)
	direct := mat.NewDense(k, H, nil)
	for r := 0; r < k; r++ {
		a, gn := cc.act.RawRowView(r), cc.ghn.RawRowView(r)
		hp, dhr := cc.h.RawRowView(r), dh.RawRowView(r)
		di, dhh, dd := dGi.RawRowView(r), dGh.RawRowView(r), direct.RawRowView(r)
		for j := 0; j < H; j++ {
			rs, z, n := a[j], a[H+j], a[2*H+j]
			dn := dhr[j] * (1 - z) * (1 - n*n)
			dz := dhr[j] * (hp[j] - n) * z * (1 - z)
			dr := dn * gn[j] * rs * (1 - rs)
			di[j], di[H+j], di[2*H+j] = dr, dz, dn
			dhh[j], dhh[H+j], dhh[2*H+j] = dr, dz, dn*rs
			dd[j] = dhr[j] * z
		}
	}
	accumulateLinear(g.Wih.Grad, g.Bih.Grad, dGi, cc.x)
	accumulateLinear(g.Whh.Grad, g.Bhh.Grad, dGh, cc.h)
	var dx, dhPrev mat.Dense
	dx.Mul(dGi, g.Wih.Value)
	dhPrev.Mul(dGh, g.Whh.Value)
	dhPrev.Add(&dhPrev, direct)
	return &dx, &dhPrev, nil
}
