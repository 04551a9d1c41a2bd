package nn

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// Encoder is a stack of recurrent layers, each with one or two directions.
// It consumes length-sorted sequences as a packed batch: at timestep t only
// the rows whose length exceeds t take part, so padding never reaches the
// recurrent state.
type Encoder struct {
	Kind          CellKind
	Hidden        int
	Bidirectional bool
	// Layers[l][d] is direction d (0 forward, 1 backward) of layer l.
	Layers [][]Cell
}

// NewEncoder builds a stacked encoder.
func NewEncoder(kind CellKind, in, hidden, layers int, bidirectional bool, rng *rand.Rand) (*Encoder, error) {
	if layers <= 0 {
		return nil, fmt.Errorf("encoder: layers must be positive, got %d", layers)
	}
	e := &Encoder{Kind: kind, Hidden: hidden, Bidirectional: bidirectional}
	dirs := e.directions()
	for l := 0; l < layers; l++ {
		size := in
		if l > 0 {
			size = hidden * dirs
		}
		var layer []Cell
		for d := 0; d < dirs; d++ {
			name := fmt.Sprintf("encoder.l%d", l)
			if d == 1 {
				name += "_reverse"
			}
			c, err := NewCell(kind, name, size, hidden, rng)
			if err != nil {
				return nil, err
			}
			layer = append(layer, c)
		}
		e.Layers = append(e.Layers, layer)
	}
	return e, nil
}

func (e *Encoder) directions() int {
	if e.Bidirectional {
		return 2
	}
	return 1
}

// OutputWidth is the width of the final hidden state returned by Forward.
func (e *Encoder) OutputWidth() int { return e.Hidden * e.directions() }

// Params returns every parameter by layer and direction.
func (e *Encoder) Params() []*Param {
	var ps []*Param
	for _, layer := range e.Layers {
		for _, c := range layer {
			ps = append(ps, c.Params()...)
		}
	}
	return ps
}

// EncoderTrace holds what Backward needs from a Forward call.
type EncoderTrace struct {
	batch  int
	counts []int
	layers [][]*dirTrace
}

type dirTrace struct {
	reverse bool
	outputs []*mat.Dense
	caches  []any
	final   *mat.Dense
}

// ActiveCounts returns, for every timestep t, the number of sequences whose
// length exceeds t. lengths must be sorted in descending order.
func ActiveCounts(lengths []int) ([]int, error) {
	if len(lengths) == 0 {
		return nil, fmt.Errorf("encoder: empty batch")
	}
	for i, l := range lengths {
		if l <= 0 {
			return nil, fmt.Errorf("encoder: row %d has length %d", i, l)
		}
		if i > 0 && l > lengths[i-1] {
			return nil, fmt.Errorf("encoder: lengths not sorted descending at row %d", i)
		}
	}
	counts := make([]int, lengths[0])
	k := len(lengths)
	for t := range counts {
		for k > 0 && lengths[k-1] <= t {
			k--
		}
		counts[t] = k
	}
	return counts, nil
}

// Forward runs the encoder over x, one padded matrix per row sorted by
// descending length. It returns the final hidden state of the last layer,
// B x OutputWidth, with the forward direction first.
func (e *Encoder) Forward(x []*mat.Dense, lengths []int) (*mat.Dense, *EncoderTrace, error) {
	if len(x) != len(lengths) {
		return nil, nil, fmt.Errorf("encoder: %d sequences, %d lengths", len(x), len(lengths))
	}
	counts, err := ActiveCounts(lengths)
	if err != nil {
		return nil, nil, err
	}
	in := e.Layers[0][0].InputSize()
	for i, m := range x {
		r, c := m.Dims()
		if c != in || r < lengths[i] {
			return nil, nil, fmt.Errorf("encoder: row %d is %dx%d, need %dx%d", i, r, c, lengths[i], in)
		}
	}
	inputs := make([]*mat.Dense, len(counts))
	for t, k := range counts {
		step := mat.NewDense(k, in, nil)
		for i := 0; i < k; i++ {
			step.SetRow(i, x[i].RawRowView(t))
		}
		inputs[t] = step
	}

	tr := &EncoderTrace{batch: len(x), counts: counts}
	var finals []*mat.Dense
	for _, layer := range e.Layers {
		dts := make([]*dirTrace, len(layer))
		for d, c := range layer {
			dts[d] = scan(c, inputs, counts, len(x), d == 1)
		}
		tr.layers = append(tr.layers, dts)
		next := make([]*mat.Dense, len(counts))
		for t := range counts {
			if len(dts) == 1 {
				next[t] = dts[0].outputs[t]
			} else {
				next[t] = HStack(dts[0].outputs[t], dts[1].outputs[t])
			}
		}
		inputs = next
		finals = finals[:0]
		for _, dt := range dts {
			finals = append(finals, dt.final)
		}
	}
	if len(finals) == 1 {
		return finals[0], tr, nil
	}
	return HStack(finals...), tr, nil
}

func scan(c Cell, inputs []*mat.Dense, counts []int, batch int, reverse bool) *dirTrace {
	T := len(counts)
	H := c.HiddenSize()
	h := mat.NewDense(batch, H, nil)
	cs := mat.NewDense(batch, H, nil)
	dt := &dirTrace{reverse: reverse, outputs: make([]*mat.Dense, T), caches: make([]any, T)}
	for s := 0; s < T; s++ {
		t := s
		if reverse {
			t = T - 1 - s
		}
		k := counts[t]
		hv, cv := rows(h, k), rows(cs, k)
		hn, cn, cache := c.Step(inputs[t], hv, cv)
		hv.Copy(hn)
		if cn != nil {
			cv.Copy(cn)
		}
		dt.outputs[t] = hn
		dt.caches[t] = cache
	}
	dt.final = h
	return dt
}

// Backward propagates the gradient of the final hidden state and returns the
// gradient with respect to the packed inputs of the first layer, one k_t x F
// matrix per timestep in sorted row order.
func (e *Encoder) Backward(tr *EncoderTrace, dFinal *mat.Dense) []*mat.Dense {
	H := e.Hidden
	var dOuts []*mat.Dense
	for l := len(e.Layers) - 1; l >= 0; l-- {
		layer := e.Layers[l]
		var dIn []*mat.Dense
		for d, c := range layer {
			var df *mat.Dense
			if l == len(e.Layers)-1 {
				df = cols(dFinal, d*H, (d+1)*H)
			}
			var dd []*mat.Dense
			if dOuts != nil {
				dd = make([]*mat.Dense, len(dOuts))
				for t, g := range dOuts {
					dd[t] = cols(g, d*H, (d+1)*H)
				}
			}
			dx := tr.layers[l][d].backward(c, tr.counts, tr.batch, df, dd)
			if dIn == nil {
				dIn = dx
				continue
			}
			for t := range dIn {
				dIn[t].Add(dIn[t], dx[t])
			}
		}
		dOuts = dIn
	}
	return dOuts
}

func (dt *dirTrace) backward(c Cell, counts []int, batch int, dFinal *mat.Dense, dOuts []*mat.Dense) []*mat.Dense {
	T := len(counts)
	H := c.HiddenSize()
	dh := mat.NewDense(batch, H, nil)
	if dFinal != nil {
		dh.Copy(dFinal)
	}
	dc := mat.NewDense(batch, H, nil)
	dx := make([]*mat.Dense, T)
	for s := 0; s < T; s++ {
		t := T - 1 - s
		if dt.reverse {
			t = s
		}
		k := counts[t]
		dhv, dcv := rows(dh, k), rows(dc, k)
		if dOuts != nil {
			dhv.Add(dhv, dOuts[t])
		}
		g, dhPrev, dcPrev := c.Backstep(dt.caches[t], dhv, dcv)
		dhv.Copy(dhPrev)
		if dcPrev != nil {
			dcv.Copy(dcPrev)
		}
		dx[t] = g
	}
	return dx
}
