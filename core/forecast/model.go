package forecast

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/vrf/core/dataset"
	"github.com/kilianp07/vrf/core/logger"
	"github.com/kilianp07/vrf/core/nn"
)

// Backprop accumulates parameter gradients for the upstream gradient of the
// prediction returned by the same Forward call.
type Backprop func(dOut *mat.Dense)

// Model maps a padded batch to a B x OutputSize prediction in batch order.
type Model interface {
	Forward(b *dataset.Batch) (*mat.Dense, Backprop, error)
	Predict(b *dataset.Batch) (*mat.Dense, error)
	Params() []*nn.Param
	Config() Config
	// Scale returns the output de-standardization, or nil for unscaled
	// models.
	Scale() *ScaleSpec
	State() ParamState
	LoadState(ParamState) error
}

type network struct {
	cfg  Config
	enc  *nn.Encoder
	head *nn.MLP
}

func newNetwork(cfg Config) (*network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d))
	enc, err := nn.NewEncoder(cfg.Cell, cfg.InputSize, cfg.HiddenSize, cfg.NumLayers, cfg.Bidirectional, rng)
	if err != nil {
		return nil, err
	}
	head, err := nn.NewMLP("fc", cfg.decoderSizes(enc.OutputWidth()), rng)
	if err != nil {
		return nil, err
	}
	return &network{cfg: cfg, enc: enc, head: head}, nil
}

// forward returns the raw decoder output in batch order.
func (n *network) forward(b *dataset.Batch) (*mat.Dense, Backprop, error) {
	if b == nil || b.Size() == 0 {
		return nil, nil, dataset.ErrEmpty
	}
	if b.Width != n.cfg.InputSize {
		return nil, nil, fmt.Errorf("forecast: batch width %d, model input %d", b.Width, n.cfg.InputSize)
	}
	perm := dataset.SortByLength(b.Lengths)
	hSorted, etr, err := n.enc.Forward(perm.Matrices(b.Features), perm.Ints(b.Lengths))
	if err != nil {
		return nil, nil, err
	}
	h := perm.Inverse().Rows(hSorted)
	raw, mtr := n.head.Forward(h)
	back := func(dRaw *mat.Dense) {
		dh := n.head.Backward(mtr, dRaw)
		n.enc.Backward(etr, perm.Rows(dh))
	}
	return raw, back, nil
}

func (n *network) params() []*nn.Param {
	return append(n.enc.Params(), n.head.Params()...)
}

// Scaled is a model whose predictions are in physical units.
type Scaled struct {
	net   *network
	scale ScaleSpec
}

// NewScaled builds a model that de-standardizes its output with scale.
func NewScaled(cfg Config, scale ScaleSpec) (*Scaled, error) {
	if err := scale.Validate(); err != nil {
		return nil, err
	}
	if _, _, err := scale.tile(cfg.OutputSize); err != nil {
		return nil, err
	}
	net, err := newNetwork(cfg)
	if err != nil {
		return nil, err
	}
	s := ScaleSpec{Mean: append([]float64(nil), scale.Mean...), Scale: append([]float64(nil), scale.Scale...)}
	return &Scaled{net: net, scale: s}, nil
}

// Forward runs the network and applies output = raw*scale + mean.
func (m *Scaled) Forward(b *dataset.Batch) (*mat.Dense, Backprop, error) {
	raw, back, err := m.net.forward(b)
	if err != nil {
		return nil, nil, err
	}
	mean, scale, err := m.scale.tile(m.net.cfg.OutputSize)
	if err != nil {
		return nil, nil, err
	}
	out := mat.NewDense(raw.RawMatrix().Rows, len(mean), nil)
	out.Apply(func(_, j int, v float64) float64 { return v*scale[j] + mean[j] }, raw)
	return out, func(dOut *mat.Dense) {
		var dRaw mat.Dense
		dRaw.Apply(func(_, j int, v float64) float64 { return v * scale[j] }, dOut)
		back(&dRaw)
	}, nil
}

// Predict runs Forward and drops the backward closure.
func (m *Scaled) Predict(b *dataset.Batch) (*mat.Dense, error) {
	out, _, err := m.Forward(b)
	return out, err
}

func (m *Scaled) Params() []*nn.Param { return m.net.params() }
func (m *Scaled) Config() Config      { return m.net.cfg }

// Scale returns a copy of the stored scale spec.
func (m *Scaled) Scale() *ScaleSpec {
	s := ScaleSpec{Mean: append([]float64(nil), m.scale.Mean...), Scale: append([]float64(nil), m.scale.Scale...)}
	return &s
}

func (m *Scaled) State() ParamState             { return stateOf(m.Params()) }
func (m *Scaled) LoadState(st ParamState) error { return st.apply(m.Params()) }

// Unscaled is a model whose predictions stay in standardized units.
type Unscaled struct {
	net *network
}

// NewUnscaled builds a model without output de-standardization and warns
// through log.
func NewUnscaled(cfg Config, log logger.Logger) (*Unscaled, error) {
	net, err := newNetwork(cfg)
	if err != nil {
		return nil, err
	}
	if log != nil {
		log.Warnf("forecast: model built without output scale, predictions are in standardized units")
	}
	return &Unscaled{net: net}, nil
}

func (m *Unscaled) Forward(b *dataset.Batch) (*mat.Dense, Backprop, error) { return m.net.forward(b) }

func (m *Unscaled) Predict(b *dataset.Batch) (*mat.Dense, error) {
	out, _, err := m.net.forward(b)
	return out, err
}

func (m *Unscaled) Params() []*nn.Param           { return m.net.params() }
func (m *Unscaled) Config() Config                { return m.net.cfg }
func (m *Unscaled) Scale() *ScaleSpec             { return nil }
func (m *Unscaled) State() ParamState             { return stateOf(m.Params()) }
func (m *Unscaled) LoadState(st ParamState) error { return st.apply(m.Params()) }

// New returns a Scaled model when scale is set and an Unscaled one otherwise.
func New(cfg Config, scale *ScaleSpec, log logger.Logger) (Model, error) {
	if scale != nil {
		return NewScaled(cfg, *scale)
	}
	return NewUnscaled(cfg, log)
}
