// Package optim implements gradient descent optimizers over nn parameters.
package optim

import (
	"fmt"
	"math"

	"github.com/kilianp07/vrf/core/nn"
)

// Optimizer applies one update from accumulated gradients.
type Optimizer interface {
	Step(params []*nn.Param)
	State() State
	LoadState(State) error
}

// State is the serialisable internal state of an optimizer. Buffers are keyed
// "<slot>/<param name>" and stored row-major.
type State struct {
	Kind    string               `json:"kind"`
	Step    int                  `json:"step"`
	Buffers map[string][]float64 `json:"buffers"`
}

// Config selects and tunes an optimizer.
type Config struct {
	Kind        string  `json:"kind"`
	LR          float64 `json:"lr"`
	Beta1       float64 `json:"beta1"`
	Beta2       float64 `json:"beta2"`
	Eps         float64 `json:"eps"`
	Momentum    float64 `json:"momentum"`
	WeightDecay float64 `json:"weight_decay"`
	// ClipNorm rescales gradients whose global norm exceeds it; 0 disables.
	ClipNorm float64 `json:"clip_norm"`
}

// SetDefaults applies Adam defaults.
func (c *Config) SetDefaults() {
	if c.Kind == "" {
		c.Kind = "adam"
	}
	if c.LR == 0 {
		c.LR = 1e-3
	}
	if c.Beta1 == 0 {
		c.Beta1 = 0.9
	}
	if c.Beta2 == 0 {
		c.Beta2 = 0.999
	}
	if c.Eps == 0 {
		c.Eps = 1e-8
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Kind != "adam" && c.Kind != "sgd" {
		return fmt.Errorf("optim: unknown kind %q", c.Kind)
	}
	if c.LR <= 0 {
		return fmt.Errorf("optim: lr must be positive")
	}
	if c.Beta1 < 0 || c.Beta1 >= 1 || c.Beta2 < 0 || c.Beta2 >= 1 {
		return fmt.Errorf("optim: betas must be in [0, 1)")
	}
	if c.Momentum < 0 || c.WeightDecay < 0 || c.ClipNorm < 0 {
		return fmt.Errorf("optim: momentum, weight_decay and clip_norm must not be negative")
	}
	return nil
}

// New builds the configured optimizer.
func New(cfg Config) (Optimizer, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Kind == "sgd" {
		return &SGD{cfg: cfg, velocity: map[string][]float64{}}, nil
	}
	return &Adam{cfg: cfg, m: map[string][]float64{}, v: map[string][]float64{}}, nil
}

// ClipGradNorm scales every gradient so the global norm is at most maxNorm
// and returns the norm before clipping.
func ClipGradNorm(params []*nn.Param, maxNorm float64) float64 {
	norm := nn.GradNorm(params)
	if maxNorm <= 0 || norm <= maxNorm {
		return norm
	}
	f := maxNorm / (norm + 1e-6)
	for _, p := range params {
		p.Grad.Scale(f, p.Grad)
	}
	return norm
}

// Adam follows Kingma and Ba with bias correction and L2 weight decay.
type Adam struct {
	cfg  Config
	t    int
	m, v map[string][]float64
}

func (a *Adam) Step(params []*nn.Param) {
	ClipGradNorm(params, a.cfg.ClipNorm)
	a.t++
	b1, b2 := a.cfg.Beta1, a.cfg.Beta2
	c1 := 1 - math.Pow(b1, float64(a.t))
	c2 := 1 - math.Pow(b2, float64(a.t))
	for _, p := range params {
		m := buffer(a.m, p)
		v := buffer(a.v, p)
		eachEntry(p, func(k int, w, g float64) float64 {
			g += a.cfg.WeightDecay * w
			m[k] = b1*m[k] + (1-b1)*g
			v[k] = b2*v[k] + (1-b2)*g*g
			return w - a.cfg.LR*(m[k]/c1)/(math.Sqrt(v[k]/c2)+a.cfg.Eps)
		})
	}
}

func (a *Adam) State() State {
	buf := make(map[string][]float64, len(a.m)*2)
	for k, v := range a.m {
		buf["m/"+k] = append([]float64(nil), v...)
	}
	for k, v := range a.v {
		buf["v/"+k] = append([]float64(nil), v...)
	}
	return State{Kind: "adam", Step: a.t, Buffers: buf}
}

func (a *Adam) LoadState(st State) error {
	if st.Kind != "adam" {
		return fmt.Errorf("optim: cannot load %q state into adam", st.Kind)
	}
	m, v := map[string][]float64{}, map[string][]float64{}
	for k, buf := range st.Buffers {
		slot, name, ok := splitKey(k)
		switch {
		case ok && slot == "m":
			m[name] = append([]float64(nil), buf...)
		case ok && slot == "v":
			v[name] = append([]float64(nil), buf...)
		default:
			return fmt.Errorf("optim: unexpected adam buffer %q", k)
		}
	}
	a.t, a.m, a.v = st.Step, m, v
	return nil
}

// SGD is stochastic gradient descent with optional momentum.
type SGD struct {
	cfg      Config
	t        int
	velocity map[string][]float64
}

func (s *SGD) Step(params []*nn.Param) {
	ClipGradNorm(params, s.cfg.ClipNorm)
	s.t++
	for _, p := range params {
		vel := buffer(s.velocity, p)
		eachEntry(p, func(k int, w, g float64) float64 {
			g += s.cfg.WeightDecay * w
			if s.cfg.Momentum > 0 {
				vel[k] = s.cfg.Momentum*vel[k] + g
				g = vel[k]
			}
			return w - s.cfg.LR*g
		})
	}
}

func (s *SGD) State() State {
	buf := make(map[string][]float64, len(s.velocity))
	for k, v := range s.velocity {
		buf["momentum/"+k] = append([]float64(nil), v...)
	}
	return State{Kind: "sgd", Step: s.t, Buffers: buf}
}

func (s *SGD) LoadState(st State) error {
	if st.Kind != "sgd" {
		return fmt.Errorf("optim: cannot load %q state into sgd", st.Kind)
	}
	vel := map[string][]float64{}
	for k, buf := range st.Buffers {
		slot, name, ok := splitKey(k)
		if !ok || slot != "momentum" {
			return fmt.Errorf("optim: unexpected sgd buffer %q", k)
		}
		vel[name] = append([]float64(nil), buf...)
	}
	s.t, s.velocity = st.Step, vel
	return nil
}

func buffer(bufs map[string][]float64, p *nn.Param) []float64 {
	b, ok := bufs[p.Name]
	if !ok || len(b) != p.Size() {
		b = make([]float64, p.Size())
		bufs[p.Name] = b
	}
	return b
}

// eachEntry replaces every weight w with f(k, w, grad) where k is the
// row-major index.
func eachEntry(p *nn.Param, f func(k int, w, g float64) float64) {
	r, c := p.Value.Dims()
	for i := 0; i < r; i++ {
		w := p.Value.RawRowView(i)
		g := p.Grad.RawRowView(i)
		for j := 0; j < c; j++ {
			w[j] = f(i*c+j, w[j], g[j])
		}
	}
}

func splitKey(k string) (slot, name string, ok bool) {
	for i := 0; i < len(k); i++ {
		if k[i] == '/' {
			return k[:i], k[i+1:], true
		}
	}
	return "", "", false
}
