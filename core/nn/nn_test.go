package nn

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func randDense(rng *rand.Rand, r, c int) *mat.Dense {
	m := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			m.Set(i, j, rng.NormFloat64())
		}
	}
	return m
}

// weighted returns sum(out .* w), a scalar objective with gradient w.
func weighted(out, w *mat.Dense) float64 {
	var e mat.Dense
	e.MulElem(out, w)
	return mat.Sum(&e)
}

// checkGrads compares accumulated gradients against central differences on a
// sample of entries from every parameter.
func checkGrads(t *testing.T, params []*Param, objective func() float64) {
	t.Helper()
	const h = 1e-6
	for _, p := range params {
		r, c := p.Value.Dims()
		for _, idx := range [][2]int{{0, 0}, {r - 1, c - 1}, {r / 2, c / 2}} {
			i, j := idx[0], idx[1]
			orig := p.Value.At(i, j)
			p.Value.Set(i, j, orig+h)
			up := objective()
			p.Value.Set(i, j, orig-h)
			down := objective()
			p.Value.Set(i, j, orig)
			num := (up - down) / (2 * h)
			got := p.Grad.At(i, j)
			tol := 1e-5 * math.Max(1, math.Abs(num))
			assert.InDelta(t, num, got, tol, "%s[%d,%d]", p.Name, i, j)
		}
	}
}

func TestMLP_Gradients(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	m, err := NewMLP("fc", []int{5, 4, 3, 2}, rng)
	require.NoError(t, err)
	x := randDense(rng, 6, 5)
	w := randDense(rng, 6, 2)

	out, tr := m.Forward(x)
	ZeroGrads(m.Params())
	m.Backward(tr, w)

	checkGrads(t, m.Params(), func() float64 {
		o, _ := m.Forward(x)
		return weighted(o, w)
	})
	r, c := out.Dims()
	assert.Equal(t, 6, r)
	assert.Equal(t, 2, c)
}

func TestNewMLP_Errors(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	_, err := NewMLP("fc", []int{3}, rng)
	assert.Error(t, err)
	_, err = NewMLP("fc", []int{3, 0, 1}, rng)
	assert.Error(t, err)
}

func sortedBatch(rng *rand.Rand, lengths []int, width int) []*mat.Dense {
	x := make([]*mat.Dense, len(lengths))
	for i := range lengths {
		x[i] = randDense(rng, lengths[0], width)
	}
	return x
}

func TestEncoder_Gradients(t *testing.T) {
	for _, kind := range []CellKind{LSTM, GRU} {
		for _, bidi := range []bool{false, true} {
			t.Run(fmt.Sprintf("%s_bidirectional_%t", kind, bidi), func(t *testing.T) {
				rng := rand.New(rand.NewPCG(3, 4))
				e, err := NewEncoder(kind, 3, 4, 2, bidi, rng)
				require.NoError(t, err)
				lengths := []int{4, 3, 3, 1}
				x := sortedBatch(rng, lengths, 3)
				w := randDense(rng, len(lengths), e.OutputWidth())

				_, tr, err := e.Forward(x, lengths)
				require.NoError(t, err)
				ZeroGrads(e.Params())
				e.Backward(tr, w)

				checkGrads(t, e.Params(), func() float64 {
					out, _, err := e.Forward(x, lengths)
					require.NoError(t, err)
					return weighted(out, w)
				})
			})
		}
	}
}

func TestEncoder_InputGradients(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	e, err := NewEncoder(LSTM, 2, 3, 1, true, rng)
	require.NoError(t, err)
	lengths := []int{3, 2}
	x := sortedBatch(rng, lengths, 2)
	w := randDense(rng, 2, e.OutputWidth())

	_, tr, err := e.Forward(x, lengths)
	require.NoError(t, err)
	dIn := e.Backward(tr, w)
	require.Len(t, dIn, 3)

	const h = 1e-6
	for row, l := range lengths {
		for ts := 0; ts < l; ts++ {
			orig := x[row].At(ts, 1)
			x[row].Set(ts, 1, orig+h)
			up, _, _ := e.Forward(x, lengths)
			x[row].Set(ts, 1, orig-h)
			down, _, _ := e.Forward(x, lengths)
			x[row].Set(ts, 1, orig)
			num := (weighted(up, w) - weighted(down, w)) / (2 * h)
			assert.InDelta(t, num, dIn[ts].At(row, 1), 1e-5)
		}
	}
}

func TestEncoder_PaddingNeverLeaks(t *testing.T) {
	for _, kind := range []CellKind{LSTM, GRU} {
		rng := rand.New(rand.NewPCG(7, 8))
		e, err := NewEncoder(kind, 3, 5, 2, true, rng)
		require.NoError(t, err)
		lengths := []int{5, 3, 2}
		x := sortedBatch(rng, lengths, 3)
		// garbage beyond each row's true length
		for i, l := range lengths {
			for ts := l; ts < lengths[0]; ts++ {
				x[i].SetRow(ts, []float64{1e3, -1e3, 42})
			}
		}
		batched, _, err := e.Forward(x, lengths)
		require.NoError(t, err)

		for i, l := range lengths {
			alone := mat.DenseCopyOf(x[i].Slice(0, l, 0, 3))
			single, _, err := e.Forward([]*mat.Dense{alone}, []int{l})
			require.NoError(t, err)
			for j := 0; j < e.OutputWidth(); j++ {
				assert.InDelta(t, single.At(0, j), batched.At(i, j), 1e-9, "%s row %d col %d", kind, i, j)
			}
		}
	}
}

func TestEncoder_Errors(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	e, err := NewEncoder(LSTM, 2, 2, 1, false, rng)
	require.NoError(t, err)
	x := sortedBatch(rng, []int{2, 3}, 2)
	_, _, err = e.Forward(x, []int{2, 3})
	assert.Error(t, err, "unsorted lengths")
	_, _, err = e.Forward(x[:1], []int{2, 1})
	assert.Error(t, err)
	_, _, err = e.Forward(sortedBatch(rng, []int{2}, 3), []int{2})
	assert.Error(t, err, "wrong width")

	_, err = NewEncoder("rnn", 2, 2, 1, false, rng)
	assert.Error(t, err)
	_, err = NewEncoder(GRU, 2, 2, 0, false, rng)
	assert.Error(t, err)
}

func TestActiveCounts(t *testing.T) {
	counts, err := ActiveCounts([]int{4, 2, 2, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3, 1, 1}, counts)
	_, err = ActiveCounts([]int{1, 0})
	assert.Error(t, err)
}

func TestGradNormAndFinite(t *testing.T) {
	p := NewParam("p", 1, 2)
	p.Grad.SetRow(0, []float64{3, 4})
	assert.InDelta(t, 5, GradNorm([]*Param{p}), 1e-12)
	assert.True(t, FiniteGrads([]*Param{p}))
	p.Grad.Set(0, 1, math.NaN())
	assert.False(t, FiniteGrads([]*Param{p}))
}
