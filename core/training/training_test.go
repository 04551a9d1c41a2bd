package training

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/vrf/core/checkpoint"
	"github.com/kilianp07/vrf/core/dataset"
	"github.com/kilianp07/vrf/core/evaluation"
	"github.com/kilianp07/vrf/core/forecast"
	"github.com/kilianp07/vrf/core/loss"
	"github.com/kilianp07/vrf/core/nn"
	"github.com/kilianp07/vrf/core/optim"
	"github.com/kilianp07/vrf/internal/eventbus"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

type memStore struct {
	saved map[string]*checkpoint.Record
	paths []string
	err   error
}

func newMemStore() *memStore { return &memStore{saved: map[string]*checkpoint.Record{}} }

func (s *memStore) Save(_ context.Context, path string, rec *checkpoint.Record) error {
	if s.err != nil {
		return s.err
	}
	s.saved[path] = rec
	s.paths = append(s.paths, path)
	return nil
}

func (s *memStore) Load(_ context.Context, path string) (*checkpoint.Record, error) {
	rec, ok := s.saved[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return rec, nil
}

func loaders(t *testing.T) (*dataset.Loader, *dataset.Loader) {
	t.Helper()
	rng := rand.New(rand.NewPCG(21, 22))
	gen := func(n int) []dataset.Sample {
		out := make([]dataset.Sample, n)
		for i := range out {
			l := 1 + rng.IntN(4)
			rows := make([][]float64, l)
			sx, sy := 0.0, 0.0
			for j := range rows {
				dx, dy := rng.NormFloat64(), rng.NormFloat64()
				sx, sy = sx+dx, sy+dy
				rows[j] = []float64{dx, dy, float64(60 * (1 + rng.IntN(30)))}
			}
			out[i] = dataset.Sample{Features: rows, Label: []float64{sx / float64(l), sy / float64(l)}}
		}
		return out
	}
	trainStore, err := dataset.NewStore(gen(24), nil)
	require.NoError(t, err)
	devStore, err := dataset.NewStore(gen(8), trainStore.Standardizer())
	require.NoError(t, err)
	tl, err := dataset.NewLoader(trainStore, 8, true, 1)
	require.NoError(t, err)
	dl, err := dataset.NewLoader(devStore, 4, false, 0)
	require.NoError(t, err)
	return tl, dl
}

func newTestTrainer(t *testing.T, cfg Config) (*Trainer, forecast.Model, optim.Optimizer) {
	t.Helper()
	tl, dl := loaders(t)
	model, err := forecast.NewScaled(forecast.Config{
		Cell: nn.LSTM, InputSize: 3, HiddenSize: 6, NumLayers: 1, OutputSize: 2, FCLayers: []int{4}, Seed: 3,
	}, forecast.ScaleSpec{Mean: []float64{0, 0}, Scale: []float64{1, 1}})
	require.NoError(t, err)
	opt, err := optim.New(optim.Config{LR: 0.01})
	require.NoError(t, err)
	tr, err := NewTrainer(cfg, model, opt, loss.NewRMSE(0), tl, dl, nopLogger{})
	require.NoError(t, err)
	return tr, model, opt
}

func TestEarlyStopping_StateMachine(t *testing.T) {
	e := NewEarlyStopping(3, 1e-4)
	e.Best = 10
	improved, stop := e.Observe(9)
	assert.True(t, improved)
	assert.False(t, stop)
	assert.Equal(t, 9.0, e.Best)
	assert.Equal(t, 0, e.Stalled)
	for i := 1; i <= 3; i++ {
		improved, stop = e.Observe(9)
		assert.False(t, improved)
		assert.Equal(t, i, e.Stalled)
		assert.Equal(t, i == 3, stop)
	}
	assert.True(t, e.Stopped())
}

func TestEarlyStopping_ThresholdIsStrict(t *testing.T) {
	e := NewEarlyStopping(2, 0.5)
	improved, _ := e.Observe(4)
	assert.True(t, improved, "anything beats +Inf")
	improved, _ = e.Observe(3.5)
	assert.False(t, improved, "an improvement equal to the threshold is not accepted")
}

func TestHistory_Retention(t *testing.T) {
	h := NewHistory(2)
	for i := range 5 {
		h.Append(float64(i), float64(10+i))
	}
	assert.Equal(t, []float64{3, 4}, h.Train)
	assert.Equal(t, []float64{13, 14}, h.Dev)
	assert.Equal(t, 5, h.Total)
	assert.Equal(t, 2, h.Len())
}

func TestRun_FixedBudgetWithoutEarlyStopping(t *testing.T) {
	tr, _, _ := newTestTrainer(t, Config{Epochs: 4, EvaluateEvery: 2, Instability: PolicySkip})
	store := newMemStore()
	tr.SetCheckpoints(store, checkpoint.PeriodicTrigger{Every: 1, PathTemplate: "epoch_%d.json"}, checkpoint.BestTrigger{Path: "best.json"})
	rep, err := evaluation.NewReporter(nil, nil)
	require.NoError(t, err)
	tr.SetReporter(rep)

	res, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Epochs)
	assert.False(t, res.Stopped)
	assert.Len(t, res.History.Train, 4)
	assert.Len(t, res.History.Dev, 4)
	assert.Len(t, res.Stats, 4)
	assert.Equal(t, []string{"epoch_0.json", "epoch_1.json", "epoch_2.json", "epoch_3.json"}, store.paths)
	require.NotNil(t, res.LastReport)
	assert.Len(t, res.LastReport.Bins, 6)

	last := store.saved["epoch_3.json"]
	assert.Equal(t, 3, last.Epoch)
	assert.Len(t, last.TrainLoss, 4)
	assert.Nil(t, last.BestLoss)
	for _, s := range res.Stats {
		assert.Equal(t, 0, s.Skipped)
		assert.Equal(t, 3, s.Batches)
		assert.False(t, math.IsNaN(s.TrainLoss))
	}
}

func TestRun_EpochCPUTime(t *testing.T) {
	tr, _, _ := newTestTrainer(t, Config{Epochs: 2, EvaluateEvery: -1, Instability: PolicySkip})
	var clock time.Duration
	tr.SetCPUClock(func() (time.Duration, error) {
		clock += 250 * time.Millisecond
		return clock, nil
	})
	res, err := tr.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Stats, 2)
	for _, s := range res.Stats {
		assert.Equal(t, 250*time.Millisecond, s.CPUTime)
	}

	tr, _, _ = newTestTrainer(t, Config{Epochs: 1, EvaluateEvery: -1, Instability: PolicySkip})
	tr.SetCPUClock(func() (time.Duration, error) { return 0, errors.New("unsupported") })
	res, err = tr.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Stats[0].CPUTime)
}

func TestRun_EarlyStoppingStopsAndSavesBest(t *testing.T) {
	tr, _, _ := newTestTrainer(t, Config{Epochs: 10, Instability: PolicySkip})
	tr.SetEarlyStopping(NewEarlyStopping(1, 1e9))
	store := newMemStore()
	tr.SetCheckpoints(store, checkpoint.PeriodicTrigger{}, checkpoint.BestTrigger{Path: "best.json"})

	res, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Stopped)
	assert.Equal(t, 2, res.Epochs)
	assert.Equal(t, []string{"best.json"}, store.paths)
	require.NotNil(t, store.saved["best.json"].BestLoss)
	assert.Equal(t, 0, store.saved["best.json"].Epoch)
}

func TestRun_CheckpointFailureIsFatal(t *testing.T) {
	tr, _, _ := newTestTrainer(t, Config{Epochs: 3, Instability: PolicySkip})
	store := newMemStore()
	store.err = errors.New("disk full")
	tr.SetCheckpoints(store, checkpoint.PeriodicTrigger{Every: 1, PathTemplate: "c_%d"}, checkpoint.BestTrigger{})
	res, err := tr.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, store.err)
	assert.Equal(t, 0, res.Epochs)
}

func TestRun_Cancelled(t *testing.T) {
	tr, _, _ := newTestTrainer(t, Config{Epochs: 3, Instability: PolicySkip})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := tr.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, res.Epochs)
}

// flakyModel returns a NaN prediction for every batch index listed in bad.
type flakyModel struct {
	forecast.Model
	calls int
	bad   map[int]bool
}

func (m *flakyModel) Forward(b *dataset.Batch) (*mat.Dense, forecast.Backprop, error) {
	out, back, err := m.Model.Forward(b)
	if err == nil && m.bad[m.calls%3] {
		out.Set(0, 0, math.NaN())
	}
	m.calls++
	return out, back, err
}

func TestRun_SkipPolicyCountsUnstableBatches(t *testing.T) {
	tr, model, _ := newTestTrainer(t, Config{Epochs: 2, Instability: PolicySkip})
	tr.model = &flakyModel{Model: model, bad: map[int]bool{1: true}}
	before := model.State()

	res, err := tr.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Stats, 2)
	for _, s := range res.Stats {
		assert.Equal(t, 1, s.Skipped)
		assert.InDelta(t, 1.0/3, s.SkipRate(), 1e-12)
		assert.False(t, math.IsNaN(s.TrainLoss))
	}
	assert.NotEqual(t, before, model.State())
}

func TestRun_AbortPolicy(t *testing.T) {
	tr, model, _ := newTestTrainer(t, Config{Epochs: 2, Instability: PolicyAbort})
	tr.model = &flakyModel{Model: model, bad: map[int]bool{0: true}}
	_, err := tr.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNumericInstability)
	var inst *InstabilityError
	require.ErrorAs(t, err, &inst)
	assert.Equal(t, 0, inst.Batch)
}

func TestRun_AllBatchesUnstable(t *testing.T) {
	tr, model, _ := newTestTrainer(t, Config{Epochs: 1, Instability: PolicySkip})
	tr.model = &flakyModel{Model: model, bad: map[int]bool{0: true, 1: true, 2: true}}
	_, err := tr.Run(context.Background())
	assert.ErrorIs(t, err, ErrNumericInstability)
}

func TestResume_ContinuesHistory(t *testing.T) {
	first, _, _ := newTestTrainer(t, Config{Epochs: 2, Instability: PolicySkip})
	first.SetEarlyStopping(NewEarlyStopping(5, 1e-4))
	_, err := first.Run(context.Background())
	require.NoError(t, err)
	rec := first.Record(1)

	second, model, _ := newTestTrainer(t, Config{Epochs: 4, Instability: PolicySkip})
	second.SetEarlyStopping(NewEarlyStopping(5, 1e-4))
	require.NoError(t, second.Resume(rec))
	assert.Equal(t, rec.Params, model.State())

	bus := eventbus.NewTyped[EpochEvent]()
	sub := bus.Subscribe()
	second.SetBus(bus)
	res, err := second.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Epochs)
	assert.Len(t, res.History.Train, 4)
	assert.Equal(t, rec.TrainLoss, res.History.Train[:2])

	ev := <-sub
	assert.Equal(t, 2, ev.Stats.Epoch)
	ev = <-sub
	assert.Equal(t, 3, ev.Stats.Epoch)
}

func TestResume_BoundedHistoryKeepsEpochCount(t *testing.T) {
	first, _, _ := newTestTrainer(t, Config{Epochs: 4, Instability: PolicySkip, HistoryLimit: 2})
	_, err := first.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, first.History().Total)
	rec := first.Record(3)
	assert.Len(t, rec.TrainLoss, 2)
	assert.Equal(t, 4, rec.Epochs)

	second, _, _ := newTestTrainer(t, Config{Epochs: 6, Instability: PolicySkip, HistoryLimit: 2})
	require.NoError(t, second.Resume(rec))
	h := second.History()
	assert.Equal(t, 4, h.Total)
	assert.Equal(t, rec.TrainLoss, h.Train)

	res, err := second.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Epochs)
	assert.Equal(t, 6, res.History.Total)
	assert.Equal(t, 2, res.History.Len())
}

func TestHistory_RestoreTotal(t *testing.T) {
	h := NewHistory(2)
	h.Restore([]float64{1, 2, 3}, []float64{4, 5, 6}, 10)
	assert.Equal(t, []float64{2, 3}, h.Train)
	assert.Equal(t, 10, h.Total)

	h = NewHistory(0)
	h.Restore([]float64{1, 2}, []float64{3, 4}, 0)
	assert.Equal(t, 2, h.Total)
}

func TestConfig_Validate(t *testing.T) {
	var c Config
	c.SetDefaults()
	require.NoError(t, c.Validate())
	assert.Equal(t, 100, c.Epochs)
	assert.Equal(t, PolicySkip, c.Instability)
	c.Instability = "retry"
	assert.Error(t, c.Validate())

	var e EarlyStopConfig
	e.SetDefaults()
	assert.Equal(t, 5, e.Patience)
	require.NotNil(t, e.MinDelta)
	assert.Equal(t, 1e-4, e.Threshold())

	zero := 0.0
	e = EarlyStopConfig{MinDelta: &zero}
	e.SetDefaults()
	require.NoError(t, e.Validate())
	assert.Equal(t, 0.0, e.Threshold())

	neg := -1.0
	assert.Error(t, EarlyStopConfig{Patience: 1, MinDelta: &neg}.Validate())
}
