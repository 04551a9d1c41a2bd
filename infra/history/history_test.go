package history

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/vrf/core/evaluation"
	"github.com/kilianp07/vrf/core/factory"
	"github.com/kilianp07/vrf/core/training"
	"github.com/kilianp07/vrf/internal/eventbus"
)

func sampleRecords() []Record {
	now := time.Now().UTC().Truncate(time.Millisecond)
	best := 0.5
	return []Record{
		{RunID: "a", Epoch: 0, TrainLoss: 1, DevLoss: 0.9, Time: now, Best: &best},
		{RunID: "b", Epoch: 0, TrainLoss: 2, DevLoss: 1.9, Time: now.Add(time.Second)},
		{RunID: "a", Epoch: 1, TrainLoss: 0.8, DevLoss: 0.7, Time: now.Add(2 * time.Second)},
	}
}

func exercise(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	for _, r := range sampleRecords() {
		require.NoError(t, s.Append(ctx, r))
	}
	all, err := s.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 0.5, *all[0].Best)

	runA, err := s.Query(ctx, Query{RunID: "a"})
	require.NoError(t, err)
	require.Len(t, runA, 2)
	assert.Equal(t, []int{0, 1}, []int{runA[0].Epoch, runA[1].Epoch})

	limited, err := s.Query(ctx, Query{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	recent, err := s.Query(ctx, Query{Since: all[1].Time})
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestSQLiteStore_PersistQuery(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	exercise(t, store)

	runs, err := store.Runs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, runs)
}

func TestJSONLStore_PersistQuery(t *testing.T) {
	store, err := NewJSONLStore(filepath.Join(t.TempDir(), "logs", "history.jsonl"), 1, 2, 0)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	exercise(t, store)
}

func TestNew_FromConfig(t *testing.T) {
	s, err := New(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": filepath.Join(t.TempDir(), "h.jsonl")}})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	_, err = New(factory.ModuleConfig{Type: "sqlite"})
	assert.Error(t, err)
	_, err = New(factory.ModuleConfig{Type: "csv"})
	assert.Error(t, err)
}

func TestFromEvent(t *testing.T) {
	r := FromEvent(training.EpochEvent{RunID: "x", Best: math.Inf(1), Stats: training.EpochStats{Epoch: 3, Duration: 2 * time.Second}})
	assert.Nil(t, r.Best)
	assert.Nil(t, r.EvalLoss)
	assert.Equal(t, int64(2000), r.DurationMS)

	r = FromEvent(training.EpochEvent{Best: 0.25, Report: &evaluation.Report{Loss: 1, MeanError: 2}})
	require.NotNil(t, r.Best)
	assert.Equal(t, 0.25, *r.Best)
	assert.Equal(t, 2.0, *r.MeanError)
}

func TestStartRecorder(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "rec.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	bus := eventbus.NewTyped[training.EpochEvent]()
	wg := StartRecorder(context.Background(), bus, store, nil)
	bus.Publish(training.EpochEvent{RunID: "r", Stats: training.EpochStats{Epoch: 0}})
	bus.Publish(training.EpochEvent{RunID: "r", Stats: training.EpochStats{Epoch: 1}})
	bus.Close()
	wg.Wait()

	recs, err := store.Query(context.Background(), Query{RunID: "r"})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
