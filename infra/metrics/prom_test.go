package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/vrf/core/evaluation"
	coremetrics "github.com/kilianp07/vrf/core/metrics"
	"github.com/kilianp07/vrf/core/training"
	"github.com/kilianp07/vrf/infra/logger"
	"github.com/kilianp07/vrf/internal/eventbus"
)

func TestPromSink_RecordEpochAndEvaluation(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s.RecordEpoch(coremetrics.EpochRecord{TrainLoss: 0.5, DevLoss: 0.7, Skipped: 2, Stalled: 1, Duration: time.Second}))
	require.NoError(t, s.RecordEpoch(coremetrics.EpochRecord{TrainLoss: 0.4, DevLoss: 0.6, Skipped: 1}))
	assert.Equal(t, 2.0, testutil.ToFloat64(s.epochs))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.skipped))
	assert.Equal(t, 0.6, testutil.ToFloat64(s.loss.WithLabelValues("dev")))

	require.NoError(t, s.RecordEvaluation(coremetrics.EvaluationRecord{
		Loss: 1.5,
		Bins: []coremetrics.BinRecord{{Lo: 0, Hi: 300, MeanError: 4, Defined: true}, {Lo: 300, Hi: 600}},
	}))
	assert.Equal(t, 4.0, testutil.ToFloat64(s.binError.WithLabelValues("0", "300")))
	assert.Equal(t, 1, testutil.CollectAndCount(s.binError), "empty bins must not be exported")
}

func TestPromSink_ReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	b, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	require.NoError(t, a.RecordRun(coremetrics.RunRecord{Status: "started"}))
	require.NoError(t, b.RecordRun(coremetrics.RunRecord{Status: "started"}))
	assert.Equal(t, 2.0, testutil.ToFloat64(a.runs.WithLabelValues("started")))
}

type captureSink struct {
	epochs chan coremetrics.EpochRecord
	evals  chan coremetrics.EvaluationRecord
}

func (c *captureSink) RecordEpoch(r coremetrics.EpochRecord) error {
	c.epochs <- r
	return nil
}

func (c *captureSink) RecordEvaluation(r coremetrics.EvaluationRecord) error {
	c.evals <- r
	return nil
}

func TestStartEpochCollector(t *testing.T) {
	bus := eventbus.NewTyped[training.EpochEvent]()
	sink := &captureSink{epochs: make(chan coremetrics.EpochRecord, 4), evals: make(chan coremetrics.EvaluationRecord, 4)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg := StartEpochCollector(ctx, bus, sink, logger.NopLogger{})

	mean := 3.0
	bus.Publish(training.EpochEvent{RunID: "r", Stats: training.EpochStats{Epoch: 0, TrainLoss: 1}})
	bus.Publish(training.EpochEvent{RunID: "r", Stats: training.EpochStats{Epoch: 1}, Report: &evaluation.Report{
		Loss: 2,
		Bins: []evaluation.Bin{{Lo: 0, Hi: 300, Count: 1, MeanError: &mean}, {Lo: 300, Hi: 600}},
	}})

	first := <-sink.epochs
	assert.Equal(t, 0, first.Epoch)
	assert.Equal(t, 1.0, first.TrainLoss)
	second := <-sink.epochs
	assert.Equal(t, 1, second.Epoch)
	ev := <-sink.evals
	require.Len(t, ev.Bins, 2)
	assert.True(t, ev.Bins[0].Defined)
	assert.Equal(t, 3.0, ev.Bins[0].MeanError)
	assert.False(t, ev.Bins[1].Defined)

	bus.Close()
	wg.Wait()
}

func TestNewServeMux_Routes(t *testing.T) {
	mux := NewServeMux(map[string]http.Handler{
		"/api/ping": http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("pong")) }),
	})
	for path, want := range map[string]int{"/metrics": http.StatusOK, "/api/ping": http.StatusOK, "/nope": http.StatusNotFound} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != want {
			t.Fatalf("%s: status %d, want %d", path, rr.Code, want)
		}
	}
}
