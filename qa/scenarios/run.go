package scenarios

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/kilianp07/vrf/app"
	"github.com/kilianp07/vrf/core/factory"
)

// RunScenario trains on the scenario's simulated fleet in a temporary
// directory and checks the expectations.
func RunScenario(t *testing.T, sc *Scenario) {
	t.Helper()
	cfg, err := sc.BuildConfig()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	dir := t.TempDir()
	cfg.Checkpoint.Dir = filepath.Join(dir, "ckpt")
	cfg.History.Backend = "jsonl"
	cfg.History.Path = filepath.Join(dir, "history.jsonl")
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "nop"}}
	cfg.Metrics.PrometheusAddr = ""
	cfg.MQTT.Broker = ""

	svc, err := app.New(cfg)
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	defer func() { _ = svc.Close() }()

	data, err := app.SimulatedData(cfg)
	if err != nil {
		t.Fatalf("data: %v", err)
	}
	out, err := svc.Train(context.Background(), data, "")
	if err != nil {
		t.Fatalf("scenario %s: train: %v", sc.Name, err)
	}

	exp := sc.Expected
	res := out.Result
	if exp.Epochs > 0 && res.Epochs != exp.Epochs {
		t.Errorf("scenario %s expected %d epochs, got %d", sc.Name, exp.Epochs, res.Epochs)
	}
	if res.Stopped != exp.Stopped {
		t.Errorf("scenario %s expected stopped=%v, got %v", sc.Name, exp.Stopped, res.Stopped)
	}
	skipped := 0
	for _, st := range res.Stats {
		skipped += st.Skipped
		if math.IsNaN(st.TrainLoss) || math.IsInf(st.TrainLoss, 0) {
			t.Errorf("scenario %s epoch %d: train loss %v", sc.Name, st.Epoch, st.TrainLoss)
		}
	}
	if skipped > exp.MaxSkipped {
		t.Errorf("scenario %s expected at most %d skipped batches, got %d", sc.Name, exp.MaxSkipped, skipped)
	}
	if exp.HasTest != (out.Test != nil) {
		t.Fatalf("scenario %s expected test report=%v", sc.Name, exp.HasTest)
	}
	if out.Test != nil && exp.MaxMeanErrorM > 0 && !(out.Test.MeanError <= exp.MaxMeanErrorM) {
		t.Errorf("scenario %s mean error %.1f m above %.1f m", sc.Name, out.Test.MeanError, exp.MaxMeanErrorM)
	}
	if _, err := os.Stat(filepath.Join(cfg.Checkpoint.Dir, cfg.Checkpoint.Best.Path)); !cfg.EarlyStop.Disabled && err != nil {
		t.Errorf("scenario %s: best checkpoint: %v", sc.Name, err)
	}
}
