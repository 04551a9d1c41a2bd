package metrics

import "time"

// EpochRecord is the per-epoch training summary.
type EpochRecord struct {
	RunID     string
	Epoch     int
	TrainLoss float64
	DevLoss   float64
	Batches   int
	Skipped   int
	Duration  time.Duration
	Improved  bool
	Stalled   int
	Time      time.Time
}

// MetricsSink records epoch summaries for observability purposes.
type MetricsSink interface {
	RecordEpoch(rec EpochRecord) error
}

// BinRecord is one horizon bin of an evaluation. Defined is false for bins
// without instances, whose MeanError is then meaningless.
type BinRecord struct {
	Lo, Hi    float64
	Count     int
	MeanError float64
	Defined   bool
}

// EvaluationRecord is a periodic evaluation report.
type EvaluationRecord struct {
	RunID     string
	Epoch     int
	Loss      float64
	MeanError float64
	Bins      []BinRecord
	Time      time.Time
}

// EvaluationRecorder is implemented by sinks able to record evaluations.
type EvaluationRecorder interface {
	RecordEvaluation(rec EvaluationRecord) error
}

// RunRecord marks the start or end of a training run.
type RunRecord struct {
	RunID  string
	Status string // "started", "finished", "stopped" or "failed"
	Epochs int
	Time   time.Time
}

// RunRecorder records run lifecycle transitions.
type RunRecorder interface {
	RecordRun(rec RunRecord) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordEpoch(EpochRecord) error           { return nil }
func (NopSink) RecordEvaluation(EvaluationRecord) error { return nil }
func (NopSink) RecordRun(RunRecord) error               { return nil }
