package metrics

import "errors"

// MultiSink fans records out to multiple sinks. Every sink is called even
// when an earlier one fails; the errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordEpoch forwards the epoch summary to all sinks.
func (m *MultiSink) RecordEpoch(rec EpochRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordEpoch(rec))
	}
	return errors.Join(errs...)
}

// RecordEvaluation forwards to sinks implementing EvaluationRecorder.
func (m *MultiSink) RecordEvaluation(rec EvaluationRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(EvaluationRecorder); ok {
			errs = append(errs, r.RecordEvaluation(rec))
		}
	}
	return errors.Join(errs...)
}

// RecordRun forwards to sinks implementing RunRecorder.
func (m *MultiSink) RecordRun(rec RunRecord) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(RunRecorder); ok {
			errs = append(errs, r.RecordRun(rec))
		}
	}
	return errors.Join(errs...)
}

// Close releases sinks that hold resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
