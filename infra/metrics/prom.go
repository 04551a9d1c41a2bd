package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/vrf/core/metrics"
)

// PromSink records training progress in Prometheus metrics.
type PromSink struct {
	loss     *prometheus.GaugeVec
	epochs   prometheus.Counter
	skipped  prometheus.Counter
	duration prometheus.Histogram
	stalled  prometheus.Gauge
	binError *prometheus.GaugeVec
	evalLoss *prometheus.GaugeVec
	runs     *prometheus.CounterVec
}

// NewPromSink registers training metrics on the default Prometheus registerer.
// The HTTP endpoint is started separately with StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.loss, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vrf_epoch_loss",
		Help: "Mean RMSE loss of the last epoch",
	}, []string{"split"})); err != nil {
		return nil, err
	}
	if s.epochs, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vrf_epochs_total",
		Help: "Number of completed training epochs",
	})); err != nil {
		return nil, err
	}
	if s.skipped, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vrf_skipped_batches_total",
		Help: "Training batches skipped as numerically unstable",
	})); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "vrf_epoch_duration_seconds",
		Help:    "Wall clock duration of a training epoch",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})); err != nil {
		return nil, err
	}
	if s.stalled, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vrf_epochs_without_improvement",
		Help: "Consecutive epochs without validation improvement",
	})); err != nil {
		return nil, err
	}
	if s.binError, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vrf_horizon_bin_error",
		Help: "Mean displacement error per forecast horizon bin",
	}, []string{"lo", "hi"})); err != nil {
		return nil, err
	}
	if s.evalLoss, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vrf_evaluation",
		Help: "Aggregate values of the last evaluation report",
	}, []string{"value"})); err != nil {
		return nil, err
	}
	if s.runs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vrf_runs_total",
		Help: "Training run lifecycle transitions",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordEpoch updates loss gauges and epoch counters.
func (s *PromSink) RecordEpoch(rec coremetrics.EpochRecord) error {
	s.loss.WithLabelValues("train").Set(rec.TrainLoss)
	s.loss.WithLabelValues("dev").Set(rec.DevLoss)
	s.epochs.Inc()
	s.skipped.Add(float64(rec.Skipped))
	s.duration.Observe(rec.Duration.Seconds())
	s.stalled.Set(float64(rec.Stalled))
	return nil
}

// RecordEvaluation sets one gauge per defined horizon bin. Empty bins are
// removed rather than reported as zero.
func (s *PromSink) RecordEvaluation(rec coremetrics.EvaluationRecord) error {
	s.evalLoss.WithLabelValues("loss").Set(rec.Loss)
	s.evalLoss.WithLabelValues("mean_error").Set(rec.MeanError)
	for _, b := range rec.Bins {
		lo := strconv.FormatFloat(b.Lo, 'f', -1, 64)
		hi := strconv.FormatFloat(b.Hi, 'f', -1, 64)
		if !b.Defined {
			s.binError.DeleteLabelValues(lo, hi)
			continue
		}
		s.binError.WithLabelValues(lo, hi).Set(b.MeanError)
	}
	return nil
}

// RecordRun counts run transitions.
func (s *PromSink) RecordRun(rec coremetrics.RunRecord) error {
	s.runs.WithLabelValues(rec.Status).Inc()
	return nil
}
