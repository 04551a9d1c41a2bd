// Package app wires configuration, data, the forecasting model and the
// observability adapters into a training service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	apihistory "github.com/kilianp07/vrf/api/history"
	"github.com/kilianp07/vrf/config"
	"github.com/kilianp07/vrf/core/checkpoint"
	"github.com/kilianp07/vrf/core/dataset"
	"github.com/kilianp07/vrf/core/evaluation"
	"github.com/kilianp07/vrf/core/forecast"
	"github.com/kilianp07/vrf/core/loss"
	coremetrics "github.com/kilianp07/vrf/core/metrics"
	coremon "github.com/kilianp07/vrf/core/monitoring"
	"github.com/kilianp07/vrf/core/optim"
	"github.com/kilianp07/vrf/core/training"
	infracheckpoint "github.com/kilianp07/vrf/infra/checkpoint"
	"github.com/kilianp07/vrf/infra/history"
	"github.com/kilianp07/vrf/infra/logger"
	"github.com/kilianp07/vrf/infra/metrics"
	"github.com/kilianp07/vrf/infra/monitoring"
	"github.com/kilianp07/vrf/infra/mqtt"
	"github.com/kilianp07/vrf/infra/procstat"
	"github.com/kilianp07/vrf/internal/eventbus"
)

// Run statuses recorded on metrics sinks.
const (
	StatusStarted  = "started"
	StatusFinished = "finished"
	StatusStopped  = "stopped"
	StatusFailed   = "failed"
)

// Service trains and evaluates forecast models.
type Service struct {
	cfg       *config.Config
	log       logger.Logger
	sink      coremetrics.MetricsSink
	history   history.Store
	publisher *mqtt.Publisher
	mon       coremon.Monitor
	store     checkpoint.Store
	now       func() time.Time
}

// New creates a Service from the configuration. Optional adapters (history,
// MQTT, Sentry) are only built when configured.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	svc := &Service{
		cfg:   cfg,
		log:   logg,
		sink:  sink,
		mon:   mon,
		store: infracheckpoint.NewFileStore(cfg.Checkpoint.Dir),
		now:   time.Now,
	}
	if cfg.History.Enabled() {
		if svc.history, err = history.New(cfg.History.Module()); err != nil {
			return nil, fmt.Errorf("history store: %w", err)
		}
	}
	if cfg.MQTT.Broker != "" {
		if svc.publisher, err = mqtt.NewPublisher(cfg.MQTT); err != nil {
			_ = svc.Close()
			return nil, fmt.Errorf("mqtt publisher: %w", err)
		}
		svc.publisher.SetMonitor(mon)
	}
	return svc, nil
}

// SetCheckpointStore replaces the file store.
func (s *Service) SetCheckpointStore(st checkpoint.Store) { s.store = st }

// LoadCheckpoint reads the record stored at path.
func (s *Service) LoadCheckpoint(ctx context.Context, path string) (*checkpoint.Record, error) {
	return s.store.Load(ctx, path)
}

// History returns the configured history store, or nil.
func (s *Service) History() history.Store { return s.history }

// Routes returns the HTTP history endpoints, or nil without a history store.
func (s *Service) Routes() map[string]http.Handler {
	if s.history == nil {
		return nil
	}
	return apihistory.Routes(s.history, s.cfg.History.APIToken)
}

// Outcome is the result of Train.
type Outcome struct {
	RunID  string
	Result *training.Result
	// Test is the report on the held out set, when one exists.
	Test *evaluation.Report
}

type run struct {
	model    forecast.Model
	trainer  *training.Trainer
	reporter *evaluation.Reporter
	scaler   *dataset.Standardizer
}

// Train runs one training session over data. A non-empty resume path
// continues the checkpoint stored there.
func (s *Service) Train(ctx context.Context, data *Data, resume string) (*Outcome, error) {
	var rec *checkpoint.Record
	if resume != "" {
		var err error
		if rec, err = s.store.Load(ctx, resume); err != nil {
			return nil, err
		}
	}
	runID := uuid.NewString()
	if rec != nil && rec.RunID != "" {
		runID = rec.RunID
	}
	log := logger.ForRun("trainer", runID)

	r, err := s.build(data, rec, log)
	if err != nil {
		return nil, err
	}
	bus := eventbus.NewTyped[training.EpochEvent](eventbus.WithBuffer(64), eventbus.WithBlocking())
	r.trainer.SetBus(bus)
	r.trainer.SetRunID(runID)
	if rec != nil {
		if err := r.trainer.Resume(rec); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// Collectors drain the bus after Run returns, so they get their own
	// context.
	collectCtx, stopCollect := context.WithCancel(context.Background())
	defer stopCollect()
	waits := []*sync.WaitGroup{metrics.StartEpochCollector(collectCtx, bus, s.sink, s.log)}
	if s.history != nil {
		waits = append(waits, history.StartRecorder(collectCtx, bus, s.history, s.log))
	}
	if s.publisher != nil {
		waits = append(waits, metrics.StartEpochCollector(collectCtx, bus, s.publisher, s.log))
		s.publisher.OnStop(func(id string) {
			if id == runID {
				cancel()
			}
		})
		defer s.publisher.OnStop(nil)
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr, s.Routes()); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	s.recordRun(runID, StatusStarted, 0)
	res, runErr := r.trainer.Run(ctx)
	bus.Close()
	for _, wg := range waits {
		wg.Wait()
	}

	out := &Outcome{RunID: runID, Result: res}
	epochs := 0
	if res != nil {
		epochs = res.Epochs
	}
	switch {
	case errors.Is(runErr, context.Canceled):
		s.recordRun(runID, StatusStopped, epochs)
		return out, runErr
	case runErr != nil:
		s.recordRun(runID, StatusFailed, epochs)
		s.mon.Flush(2 * time.Second)
		return out, runErr
	}
	s.recordRun(runID, StatusFinished, epochs)

	if len(data.Test) > 0 {
		test, err := s.evaluate(r.model, r.reporter, data.Test, r.scaler)
		if err != nil {
			return out, fmt.Errorf("test evaluation: %w", err)
		}
		log.Infof("test set: %s", test.Summary())
		out.Test = test
	}
	return out, nil
}

func (s *Service) build(data *Data, rec *checkpoint.Record, log logger.Logger) (*run, error) {
	if data == nil || len(data.Train) == 0 || len(data.Dev) == 0 {
		return nil, fmt.Errorf("training needs train and dev samples: %w", dataset.ErrEmpty)
	}
	var scaler *dataset.Standardizer
	if rec != nil {
		scaler = rec.Scaler
	}
	trainStore, err := dataset.NewStore(data.Train, scaler)
	if err != nil {
		return nil, fmt.Errorf("train set: %w", err)
	}
	devStore, err := dataset.NewStore(data.Dev, trainStore.Standardizer())
	if err != nil {
		return nil, fmt.Errorf("dev set: %w", err)
	}
	dc := s.cfg.Data
	trainLoader, err := dataset.NewLoader(trainStore, dc.BatchSize, dc.Shuffle, dc.Seed)
	if err != nil {
		return nil, err
	}
	devLoader, err := dataset.NewLoader(devStore, dc.BatchSize, false, dc.Seed)
	if err != nil {
		return nil, err
	}

	modelCfg := s.cfg.Model
	var scale *forecast.ScaleSpec
	if rec != nil {
		modelCfg, scale = rec.Model, rec.Scale
	} else if scale, err = s.cfg.Scale.Resolve(trainStore); err != nil {
		return nil, err
	}
	model, err := forecast.New(modelCfg, scale, log)
	if err != nil {
		return nil, err
	}
	opt, err := optim.New(s.cfg.Optimizer)
	if err != nil {
		return nil, err
	}
	crit := loss.NewRMSE(s.cfg.Loss.Eps)
	reporter, err := evaluation.NewReporter(s.cfg.Evaluation.Bins, crit)
	if err != nil {
		return nil, err
	}

	tr, err := training.NewTrainer(s.cfg.Training, model, opt, crit, trainLoader, devLoader, log)
	if err != nil {
		return nil, err
	}
	tr.SetReporter(reporter)
	tr.SetMonitor(s.mon)
	tr.SetCPUClock(procstat.CPUTime)
	best := checkpoint.BestTrigger{}
	if !s.cfg.EarlyStop.Disabled {
		tr.SetEarlyStopping(training.NewEarlyStopping(s.cfg.EarlyStop.Patience, s.cfg.EarlyStop.Threshold()))
		best = s.cfg.Checkpoint.Best
	}
	tr.SetCheckpoints(s.store, s.cfg.Checkpoint.Periodic, best)
	return &run{model: model, trainer: tr, reporter: reporter, scaler: trainStore.Standardizer()}, nil
}

// Evaluate loads the checkpoint at path and reports on samples, which are
// standardized with the checkpoint's scaler.
func (s *Service) Evaluate(ctx context.Context, path string, samples []dataset.Sample) (*evaluation.Report, error) {
	rec, err := s.store.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	log := logger.New("evaluate")
	model, err := forecast.New(rec.Model, rec.Scale, log)
	if err != nil {
		return nil, err
	}
	if err := model.LoadState(rec.Params); err != nil {
		return nil, err
	}
	reporter, err := evaluation.NewReporter(s.cfg.Evaluation.Bins, loss.NewRMSE(s.cfg.Loss.Eps))
	if err != nil {
		return nil, err
	}
	return s.evaluate(model, reporter, samples, rec.Scaler)
}

func (s *Service) evaluate(m forecast.Model, r *evaluation.Reporter, samples []dataset.Sample, scaler *dataset.Standardizer) (*evaluation.Report, error) {
	if scaler == nil {
		return nil, errors.New("evaluation needs the training standardizer")
	}
	st, err := dataset.NewStore(samples, scaler)
	if err != nil {
		return nil, err
	}
	l, err := dataset.NewLoader(st, s.cfg.Data.BatchSize, false, 0)
	if err != nil {
		return nil, err
	}
	return r.Evaluate(m, l)
}

func (s *Service) recordRun(runID, status string, epochs int) {
	rec := coremetrics.RunRecord{RunID: runID, Status: status, Epochs: epochs, Time: s.now()}
	if rr, ok := s.sink.(coremetrics.RunRecorder); ok {
		if err := rr.RecordRun(rec); err != nil {
			s.log.Warnf("record run %s: %v", status, err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.RecordRun(rec); err != nil {
			s.log.Warnf("publish run %s: %v", status, err)
		}
	}
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.publisher != nil {
		s.publisher.Disconnect()
	}
	if s.history != nil {
		errs = append(errs, s.history.Close())
	}
	if c, ok := s.sink.(interface{ Close() }); ok {
		c.Close()
	}
	if s.mon != nil {
		s.mon.Flush(2 * time.Second)
	}
	return errors.Join(errs...)
}
