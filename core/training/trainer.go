package training

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/kilianp07/vrf/core/checkpoint"
	"github.com/kilianp07/vrf/core/dataset"
	"github.com/kilianp07/vrf/core/evaluation"
	"github.com/kilianp07/vrf/core/forecast"
	"github.com/kilianp07/vrf/core/logger"
	"github.com/kilianp07/vrf/core/loss"
	"github.com/kilianp07/vrf/core/monitoring"
	"github.com/kilianp07/vrf/core/nn"
	"github.com/kilianp07/vrf/core/optim"
	"github.com/kilianp07/vrf/internal/eventbus"
)

// EpochStats summarises one epoch.
type EpochStats struct {
	Epoch     int           `json:"epoch"`
	TrainLoss float64       `json:"train_loss"`
	DevLoss   float64       `json:"dev_loss"`
	Batches   int           `json:"batches"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
	// CPUTime is the process CPU time spent in the epoch, zero without a
	// CPU clock.
	CPUTime time.Duration `json:"cpu_time"`
}

// SkipRate returns the share of training batches skipped as unstable.
func (s EpochStats) SkipRate() float64 {
	if s.Batches == 0 {
		return 0
	}
	return float64(s.Skipped) / float64(s.Batches)
}

// EpochEvent is published on the bus after every epoch.
type EpochEvent struct {
	RunID    string             `json:"run_id"`
	Stats    EpochStats         `json:"stats"`
	Improved bool               `json:"improved"`
	Best     float64            `json:"best"`
	Stalled  int                `json:"stalled"`
	Stop     bool               `json:"stop"`
	Saved    []string           `json:"saved,omitempty"`
	Report   *evaluation.Report `json:"report,omitempty"`
	Time     time.Time          `json:"time"`
}

// Result is returned by Run.
type Result struct {
	Epochs     int
	Stopped    bool
	History    *History
	Stats      []EpochStats
	LastReport *evaluation.Report
}

// Trainer runs the epoch loop. It is not safe for concurrent use.
type Trainer struct {
	cfg   Config
	model forecast.Model
	opt   optim.Optimizer
	crit  *loss.RMSE
	train *dataset.Loader
	dev   *dataset.Loader
	log   logger.Logger

	early    *EarlyStopping
	reporter *evaluation.Reporter
	store    checkpoint.Store
	periodic checkpoint.PeriodicTrigger
	best     checkpoint.BestTrigger
	bus      *eventbus.TypedBus[EpochEvent]
	mon      monitoring.Monitor
	runID    string
	now      func() time.Time
	cpu      func() (time.Duration, error)

	history *History
	start   int
}

// NewTrainer validates cfg and wires the mandatory collaborators.
func NewTrainer(cfg Config, model forecast.Model, opt optim.Optimizer, crit *loss.RMSE, train, dev *dataset.Loader, log logger.Logger) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if model == nil || opt == nil || train == nil || dev == nil || log == nil {
		return nil, errors.New("training: model, optimizer, loaders and logger are required")
	}
	if crit == nil {
		crit = loss.NewRMSE(0)
	}
	return &Trainer{
		cfg:     cfg,
		model:   model,
		opt:     opt,
		crit:    crit,
		train:   train,
		dev:     dev,
		log:     log,
		mon:     monitoring.NopMonitor{},
		now:     time.Now,
		history: NewHistory(cfg.HistoryLimit),
	}, nil
}

// SetEarlyStopping enables early stopping; nil disables it.
func (t *Trainer) SetEarlyStopping(e *EarlyStopping) { t.early = e }

// SetReporter enables periodic evaluation on the validation loader.
func (t *Trainer) SetReporter(r *evaluation.Reporter) { t.reporter = r }

// SetCheckpoints configures persistence. Each trigger works on its own; a
// disabled trigger never writes.
func (t *Trainer) SetCheckpoints(store checkpoint.Store, periodic checkpoint.PeriodicTrigger, best checkpoint.BestTrigger) {
	t.store, t.periodic, t.best = store, periodic, best
}

// SetBus publishes an EpochEvent per epoch on bus.
func (t *Trainer) SetBus(bus *eventbus.TypedBus[EpochEvent]) { t.bus = bus }

// SetMonitor reports skipped batches and fatal errors to m.
func (t *Trainer) SetMonitor(m monitoring.Monitor) { t.mon = monitoring.OrNop(m) }

// SetCPUClock measures epoch CPU time with clock, typically the process
// user plus system time.
func (t *Trainer) SetCPUClock(clock func() (time.Duration, error)) { t.cpu = clock }

// SetRunID tags checkpoints and events.
func (t *Trainer) SetRunID(id string) { t.runID = id }

// History returns the loss history.
func (t *Trainer) History() *History { return t.history }

// Resume restores model, optimizer, history and early stopping state from
// rec. Training continues at rec.Epoch+1. Call it after SetEarlyStopping.
func (t *Trainer) Resume(rec *checkpoint.Record) error {
	if rec == nil {
		return errors.New("training: nil checkpoint")
	}
	if err := t.model.LoadState(rec.Params); err != nil {
		return err
	}
	if err := t.opt.LoadState(rec.Optimizer); err != nil {
		return err
	}
	if len(rec.TrainLoss) != len(rec.DevLoss) {
		return fmt.Errorf("training: checkpoint has %d train and %d dev losses", len(rec.TrainLoss), len(rec.DevLoss))
	}
	t.history.Restore(rec.TrainLoss, rec.DevLoss, rec.EpochsRun())
	t.start = rec.Epoch + 1
	if t.early != nil {
		t.early.Best = math.Inf(1)
		if rec.BestLoss != nil {
			t.early.Best = *rec.BestLoss
		}
		t.early.Stalled = rec.Stalled
	}
	t.log.Infof("resuming from epoch %d", t.start)
	return nil
}

// Run trains until the epoch budget is spent, early stopping fires or ctx is
// cancelled. ctx is only checked between epochs.
func (t *Trainer) Run(ctx context.Context) (*Result, error) {
	res := &Result{History: t.history}
	for epoch := t.start; epoch < t.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		ev, err := t.epoch(ctx, epoch)
		if err != nil {
			t.mon.CaptureException(err, map[string]string{"run_id": t.runID, "epoch": strconv.Itoa(epoch)})
			return res, err
		}
		res.Epochs++
		res.Stats = append(res.Stats, ev.Stats)
		if t.cfg.HistoryLimit > 0 && len(res.Stats) > t.cfg.HistoryLimit {
			res.Stats = res.Stats[len(res.Stats)-t.cfg.HistoryLimit:]
		}
		if ev.Report != nil {
			res.LastReport = ev.Report
		}
		if t.bus != nil {
			t.bus.Publish(*ev)
		}
		if ev.Stop {
			t.log.Infof("early stopping after epoch %d", epoch)
			res.Stopped = true
			break
		}
	}
	return res, nil
}

func (t *Trainer) epoch(ctx context.Context, epoch int) (*EpochEvent, error) {
	began, cpuBegan := t.now(), t.cpuTime()
	stats, err := t.trainEpoch(epoch)
	if err != nil {
		return nil, err
	}
	dev, err := t.devLoss()
	if err != nil {
		return nil, err
	}
	if math.IsNaN(dev) || math.IsInf(dev, 0) {
		return nil, &InstabilityError{Epoch: epoch, Batch: -1, Cause: fmt.Errorf("validation loss is %v", dev)}
	}
	stats.DevLoss = dev
	stats.Duration = t.now().Sub(began)
	if cpuBegan >= 0 {
		if end := t.cpuTime(); end >= cpuBegan {
			stats.CPUTime = end - cpuBegan
		}
	}
	t.history.Append(stats.TrainLoss, dev)

	ev := &EpochEvent{RunID: t.runID, Stats: stats, Best: math.Inf(1), Time: t.now()}
	if t.early != nil {
		prev := t.early.Best
		ev.Improved, ev.Stop = t.early.Observe(dev)
		ev.Best, ev.Stalled = t.early.Best, t.early.Stalled
		if ev.Improved {
			t.log.Infof("validation loss decreased (%.5f -> %.5f)", prev, dev)
		} else {
			t.log.Infof("validation loss did not improve (%.5f -> %.5f), %d/%d", prev, dev, t.early.Stalled, t.early.Patience)
		}
		if path, ok := t.best.Due(ev.Improved); ok {
			if err := t.save(ctx, path, epoch); err != nil {
				return nil, err
			}
			ev.Saved = append(ev.Saved, path)
		}
	}
	if path, ok := t.periodic.Due(epoch); ok {
		if err := t.save(ctx, path, epoch); err != nil {
			return nil, err
		}
		ev.Saved = append(ev.Saved, path)
	}

	t.log.Infof("epoch %d: train loss %.5f | dev loss %.5f | skipped %d/%d | cpu %s | wall %s",
		epoch, stats.TrainLoss, dev, stats.Skipped, stats.Batches,
		stats.CPUTime.Round(time.Millisecond), stats.Duration.Round(time.Millisecond))

	if t.reporter != nil && t.cfg.EvaluateEvery > 0 && epoch%t.cfg.EvaluateEvery == 0 {
		rep, err := t.reporter.Evaluate(t.model, t.dev)
		if err != nil {
			return nil, err
		}
		t.log.Infof("%s", rep.Summary())
		ev.Report = rep
	}
	return ev, nil
}

// cpuTime returns -1 when no clock is set or it fails.
func (t *Trainer) cpuTime() time.Duration {
	if t.cpu == nil {
		return -1
	}
	d, err := t.cpu()
	if err != nil {
		t.log.Debugf("cpu clock: %v", err)
		return -1
	}
	return d
}

func (t *Trainer) trainEpoch(epoch int) (EpochStats, error) {
	stats := EpochStats{Epoch: epoch}
	batches, err := t.train.Batches()
	if err != nil {
		return stats, err
	}
	stats.Batches = len(batches)
	sum, ok := 0.0, 0
	for i, b := range batches {
		v, err := t.step(epoch, i, b)
		var inst *InstabilityError
		switch {
		case errors.As(err, &inst) && t.cfg.Instability == PolicySkip:
			stats.Skipped++
			t.log.Warnf("skipping batch: %v", err)
			t.mon.CaptureException(err, map[string]string{"run_id": t.runID, "policy": string(PolicySkip)})
			continue
		case err != nil:
			return stats, err
		}
		sum += v
		ok++
		if t.cfg.LogEvery > 0 && i%t.cfg.LogEvery == 0 {
			t.log.Debugw("train batch", map[string]any{
				"epoch": epoch,
				"batch": i,
				"loss":  math.Round(v*1e5) / 1e5,
			})
		}
	}
	if ok == 0 {
		return stats, &InstabilityError{Epoch: epoch, Batch: -1, Cause: errors.New("every batch was skipped")}
	}
	stats.TrainLoss = sum / float64(ok)
	return stats, nil
}

// step runs one forward, backward and optimizer update. Gradients are checked
// before the update so a rejected batch leaves parameters and optimizer
// state untouched.
func (t *Trainer) step(epoch, idx int, b *dataset.Batch) (v float64, err error) {
	params := t.model.Params()
	nn.ZeroGrads(params)
	defer func() {
		if r := recover(); r != nil {
			err = &InstabilityError{Epoch: epoch, Batch: idx, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()
	out, back, err := t.model.Forward(b)
	if err != nil {
		return 0, err
	}
	v, grad, err := t.crit.LossGrad(out, b.Labels)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &InstabilityError{Epoch: epoch, Batch: idx, Cause: fmt.Errorf("loss is %v", v)}
	}
	back(grad)
	if !nn.FiniteGrads(params) {
		return v, &InstabilityError{Epoch: epoch, Batch: idx, Cause: errors.New("gradient is not finite")}
	}
	t.opt.Step(params)
	return v, nil
}

func (t *Trainer) devLoss() (float64, error) {
	batches, err := t.dev.Batches()
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, b := range batches {
		pred, err := t.model.Predict(b)
		if err != nil {
			return 0, err
		}
		v, err := t.crit.Loss(pred, b.Labels)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	return sum / float64(len(batches)), nil
}

func (t *Trainer) save(ctx context.Context, path string, epoch int) error {
	if t.store == nil {
		return errors.New("training: checkpoint trigger set without a store")
	}
	if err := t.store.Save(ctx, path, t.Record(epoch)); err != nil {
		return fmt.Errorf("training: save checkpoint %s: %w", path, err)
	}
	t.log.Debugf("saved checkpoint %s", path)
	return nil
}

// Record snapshots the current training state as a checkpoint record.
func (t *Trainer) Record(epoch int) *checkpoint.Record {
	rec := &checkpoint.Record{
		RunID:     t.runID,
		Epoch:     epoch,
		Model:     t.model.Config(),
		Params:    t.model.State(),
		Scale:     t.model.Scale(),
		Scaler:    t.train.Store().Standardizer(),
		Optimizer: t.opt.State(),
		TrainLoss: append([]float64(nil), t.history.Train...),
		DevLoss:   append([]float64(nil), t.history.Dev...),
		Epochs:    t.history.Total,
		SavedAt:   t.now(),
	}
	if t.early != nil {
		if !math.IsInf(t.early.Best, 1) {
			best := t.early.Best
			rec.BestLoss = &best
		}
		rec.Stalled = t.early.Stalled
	}
	return rec
}
