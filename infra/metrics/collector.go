package metrics

import (
	"context"
	"sync"

	coremetrics "github.com/kilianp07/vrf/core/metrics"
	"github.com/kilianp07/vrf/core/training"
	"github.com/kilianp07/vrf/infra/logger"
	"github.com/kilianp07/vrf/internal/eventbus"
)

// EpochRecord converts a training event.
func EpochRecord(ev training.EpochEvent) coremetrics.EpochRecord {
	return coremetrics.EpochRecord{
		RunID:     ev.RunID,
		Epoch:     ev.Stats.Epoch,
		TrainLoss: ev.Stats.TrainLoss,
		DevLoss:   ev.Stats.DevLoss,
		Batches:   ev.Stats.Batches,
		Skipped:   ev.Stats.Skipped,
		Duration:  ev.Stats.Duration,
		Improved:  ev.Improved,
		Stalled:   ev.Stalled,
		Time:      ev.Time,
	}
}

// EvaluationRecord converts the report carried by ev; ok is false when the
// epoch ran no evaluation.
func EvaluationRecord(ev training.EpochEvent) (coremetrics.EvaluationRecord, bool) {
	if ev.Report == nil {
		return coremetrics.EvaluationRecord{}, false
	}
	rec := coremetrics.EvaluationRecord{
		RunID:     ev.RunID,
		Epoch:     ev.Stats.Epoch,
		Loss:      ev.Report.Loss,
		MeanError: ev.Report.MeanError,
		Time:      ev.Time,
	}
	for _, b := range ev.Report.Bins {
		br := coremetrics.BinRecord{Lo: b.Lo, Hi: b.Hi, Count: b.Count, Defined: b.Defined()}
		if br.Defined {
			br.MeanError = *b.MeanError
		}
		rec.Bins = append(rec.Bins, br)
	}
	return rec, true
}

// StartEpochCollector subscribes to the bus and records every epoch event on
// sink until ctx is canceled or the bus is closed. The returned WaitGroup is
// done once the collector has drained.
func StartEpochCollector(ctx context.Context, bus *eventbus.TypedBus[training.EpochEvent], sink coremetrics.MetricsSink, log logger.Logger) *sync.WaitGroup {
	var wg sync.WaitGroup
	if bus == nil || sink == nil {
		return &wg
	}
	log = logger.OrNop(log)
	sub := bus.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				bus.Unsubscribe(sub)
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := sink.RecordEpoch(EpochRecord(ev)); err != nil {
					log.Warnf("record epoch %d: %v", ev.Stats.Epoch, err)
				}
				rec, ok := EvaluationRecord(ev)
				if !ok {
					continue
				}
				if r, ok := sink.(coremetrics.EvaluationRecorder); ok {
					if err := r.RecordEvaluation(rec); err != nil {
						log.Warnf("record evaluation %d: %v", ev.Stats.Epoch, err)
					}
				}
			}
		}
	}()
	return &wg
}
