// Package history persists per-epoch training summaries so runs can be
// compared after the process exits. Two backends exist: SQLite and a
// size-rotated JSONL file.
package history

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kilianp07/vrf/core/factory"
	"github.com/kilianp07/vrf/core/logger"
	"github.com/kilianp07/vrf/core/training"
	infralogger "github.com/kilianp07/vrf/infra/logger"
	"github.com/kilianp07/vrf/internal/eventbus"
)

// Record is one persisted epoch.
type Record struct {
	RunID      string    `json:"run_id"`
	Epoch      int       `json:"epoch"`
	TrainLoss  float64   `json:"train_loss"`
	DevLoss    float64   `json:"dev_loss"`
	Batches    int       `json:"batches"`
	Skipped    int       `json:"skipped"`
	DurationMS int64     `json:"duration_ms"`
	Improved   bool      `json:"improved"`
	Best       *float64  `json:"best,omitempty"`
	EvalLoss   *float64  `json:"eval_loss,omitempty"`
	MeanError  *float64  `json:"mean_error,omitempty"`
	Time       time.Time `json:"time"`
}

// FromEvent converts a training event.
func FromEvent(ev training.EpochEvent) Record {
	r := Record{
		RunID:      ev.RunID,
		Epoch:      ev.Stats.Epoch,
		TrainLoss:  ev.Stats.TrainLoss,
		DevLoss:    ev.Stats.DevLoss,
		Batches:    ev.Stats.Batches,
		Skipped:    ev.Stats.Skipped,
		DurationMS: ev.Stats.Duration.Milliseconds(),
		Improved:   ev.Improved,
		Time:       ev.Time,
	}
	if !math.IsInf(ev.Best, 0) && !math.IsNaN(ev.Best) {
		b := ev.Best
		r.Best = &b
	}
	if ev.Report != nil {
		l, m := ev.Report.Loss, ev.Report.MeanError
		r.EvalLoss, r.MeanError = &l, &m
	}
	return r
}

// Query filters records. Zero values match everything.
type Query struct {
	RunID string
	Since time.Time
	Limit int
}

func (q Query) match(r Record) bool {
	if q.RunID != "" && r.RunID != q.RunID {
		return false
	}
	return q.Since.IsZero() || !r.Time.Before(q.Since)
}

// Store persists Records and supports querying in insertion order.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

var registry = factory.NewRegistry[Store]()

func init() {
	_ = registry.Register("sqlite", func(conf map[string]any) (Store, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, fmt.Errorf("history: sqlite path is required")
		}
		return NewSQLiteStore(c.Path)
	})
	_ = registry.Register("jsonl", func(conf map[string]any) (Store, error) {
		var c struct {
			Path       string `json:"path"`
			MaxSizeMB  int    `json:"max_size_mb"`
			MaxBackups int    `json:"max_backups"`
			MaxAgeDays int    `json:"max_age_days"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, fmt.Errorf("history: jsonl path is required")
		}
		return NewJSONLStore(c.Path, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	})
}

// New builds the configured store.
func New(cfg factory.ModuleConfig) (Store, error) { return registry.Create(cfg) }

// StartRecorder appends every epoch event of bus to store until ctx is
// canceled or the bus is closed.
func StartRecorder(ctx context.Context, bus *eventbus.TypedBus[training.EpochEvent], store Store, log logger.Logger) *sync.WaitGroup {
	var wg sync.WaitGroup
	if bus == nil || store == nil {
		return &wg
	}
	log = infralogger.OrNop(log)
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
				if err := store.Append(ctx, FromEvent(ev)); err != nil {
					log.Warnf("history append epoch %d: %v", ev.Stats.Epoch, err)
				}
			}
		}
	}()
	return &wg
}
