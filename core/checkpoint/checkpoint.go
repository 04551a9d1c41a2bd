// Package checkpoint defines the persisted training record and the two
// independent triggers that decide when it is written: a periodic trigger
// keyed by epoch and a best-so-far trigger driven by early stopping.
package checkpoint

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kilianp07/vrf/core/dataset"
	"github.com/kilianp07/vrf/core/forecast"
	"github.com/kilianp07/vrf/core/optim"
)

// Record is one saved checkpoint.
type Record struct {
	RunID     string                `json:"run_id"`
	Epoch     int                   `json:"epoch"`
	Model     forecast.Config       `json:"model"`
	Params    forecast.ParamState   `json:"model_state_dict"`
	Scale     *forecast.ScaleSpec   `json:"scale,omitempty"`
	Scaler    *dataset.Standardizer `json:"scaler"`
	Optimizer optim.State           `json:"optimizer_state_dict"`
	TrainLoss []float64             `json:"loss"`
	DevLoss   []float64             `json:"dev_loss"`
	// Epochs counts every completed epoch; the loss slices may hold fewer
	// when the history is bounded.
	Epochs int `json:"epochs"`
	// BestLoss is nil while no finite best exists.
	BestLoss *float64  `json:"best_loss,omitempty"`
	Stalled  int       `json:"stalled"`
	SavedAt  time.Time `json:"saved_at"`
}

// EpochsRun returns the number of completed epochs. Records written before
// Epochs existed fall back to the epoch index.
func (r *Record) EpochsRun() int {
	if r.Epochs > 0 {
		return r.Epochs
	}
	return max(r.Epoch+1, len(r.TrainLoss))
}

// Store persists records. Save must be synchronous; its error is fatal to
// the training run.
type Store interface {
	Save(ctx context.Context, path string, rec *Record) error
	Load(ctx context.Context, path string) (*Record, error)
}

// PeriodicTrigger saves a "current" checkpoint every Every epochs to a path
// templated by the epoch index, e.g. "checkpoints/epoch_%03d.json".
type PeriodicTrigger struct {
	Every        int    `json:"every"`
	PathTemplate string `json:"path_template"`
}

// Enabled reports whether the trigger can fire.
func (t PeriodicTrigger) Enabled() bool { return t.Every > 0 && t.PathTemplate != "" }

// Due returns the path for epoch and whether a checkpoint is due.
func (t PeriodicTrigger) Due(epoch int) (string, bool) {
	if !t.Enabled() || epoch%t.Every != 0 {
		return "", false
	}
	return t.Path(epoch), true
}

// Path renders the template. Templates without a verb get the epoch
// appended before the extension.
func (t PeriodicTrigger) Path(epoch int) string {
	if strings.Contains(t.PathTemplate, "%") {
		return fmt.Sprintf(t.PathTemplate, epoch)
	}
	base := strings.LastIndex(t.PathTemplate, "/") + 1
	dot := strings.Index(t.PathTemplate[base:], ".")
	if dot <= 0 {
		return fmt.Sprintf("%s_%d", t.PathTemplate, epoch)
	}
	dot += base
	return fmt.Sprintf("%s_%d%s", t.PathTemplate[:dot], epoch, t.PathTemplate[dot:])
}

// BestTrigger saves to a fixed path whenever validation loss improves.
type BestTrigger struct {
	Path string `json:"path"`
}

// Enabled reports whether a path is configured.
func (t BestTrigger) Enabled() bool { return t.Path != "" }

// Due returns the path when improved is set.
func (t BestTrigger) Due(improved bool) (string, bool) {
	if !improved || !t.Enabled() {
		return "", false
	}
	return t.Path, true
}
