package training

import "math"

// EarlyStopping tracks the best validation loss and the number of
// consecutive epochs without an improvement larger than MinDelta.
type EarlyStopping struct {
	Patience int     `json:"patience"`
	MinDelta float64 `json:"min_delta"`
	Best     float64 `json:"-"`
	Stalled  int     `json:"stalled"`
}

// NewEarlyStopping starts with an infinite best loss.
func NewEarlyStopping(patience int, minDelta float64) *EarlyStopping {
	return &EarlyStopping{Patience: patience, MinDelta: minDelta, Best: math.Inf(1)}
}

// Observe feeds one validation loss. An improvement resets the counter and
// updates Best; otherwise the counter grows and stop is set once it reaches
// Patience.
func (e *EarlyStopping) Observe(loss float64) (improved, stop bool) {
	if e.Best-loss > e.MinDelta {
		e.Best = loss
		e.Stalled = 0
		return true, false
	}
	e.Stalled++
	return false, e.Stalled >= e.Patience
}

// Stopped reports whether patience is exhausted.
func (e *EarlyStopping) Stopped() bool { return e.Stalled >= e.Patience }
