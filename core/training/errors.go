package training

import (
	"errors"
	"fmt"
)

// ErrNumericInstability marks a batch whose loss or gradients are not finite.
var ErrNumericInstability = errors.New("numeric instability")

// InstabilityError reports the epoch and batch of an unstable step.
type InstabilityError struct {
	Epoch int
	Batch int
	Cause error
}

func (e *InstabilityError) Error() string {
	return fmt.Sprintf("training: epoch %d batch %d: %v", e.Epoch, e.Batch, e.Cause)
}

func (e *InstabilityError) Unwrap() []error { return []error{ErrNumericInstability, e.Cause} }
