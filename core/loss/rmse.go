// Package loss holds the training criterion.
package loss

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// DefaultEps keeps the gradient finite at zero error.
const DefaultEps = 1e-3

// RMSE computes sqrt(mean((p - y)^2) + eps).
type RMSE struct {
	eps float64
}

// NewRMSE returns the criterion. A non-positive eps selects DefaultEps.
func NewRMSE(eps float64) *RMSE {
	if eps <= 0 {
		eps = DefaultEps
	}
	return &RMSE{eps: eps}
}

// Eps returns the stabilising constant.
func (l *RMSE) Eps() float64 { return l.eps }

// Loss returns the criterion value.
func (l *RMSE) Loss(pred, target mat.Matrix) (float64, error) {
	v, _, err := l.eval(pred, target, false)
	return v, err
}

// LossGrad returns the criterion value and its gradient with respect to pred,
// (p - y) / (N * loss).
func (l *RMSE) LossGrad(pred, target mat.Matrix) (float64, *mat.Dense, error) {
	return l.eval(pred, target, true)
}

func (l *RMSE) eval(pred, target mat.Matrix, grad bool) (float64, *mat.Dense, error) {
	pr, pc := pred.Dims()
	tr, tc := target.Dims()
	if pr != tr || pc != tc {
		return 0, nil, fmt.Errorf("loss: prediction %dx%d, target %dx%d", pr, pc, tr, tc)
	}
	var diff mat.Dense
	diff.Sub(pred, target)
	n := float64(pr * pc)
	sq := mat.Norm(&diff, 2)
	value := math.Sqrt(sq*sq/n + l.eps)
	if !grad {
		return value, nil, nil
	}
	diff.Scale(1/(n*value), &diff)
	return value, &diff, nil
}
