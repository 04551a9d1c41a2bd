package forecast

import (
	"fmt"

	"github.com/kilianp07/vrf/core/nn"
)

// Tensor is a serialisable row-major matrix.
type Tensor struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

// ParamState maps parameter names to their values.
type ParamState map[string]Tensor

func stateOf(params []*nn.Param) ParamState {
	st := make(ParamState, len(params))
	for _, p := range params {
		r, c := p.Value.Dims()
		data := make([]float64, 0, r*c)
		for i := 0; i < r; i++ {
			data = append(data, p.Value.RawRowView(i)...)
		}
		st[p.Name] = Tensor{Rows: r, Cols: c, Data: data}
	}
	return st
}

// apply copies values into params. Every parameter must be present with the
// same shape.
func (st ParamState) apply(params []*nn.Param) error {
	for _, p := range params {
		t, ok := st[p.Name]
		if !ok {
			return fmt.Errorf("forecast: state missing parameter %s", p.Name)
		}
		r, c := p.Value.Dims()
		if t.Rows != r || t.Cols != c || len(t.Data) != r*c {
			return fmt.Errorf("forecast: parameter %s is %dx%d, state has %dx%d", p.Name, r, c, t.Rows, t.Cols)
		}
	}
	for _, p := range params {
		t := st[p.Name]
		for i := 0; i < t.Rows; i++ {
			p.Value.SetRow(i, t.Data[i*t.Cols:(i+1)*t.Cols])
		}
	}
	return nil
}
