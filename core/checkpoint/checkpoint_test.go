package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPeriodicTrigger(t *testing.T) {
	tr := PeriodicTrigger{Every: 2, PathTemplate: "ckpt/epoch_%03d.json"}
	p, ok := tr.Due(0)
	assert.True(t, ok)
	assert.Equal(t, "ckpt/epoch_000.json", p)
	_, ok = tr.Due(1)
	assert.False(t, ok)
	p, ok = tr.Due(4)
	assert.True(t, ok)
	assert.Equal(t, "ckpt/epoch_004.json", p)

	_, ok = PeriodicTrigger{Every: 0, PathTemplate: "x"}.Due(0)
	assert.False(t, ok)
}

func TestPeriodicTrigger_PathWithoutVerb(t *testing.T) {
	assert.Equal(t, "runs/current_3.json.gz", PeriodicTrigger{Every: 1, PathTemplate: "runs/current.json.gz"}.Path(3))
	assert.Equal(t, "runs.v1/current_3", PeriodicTrigger{Every: 1, PathTemplate: "runs.v1/current"}.Path(3))
}

func TestBestTrigger(t *testing.T) {
	tr := BestTrigger{Path: "best.json"}
	p, ok := tr.Due(true)
	assert.True(t, ok)
	assert.Equal(t, "best.json", p)
	_, ok = tr.Due(false)
	assert.False(t, ok)
	_, ok = BestTrigger{}.Due(true)
	assert.False(t, ok)
}

func TestRecord_EpochsRun(t *testing.T) {
	assert.Equal(t, 7, (&Record{Epoch: 3, Epochs: 7, TrainLoss: []float64{1, 2}}).EpochsRun())
	assert.Equal(t, 4, (&Record{Epoch: 3, TrainLoss: []float64{1, 2}}).EpochsRun())
	assert.Equal(t, 1, (&Record{}).EpochsRun())
}
