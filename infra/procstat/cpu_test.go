package procstat

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCPUTime_Increases(t *testing.T) {
	before, err := CPUTime()
	require.NoError(t, err)

	x := 0.0
	for i := range 20_000_000 {
		x += math.Sqrt(float64(i))
	}
	require.Positive(t, x)

	after, err := CPUTime()
	require.NoError(t, err)
	require.GreaterOrEqual(t, after, before)
	require.Positive(t, after)
}
