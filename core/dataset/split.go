package dataset

import (
	"fmt"
	"math/rand/v2"
)

// Split partitions samples into consecutive groups sized by fractions after a
// seeded shuffle. The last group receives any rounding remainder.
func Split(samples []Sample, fractions []float64, seed uint64) ([][]Sample, error) {
	if len(samples) == 0 {
		return nil, ErrEmpty
	}
	sum := 0.0
	for _, f := range fractions {
		if f <= 0 {
			return nil, fmt.Errorf("dataset: split fraction %v must be positive", f)
		}
		sum += f
	}
	if len(fractions) == 0 || sum > 1+1e-9 {
		return nil, fmt.Errorf("dataset: split fractions %v must sum to at most 1", fractions)
	}
	idx := make([]int, len(samples))
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	used := int(float64(len(samples))*sum + 0.5)
	out := make([][]Sample, len(fractions))
	start := 0
	for g, f := range fractions {
		n := int(float64(len(samples))*f + 0.5)
		if g == len(fractions)-1 {
			n = used - start
		}
		end := min(start+max(n, 0), len(idx))
		part := make([]Sample, 0, end-start)
		for _, i := range idx[start:end] {
			part = append(part, samples[i])
		}
		out[g] = part
		start = end
	}
	return out, nil
}
