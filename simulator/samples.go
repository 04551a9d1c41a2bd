package simulator

import (
	"math/rand/v2"

	"github.com/kilianp07/vrf/core/dataset"
)

// FeatureWidth is the width of every feature row: dx, dy, speed and a time
// column.
const FeatureWidth = 4

// Window converts points[start:start+n] plus the target point into a sample.
// Rows 0..n-2 hold the displacement from the previous observed point, the
// speed and the elapsed seconds. The last row holds zero displacement, the
// latest speed and the look-ahead horizon in seconds, which is the value
// horizon bins are keyed on. The label is the displacement from the latest
// observed point to target.
func Window(points []Point, start, n, target int) dataset.Sample {
	rows := make([][]float64, 0, n)
	for j := start + 1; j < start+n; j++ {
		prev, cur := points[j-1], points[j]
		rows = append(rows, []float64{cur.X - prev.X, cur.Y - prev.Y, cur.Speed, cur.T - prev.T})
	}
	last, tgt := points[start+n-1], points[target]
	rows = append(rows, []float64{0, 0, last.Speed, tgt.T - last.T})
	return dataset.Sample{
		Features: rows,
		Label:    []float64{tgt.X - last.X, tgt.Y - last.Y},
	}
}

// Samples draws cfg.SamplesPerTrack windows from every track. Window lengths
// are uniform in [WindowMin, WindowMax] and the target lies at most
// HorizonMaxS seconds after the window. Tracks too short for a window are
// skipped.
func Samples(tracks []Track, cfg Config) []dataset.Sample {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x94d049bb133111eb))
	var out []dataset.Sample
	for _, tr := range tracks {
		pts := tr.Points
		for k := 0; k < cfg.SamplesPerTrack; k++ {
			n := cfg.WindowMin
			if cfg.WindowMax > cfg.WindowMin {
				n += rng.IntN(cfg.WindowMax - cfg.WindowMin + 1)
			}
			if n >= len(pts) {
				break
			}
			start := rng.IntN(len(pts) - n)
			end := start + n - 1
			reach := end
			for reach+1 < len(pts) && pts[reach+1].T-pts[end].T <= cfg.HorizonMaxS {
				reach++
			}
			if reach == end {
				continue
			}
			target := end + 1 + rng.IntN(reach-end)
			out = append(out, Window(pts, start, n, target))
		}
	}
	return out
}

// Dataset generates a fleet and returns its samples.
func Dataset(cfg Config) []dataset.Sample {
	return Samples(GenerateFleet(cfg), cfg)
}
