package simulator

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Point is one observed position in a local metric frame.
type Point struct {
	T     float64 `json:"t"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Speed float64 `json:"speed"`
}

// Track is the position history of one vessel.
type Track struct {
	ID       string  `json:"id"`
	Maneuver bool    `json:"maneuver"`
	Points   []Point `json:"points"`
}

// Duration returns the elapsed time between the first and last point.
func (t Track) Duration() float64 {
	if len(t.Points) < 2 {
		return 0
	}
	return t.Points[len(t.Points)-1].T - t.Points[0].T
}

// GenerateFleet creates cfg.Vessels tracks with IDs vessel0001..vesselNNNN.
// Every vessel keeps a constant speed; a share of them given by ManeuverPct
// also turns at a constant rate. Positions carry Gaussian noise. The output
// depends on cfg.Seed only.
func GenerateFleet(cfg Config) []Track {
	if cfg.Vessels <= 0 || cfg.Points <= 0 {
		return nil
	}
	src := rand.NewPCG(cfg.Seed, cfg.Seed^0xda3e39cb94b95bdb)
	rng := rand.New(src)
	speed := distuv.Uniform{Min: cfg.SpeedMin, Max: cfg.SpeedMax, Src: src}
	heading := distuv.Uniform{Min: 0, Max: 2 * math.Pi, Src: src}
	turn := distuv.Uniform{Min: -cfg.TurnRateMax, Max: cfg.TurnRateMax, Src: src}
	noise := distuv.Normal{Mu: 0, Sigma: cfg.NoiseM, Src: src}

	tracks := make([]Track, cfg.Vessels)
	for i := range tracks {
		tr := Track{ID: fmt.Sprintf("vessel%04d", i+1), Points: make([]Point, cfg.Points)}
		v := speed.Rand()
		theta := heading.Rand()
		omega := 0.0
		if cfg.ManeuverPct > 0 && rng.Float64() < cfg.ManeuverPct {
			tr.Maneuver = true
			omega = turn.Rand()
		}
		var x, y, t float64
		for j := range tr.Points {
			if j > 0 {
				dt := cfg.IntervalS
				if cfg.JitterS > 0 {
					dt += (2*rng.Float64() - 1) * cfg.JitterS
				}
				theta += omega * dt
				x += v * math.Cos(theta) * dt
				y += v * math.Sin(theta) * dt
				t += dt
			}
			p := Point{T: t, X: x, Y: y, Speed: v}
			if noise.Sigma > 0 {
				p.X += noise.Rand()
				p.Y += noise.Rand()
			}
			tr.Points[j] = p
		}
		tracks[i] = tr
	}
	return tracks
}
