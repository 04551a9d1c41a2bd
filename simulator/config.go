// Package simulator generates synthetic vessel tracks and turns them into
// forecasting samples, so training can run without an ingestion pipeline.
package simulator

import "fmt"

// Config holds parameters for the simulator.
type Config struct {
	// Vessels is the number of generated tracks.
	Vessels int `json:"vessels"`
	// Points is the number of positions per track.
	Points int `json:"points"`
	// IntervalS is the nominal seconds between two positions.
	IntervalS float64 `json:"interval_s"`
	// JitterS perturbs every interval uniformly by up to this many seconds.
	JitterS float64 `json:"jitter_s"`
	// SpeedMin and SpeedMax bound vessel speed in metres per second.
	SpeedMin float64 `json:"speed_min"`
	SpeedMax float64 `json:"speed_max"`
	// ManeuverPct is the share of vessels following a constant turn.
	ManeuverPct float64 `json:"maneuver_pct"`
	// TurnRateMax bounds the turn rate in radians per second.
	TurnRateMax float64 `json:"turn_rate_max"`
	// NoiseM is the standard deviation of position noise in metres.
	NoiseM float64 `json:"noise_m"`
	// WindowMin and WindowMax bound the number of observed positions per
	// sample.
	WindowMin int `json:"window_min"`
	WindowMax int `json:"window_max"`
	// HorizonMaxS bounds the look-ahead of a sample in seconds.
	HorizonMaxS float64 `json:"horizon_max_s"`
	// SamplesPerTrack is the number of windows drawn from every track.
	SamplesPerTrack int    `json:"samples_per_track"`
	Seed            uint64 `json:"seed"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Vessels == 0 {
		c.Vessels = 50
	}
	if c.Points == 0 {
		c.Points = 120
	}
	if c.IntervalS == 0 {
		c.IntervalS = 60
	}
	if c.SpeedMin == 0 {
		c.SpeedMin = 2
	}
	if c.SpeedMax == 0 {
		c.SpeedMax = 10
	}
	if c.ManeuverPct == 0 {
		c.ManeuverPct = 0.3
	}
	if c.TurnRateMax == 0 {
		c.TurnRateMax = 0.002
	}
	if c.NoiseM == 0 {
		c.NoiseM = 5
	}
	if c.WindowMin == 0 {
		c.WindowMin = 4
	}
	if c.WindowMax == 0 {
		c.WindowMax = 16
	}
	if c.HorizonMaxS == 0 {
		c.HorizonMaxS = 1800
	}
	if c.SamplesPerTrack == 0 {
		c.SamplesPerTrack = 20
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Vessels <= 0 || c.Points < 2 || c.SamplesPerTrack <= 0 {
		return fmt.Errorf("simulator: vessels, samples_per_track must be positive and points at least 2")
	}
	if c.IntervalS <= 0 || c.JitterS < 0 || c.JitterS >= c.IntervalS {
		return fmt.Errorf("simulator: interval_s must be positive and jitter_s in [0, interval_s)")
	}
	if c.SpeedMin < 0 || c.SpeedMax < c.SpeedMin {
		return fmt.Errorf("simulator: need 0 <= speed_min <= speed_max")
	}
	if c.ManeuverPct < 0 || c.ManeuverPct > 1 {
		return fmt.Errorf("simulator: maneuver_pct must be in [0, 1]")
	}
	if c.WindowMin < 1 || c.WindowMax < c.WindowMin || c.WindowMax >= c.Points {
		return fmt.Errorf("simulator: need 1 <= window_min <= window_max < points")
	}
	if c.HorizonMaxS < c.IntervalS {
		return fmt.Errorf("simulator: horizon_max_s must cover at least one interval")
	}
	return nil
}
