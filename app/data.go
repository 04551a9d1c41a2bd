package app

import (
	"fmt"

	"github.com/kilianp07/vrf/config"
	"github.com/kilianp07/vrf/core/dataset"
	infradataset "github.com/kilianp07/vrf/infra/dataset"
	"github.com/kilianp07/vrf/simulator"
)

// Data holds the samples of one run. Test may be empty.
type Data struct {
	Train []dataset.Sample
	Dev   []dataset.Sample
	Test  []dataset.Sample
}

// LoadData reads the configured files. Without a dev file the training file
// is split by cfg.Split: the first fraction trains, the second validates and
// an optional third is held out for testing.
func LoadData(cfg config.DataConfig) (*Data, error) {
	if cfg.TrainPath == "" {
		return nil, fmt.Errorf("data: train_path is required")
	}
	train, err := infradataset.LoadSamples(cfg.TrainPath)
	if err != nil {
		return nil, err
	}
	d := &Data{Train: train}
	if cfg.DevPath != "" {
		if d.Dev, err = infradataset.LoadSamples(cfg.DevPath); err != nil {
			return nil, err
		}
	} else if d, err = split(train, cfg); err != nil {
		return nil, err
	}
	if cfg.TestPath != "" {
		if d.Test, err = infradataset.LoadSamples(cfg.TestPath); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// SimulatedData generates samples with the simulator and splits them by
// cfg.Data.Split.
func SimulatedData(cfg *config.Config) (*Data, error) {
	samples := simulator.Dataset(cfg.Simulator)
	if len(samples) == 0 {
		return nil, fmt.Errorf("simulator produced no samples")
	}
	return split(samples, cfg.Data)
}

func split(samples []dataset.Sample, cfg config.DataConfig) (*Data, error) {
	parts, err := dataset.Split(samples, cfg.Split, cfg.Seed)
	if err != nil {
		return nil, err
	}
	d := &Data{Train: parts[0], Dev: parts[1]}
	if len(parts) > 2 {
		d.Test = parts[2]
	}
	if len(d.Train) == 0 || len(d.Dev) == 0 {
		return nil, fmt.Errorf("data: split %v of %d samples leaves an empty train or dev set", cfg.Split, len(samples))
	}
	return d, nil
}
