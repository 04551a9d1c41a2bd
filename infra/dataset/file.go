// Package dataset reads and writes the upstream sample mapping
// {"samples": [...], "labels": [...]} as JSON, optionally gzip compressed.
package dataset

import (
	"encoding/json"
	"fmt"
	"io"

	coredataset "github.com/kilianp07/vrf/core/dataset"
	"github.com/kilianp07/vrf/internal/fsutil"
)

// LoadRaw decodes the mapping at path.
func LoadRaw(path string) (coredataset.RawData, error) {
	var raw coredataset.RawData
	r, err := fsutil.Open(path)
	if err != nil {
		return raw, fmt.Errorf("dataset: open %s: %w", path, err)
	}
	defer r.Close()
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return raw, fmt.Errorf("dataset: decode %s: %w", path, err)
	}
	return raw, nil
}

// LoadSamples decodes the mapping at path and checks that samples and
// labels align by index.
func LoadSamples(path string) ([]coredataset.Sample, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, err
	}
	samples, err := raw.ToSamples()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%s: %w", path, coredataset.ErrEmpty)
	}
	return samples, nil
}

// SaveSamples writes samples to path in the upstream layout.
func SaveSamples(path string, samples []coredataset.Sample) error {
	raw := coredataset.FromSamples(samples)
	return fsutil.WriteAtomic(path, func(w io.Writer) error {
		return json.NewEncoder(w).Encode(raw)
	})
}
