package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coredataset "github.com/kilianp07/vrf/core/dataset"
)

func TestSaveLoadSamples(t *testing.T) {
	samples := []coredataset.Sample{
		{Features: [][]float64{{1, 2, 3, 60}, {4, 5, 6, 120}}, Label: []float64{0.5, -0.5}},
		{Features: [][]float64{{7, 8, 9, 300}}, Label: []float64{1, 2}},
	}
	for _, name := range []string{"data.json", "data.json.gz"} {
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, SaveSamples(path, samples))
		got, err := LoadSamples(path)
		require.NoError(t, err)
		if diff := cmp.Diff(samples, got); diff != "" {
			t.Fatalf("%s mismatch (-want +got):\n%s", name, diff)
		}
	}
}

func TestLoadSamples_UpstreamLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.json")
	body := `{"samples": [[[0.1, 0.2, 5, 30], [0.3, 0.4, 5, 60]]], "labels": [[0.01, 0.02]]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	got, err := LoadSamples(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Len())
	assert.Equal(t, 60.0, got[0].Horizon())
	assert.Equal(t, []float64{0.01, 0.02}, got[0].Label)
}

func TestLoadSamples_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}

	_, err := LoadSamples(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadSamples(write("misaligned.json", `{"samples": [[[1]]], "labels": []}`))
	assert.ErrorContains(t, err, "1 samples but 0 labels")

	_, err = LoadSamples(write("empty.json", `{"samples": [], "labels": []}`))
	assert.True(t, errors.Is(err, coredataset.ErrEmpty))

	_, err = LoadSamples(write("broken.json", `{"samples": [`))
	assert.ErrorContains(t, err, "decode")
}
