// Package export writes evaluation reports and training histories in
// formats meant for people and spreadsheets.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/vrf/core/evaluation"
)

// WriteJSON writes the report to w in indented JSON format.
func WriteJSON(w io.Writer, r *evaluation.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteYAML writes the report to w in YAML format. Undefined bins carry a
// null mean_error.
func WriteYAML(w io.Writer, r *evaluation.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return err
	}
	return enc.Close()
}

// WriteCSV writes one row per horizon bin. The mean error of an empty bin
// is left blank.
func WriteCSV(w io.Writer, r *evaluation.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"lo_s", "hi_s", "count", "mean_error_m"}); err != nil {
		return err
	}
	for _, b := range r.Bins {
		mean := ""
		if b.Defined() {
			mean = formatFloat(*b.MeanError)
		}
		rec := []string{formatFloat(b.Lo), formatFloat(b.Hi), strconv.Itoa(b.Count), mean}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteInstancesCSV writes the per-sample errors of the report.
func WriteInstancesCSV(w io.Writer, r *evaluation.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"index", "horizon_s", "error_m"}); err != nil {
		return err
	}
	for _, in := range r.Instances {
		if err := cw.Write([]string{strconv.Itoa(in.Index), formatFloat(in.Horizon), formatFloat(in.Error)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
