package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kilianp07/vrf/app"
	"github.com/kilianp07/vrf/config"
	"github.com/kilianp07/vrf/core/evaluation"
	"github.com/kilianp07/vrf/core/training"
	infradataset "github.com/kilianp07/vrf/infra/dataset"
	"github.com/kilianp07/vrf/pkg/export"
)

var evalOpts struct {
	checkpoint string
	data       string
	format     string
	out        string
	plot       string
	chart      string
	instances  bool
}

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a checkpoint on a sample file",
	RunE:  runEvaluate,
}

func init() {
	f := evaluateCmd.Flags()
	f.StringVar(&evalOpts.checkpoint, "checkpoint", "best.json", "checkpoint path, relative to checkpoint.dir")
	f.StringVar(&evalOpts.data, "data", "", "samples to evaluate, defaults to data.test_path")
	f.StringVar(&evalOpts.format, "format", "text", "report format: text, json, yaml or csv")
	f.StringVarP(&evalOpts.out, "out", "o", "", "write the report to this file instead of stdout")
	f.StringVar(&evalOpts.plot, "plot", "", "save a per-bin error plot (png, svg or pdf)")
	f.StringVar(&evalOpts.chart, "chart", "", "save an HTML page with the loss history and bin errors")
	f.BoolVar(&evalOpts.instances, "instances", false, "write per-sample errors as csv")
	rootCmd.AddCommand(evaluateCmd)
}

func runEvaluate(cmd *cobra.Command, _ []string) error {
	return withService(func(ctx context.Context, cfg *config.Config, svc *app.Service) error {
		path := evalOpts.data
		if path == "" {
			path = cfg.Data.TestPath
		}
		if path == "" {
			return fmt.Errorf("evaluate: --data or data.test_path is required")
		}
		samples, err := infradataset.LoadSamples(path)
		if err != nil {
			return err
		}
		rep, err := svc.Evaluate(ctx, evalOpts.checkpoint, samples)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		if evalOpts.out != "" {
			f, err := os.Create(evalOpts.out)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			w = f
		}
		if err := writeReport(w, evalOpts.format, rep); err != nil {
			return err
		}
		if evalOpts.plot != "" {
			if err := export.SaveBinPlot(evalOpts.plot, rep); err != nil {
				return err
			}
		}
		if evalOpts.chart != "" {
			rec, err := svc.LoadCheckpoint(ctx, evalOpts.checkpoint)
			if err != nil {
				return err
			}
			h := training.NewHistory(0)
			h.Restore(rec.TrainLoss, rec.DevLoss, rec.EpochsRun())
			f, err := os.Create(evalOpts.chart)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()
			if err := export.ReportPage(f, "run "+rec.RunID, h, rep); err != nil {
				return err
			}
		}
		return nil
	})
}

func writeReport(w io.Writer, format string, r *evaluation.Report) error {
	switch strings.ToLower(format) {
	case "text", "":
		_, err := fmt.Fprintln(w, r.Summary())
		return err
	case "json":
		return export.WriteJSON(w, r)
	case "yaml", "yml":
		return export.WriteYAML(w, r)
	case "csv":
		if evalOpts.instances {
			return export.WriteInstancesCSV(w, r)
		}
		return export.WriteCSV(w, r)
	default:
		return fmt.Errorf("evaluate: unknown format %q", format)
	}
}
