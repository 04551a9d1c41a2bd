package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/vrf/app"
	"github.com/kilianp07/vrf/config"
)

var trainOpts struct {
	train    string
	dev      string
	test     string
	resume   string
	simulate bool
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a forecast model",
	Long: `Train a forecast model on the configured sample files, or on a
simulated fleet with --simulate. Checkpoints are written to checkpoint.dir.
Interrupting the command stops the run once the current epoch finishes.`,
	RunE: runTrain,
}

func init() {
	f := trainCmd.Flags()
	f.StringVar(&trainOpts.train, "train", "", "training samples, overrides data.train_path")
	f.StringVar(&trainOpts.dev, "dev", "", "validation samples, overrides data.dev_path")
	f.StringVar(&trainOpts.test, "test", "", "held out samples, overrides data.test_path")
	f.StringVar(&trainOpts.resume, "resume", "", "checkpoint to continue from")
	f.BoolVar(&trainOpts.simulate, "simulate", false, "train on samples from the fleet simulator")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, _ []string) error {
	return withService(func(ctx context.Context, cfg *config.Config, svc *app.Service) error {
		data, err := trainData(cfg)
		if err != nil {
			return err
		}
		out, err := svc.Train(ctx, data, trainOpts.resume)
		if out != nil && out.Result != nil {
			w := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(w, "run %s: %d epochs", out.RunID, out.Result.Epochs)
			if out.Result.Stopped {
				_, _ = fmt.Fprint(w, " (early stop)")
			}
			_, _ = fmt.Fprintln(w)
			if out.Test != nil {
				_, _ = fmt.Fprintf(w, "test: %s\n", out.Test.Summary())
			}
		}
		if errors.Is(err, context.Canceled) {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "training interrupted")
			return nil
		}
		return err
	})
}

func trainData(cfg *config.Config) (*app.Data, error) {
	if trainOpts.simulate {
		return app.SimulatedData(cfg)
	}
	dc := cfg.Data
	if trainOpts.train != "" {
		dc.TrainPath = trainOpts.train
	}
	if trainOpts.dev != "" {
		dc.DevPath = trainOpts.dev
	}
	if trainOpts.test != "" {
		dc.TestPath = trainOpts.test
	}
	return app.LoadData(dc)
}
