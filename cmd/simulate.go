package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/vrf/config"
	infradataset "github.com/kilianp07/vrf/infra/dataset"
	"github.com/kilianp07/vrf/simulator"
)

var simOpts struct {
	out      string
	vessels  int
	seed     uint64
	maneuver float64
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate a sample file from the fleet simulator",
	RunE:  runSimulate,
}

func init() {
	f := simulateCmd.Flags()
	f.StringVarP(&simOpts.out, "out", "o", "samples.json.gz", "output file (.json or .json.gz)")
	f.IntVar(&simOpts.vessels, "vessels", 0, "number of vessels, overrides simulator.vessels")
	f.Uint64Var(&simOpts.seed, "seed", 0, "random seed, overrides simulator.seed")
	f.Float64Var(&simOpts.maneuver, "maneuver-pct", -1, "share of turning vessels, overrides simulator.maneuver_pct")
	rootCmd.AddCommand(simulateCmd)
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	sc := cfg.Simulator
	if simOpts.vessels > 0 {
		sc.Vessels = simOpts.vessels
	}
	if simOpts.seed > 0 {
		sc.Seed = simOpts.seed
	}
	if simOpts.maneuver >= 0 {
		sc.ManeuverPct = simOpts.maneuver
	}
	if err := sc.Validate(); err != nil {
		return err
	}
	samples := simulator.Dataset(sc)
	if err := infradataset.SaveSamples(simOpts.out, samples); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d samples from %d vessels to %s\n", len(samples), sc.Vessels, simOpts.out)
	return err
}
