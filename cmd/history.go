package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/vrf/config"
	"github.com/kilianp07/vrf/infra/history"
)

var histOpts struct {
	run   string
	since time.Duration
	limit int
	json  bool
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded training epochs",
	RunE:  runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&histOpts.run, "run", "", "only show this run")
	f.DurationVar(&histOpts.since, "since", 0, "only show epochs recorded within this duration")
	f.IntVar(&histOpts.limit, "limit", 50, "maximum number of records, 0 for all")
	f.BoolVar(&histOpts.json, "json", false, "print records as JSON lines")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.History.Enabled() {
		return fmt.Errorf("history: backend is none")
	}
	store, err := history.New(cfg.History.Module())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	q := history.Query{RunID: histOpts.run, Limit: histOpts.limit}
	if histOpts.since > 0 {
		q.Since = time.Now().Add(-histOpts.since)
	}
	recs, err := store.Query(context.Background(), q)
	if err != nil {
		return err
	}
	if histOpts.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, r := range recs {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "RUN\tEPOCH\tTRAIN\tDEV\tBEST\tSKIPPED\tMEAN ERROR\tTIME")
	for _, r := range recs {
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%.5f\t%.5f\t%s\t%d/%d\t%s\t%s\n",
			r.RunID, r.Epoch, r.TrainLoss, r.DevLoss, optFloat(r.Best), r.Skipped, r.Batches,
			optFloat(r.MeanError), r.Time.Format(time.RFC3339))
	}
	return tw.Flush()
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 5, 64)
}
