package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/pkg/resolver"
)

var (
	sweepJSON bool

	sweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Run report-mode resolution over a grid of cluster sizes and thresholds",
		RunE:  runSweep,
	}
)

func init() {
	sweepCmd.Flags().BoolVar(&sweepJSON, "json", false, "print every report as JSON instead of a table")
}

func runSweep(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, needs{sql: true, graph: true})
	if err != nil {
		return err
	}
	defer a.close(ctx)

	r, err := a.resolver(ctx, false, true)
	if err != nil {
		return err
	}

	res, err := r.Sweep(ctx, a.recipe.SweepRanges())
	if err != nil {
		return err
	}

	if sweepJSON {
		return writeJSON(cmd.OutOrStdout(), res)
	}
	return writeSweepTable(cmd.OutOrStdout(), res)
}

func writeSweepTable(w io.Writer, res *resolver.SweepResult) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MIN CLUSTER\tHDRT\tLDRT\tCLUSTERS\tADDED\tREMOVED\tUNRESOLVED\tCORRECT\tINCORRECT\tSCORE")
	for _, report := range res.Reports {
		writeSweepRow(tw, report)
	}
	if res.Best != nil {
		fmt.Fprintln(tw, "BEST")
		writeSweepRow(tw, res.Best)
	}
	return tw.Flush()
}

func writeSweepRow(w io.Writer, r *resolver.Report) {
	s := r.Stats
	fmt.Fprintf(w, "%d\t%.2f\t%.2f\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
		r.MinClusterSize, r.HDRT, r.LDRT, s.Clusters, s.Added, s.Removed, s.Unresolved, s.Correct, s.Incorrect, s.Score())
}
