package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/pkg/metriccheck"
	"github.com/Ramsey-B/clover/pkg/records"
	"github.com/Ramsey-B/clover/pkg/utils"
)

var (
	checkSamples int
	checkSeed    int64
	checkEpsilon float64

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Sample record triples and report triangle inequality violations of the recipe's measure",
		RunE:  runCheck,
	}
)

func init() {
	checkCmd.Flags().IntVar(&checkSamples, "samples", 100000, "number of triples to draw; 0 runs until interrupted")
	checkCmd.Flags().Int64Var(&checkSeed, "seed", metriccheck.DefaultSeed, "random seed")
	checkCmd.Flags().Float64Var(&checkEpsilon, "epsilon", metriccheck.DefaultEpsilon, "tolerance before a triple counts as a violation")
}

type violation struct {
	A  string  `json:"a"`
	B  string  `json:"b"`
	C  string  `json:"c"`
	AB float64 `json:"ab"`
	AC float64 `json:"ac"`
	BC float64 `json:"bc"`
}

type checkOutput struct {
	Measure    string      `json:"measure"`
	Checked    int         `json:"checked"`
	Violations []violation `json:"violations"`
}

func runCheck(cmd *cobra.Command, _ []string) error {
	if err := utils.ValidateValue(checkSamples, "gte=0"); err != nil {
		return fmt.Errorf("invalid --samples: %w", err)
	}
	if err := utils.ValidateValue(checkEpsilon, "gte=0"); err != nil {
		return fmt.Errorf("invalid --epsilon: %w", err)
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, needs{sql: true})
	if err != nil {
		return err
	}
	defer a.close(ctx)

	recipe, err := a.linkageRecipe()
	if err != nil {
		return err
	}
	stored, _, err := recipe.Load(ctx, a.logger)
	if err != nil {
		return err
	}
	metric, err := recipe.NewMetric()
	if err != nil {
		return err
	}

	report, err := metriccheck.CheckTriangleInequality(ctx, stored,
		[]metriccheck.NamedMetric[records.Record]{{Name: metric.Name(), Metric: metric}},
		metriccheck.Config{
			Samples:     checkSamples,
			Epsilon:     checkEpsilon,
			Seed:        checkSeed,
			ReportEvery: metriccheck.DefaultReportEvery,
		}, a.logger)
	if err != nil && ctx.Err() == nil {
		return err
	}

	out := checkOutput{Measure: metric.Name(), Checked: report.Checked, Violations: []violation{}}
	for _, v := range report.Violations {
		out.Violations = append(out.Violations, violation{
			A: v.A.ID(), B: v.B.ID(), C: v.C.ID(),
			AB: v.AB, AC: v.AC, BC: v.BC,
		})
	}
	return writeJSON(cmd.OutOrStdout(), out)
}
