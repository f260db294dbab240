package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/pkg/linkage"
	"github.com/Ramsey-B/clover/pkg/quality"
	"github.com/Ramsey-B/clover/pkg/records"
)

var (
	persistLinks  bool
	evaluateLinks bool
	closestOnly   bool
	sweepStep     float64

	linkCmd = &cobra.Command{
		Use:   "link",
		Short: "Link the recipe's records and optionally evaluate and persist the links",
		RunE:  runLink,
	}
)

func init() {
	linkCmd.Flags().BoolVar(&persistLinks, "persist", false, "write links to the graph store and event stream")
	linkCmd.Flags().BoolVar(&evaluateLinks, "evaluate", false, "judge links against the recipe's ground truth")
	linkCmd.Flags().BoolVar(&closestOnly, "closest-only", false, "keep only the nearest links of each query record")
	linkCmd.Flags().Float64Var(&sweepStep, "sweep-step", 0, "also report quality at every multiple of this threshold step")
}

type linkOutput struct {
	RunID      string                    `json:"run_id"`
	Recipe     string                    `json:"recipe"`
	Stored     int                       `json:"stored_records"`
	Query      int                       `json:"query_records"`
	Links      int                       `json:"links"`
	TrueLinks  int                       `json:"true_links,omitempty"`
	Quality    *quality.Result           `json:"quality,omitempty"`
	Thresholds []quality.ThresholdResult `json:"thresholds,omitempty"`
	Persisted  *linkage.PersistResult    `json:"persisted,omitempty"`
}

func runLink(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, needs{sql: true, graph: persistLinks, kafka: persistLinks})
	if err != nil {
		return err
	}
	defer a.close(ctx)

	recipe, err := a.linkageRecipe()
	if err != nil {
		return err
	}
	stored, query, err := recipe.Load(ctx, a.logger)
	if err != nil {
		return err
	}

	metric, err := recipe.NewMetric()
	if err != nil {
		return err
	}
	factory, err := a.recipe.SearchFactory(metric, a.cfg.Workers, a.logger)
	if err != nil {
		return err
	}

	cfg := a.recipe.LinkerConfig(a.cfg.ProgressUpdates)
	cfg.FieldsPopulated = recipe.FieldsPopulated
	cfg.Viable = recipe.Viable
	linker, err := linkage.NewLinker(cfg, metric, factory, a.logger)
	if err != nil {
		return err
	}

	var links []linkage.Link
	if closestOnly {
		lists, err := linker.Lists(ctx, stored, query)
		if err != nil {
			return err
		}
		links = linkage.ClosestOnly(lists)
	} else {
		set, err := linker.Link(ctx, stored, query)
		if err != nil {
			return err
		}
		links = set.Links()
	}

	out := linkOutput{
		RunID:  a.runID,
		Recipe: recipe.Name,
		Stored: len(stored),
		Query:  len(query),
		Links:  len(links),
	}

	if evaluateLinks {
		if recipe.Oracle == nil || recipe.TrueLinks == nil {
			return fmt.Errorf("recipe %s has no ground truth to evaluate against", recipe.Name)
		}
		evaluator := quality.NewEvaluator(recipe.Oracle, records.NewIndex(stored), records.NewIndex(query), a.cfg.Workers, a.logger)
		out.TrueLinks = recipe.TrueLinks(stored, query)

		res, err := evaluator.Evaluate(ctx, links, out.TrueLinks)
		if err != nil {
			return err
		}
		out.Quality = &res

		if sweepStep > 0 {
			out.Thresholds, err = evaluator.Sweep(ctx, links, out.TrueLinks, quality.SweepConfig{
				Step: sweepStep,
				Max:  cfg.Threshold,
			})
			if err != nil {
				return err
			}
		}
	}

	if persistLinks {
		if len(recipe.Writers) == 0 {
			return fmt.Errorf("no link store is enabled: set GRAPH_ENABLED or KAFKA_ENABLED")
		}
		res, err := linkage.Persist(ctx, links, a.logger, recipe.Writers...)
		if err != nil {
			return err
		}
		out.Persisted = &res
	}

	return writeJSON(cmd.OutOrStdout(), out)
}
