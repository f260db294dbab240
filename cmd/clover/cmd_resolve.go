package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/resolver"
)

var (
	repairGraph bool
	withRecords bool

	resolveCmd = &cobra.Command{
		Use:   "resolve",
		Short: "Examine the triangles of the link graph and report or repair inconsistencies",
		RunE:  runResolve,
	}
)

func init() {
	resolveCmd.Flags().BoolVar(&repairGraph, "repair", false, "apply the proposed edge additions and removals")
	resolveCmd.Flags().BoolVar(&withRecords, "with-records", false, "load records to measure unlinked pairs and score actions against ground truth")
}

type resolveOutput struct {
	RunID  string               `json:"run_id"`
	Before graph.PatternCounts  `json:"before"`
	After  *graph.PatternCounts `json:"after,omitempty"`
	Report *resolver.Report     `json:"report"`
}

func runResolve(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, needs{sql: withRecords, graph: true, kafka: repairGraph})
	if err != nil {
		return err
	}
	defer a.close(ctx)

	r, err := a.resolver(ctx, repairGraph, withRecords)
	if err != nil {
		return err
	}

	out := resolveOutput{RunID: a.runID}
	out.Before, err = a.store.PatternCounts(ctx, r.Config().LinkType)
	if err != nil {
		return err
	}

	out.Report, err = r.Resolve(ctx)
	if err != nil {
		return err
	}

	if repairGraph {
		after, err := a.store.PatternCounts(ctx, r.Config().LinkType)
		if err != nil {
			return err
		}
		out.After = &after
	}
	return writeJSON(cmd.OutOrStdout(), out)
}

// resolver builds a resolver over the graph store. In repair mode changes are also published as
// link events when the event stream is enabled.
func (a *app) resolver(ctx context.Context, repair, loadRecords bool) (*resolver.Resolver, error) {
	if a.store == nil {
		return nil, fmt.Errorf("resolution needs the graph store: set GRAPH_ENABLED=true")
	}

	cfg, err := a.recipe.ResolverConfig(repair)
	if err != nil {
		return nil, err
	}

	if loadRecords {
		recipe, err := a.linkageRecipe()
		if err != nil {
			return nil, err
		}
		stored, query, err := recipe.Load(ctx, a.logger)
		if err != nil {
			return nil, err
		}
		metric, err := recipe.NewMetric()
		if err != nil {
			return nil, err
		}
		cfg.Distance = distanceFunc(metric, stored, query)
		if recipe.Oracle != nil {
			cfg.Truth = truthFunc(recipe.Oracle, stored, query)
		}
	}

	var writer resolver.GraphWriter = a.store
	if a.producer != nil {
		writer = resolver.Tee(a.store, a.producer)
	}
	return resolver.NewResolver(a.store, writer, cfg, a.logger)
}
