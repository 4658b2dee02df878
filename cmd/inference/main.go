package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mindgrove/mindgrove-backend/internal/app"
	"github.com/mindgrove/mindgrove-backend/internal/knowledge/inference"
)

// Loads the concept catalog, runs every active inference rule over it,
// discovers concept clusters, and reports run statistics.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close(context.Background())
	defer a.Log.Sync()

	if err := run(ctx, a); err != nil {
		a.Log.Error("inference run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App) error {
	if err := a.Knowledge.Refresh(ctx); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	g := a.Knowledge.Graph()
	a.Log.Info("catalog loaded", "concepts", g.NodeCount(), "relationships", g.EdgeCount())

	inferred, stats, err := a.Knowledge.RunInference(ctx, nil, inference.Scope{})
	if err != nil {
		return fmt.Errorf("run inference: %w", err)
	}
	a.Log.Info("inference complete",
		"rules_applied", stats.RulesApplied,
		"inferred", stats.Emitted,
		"duplicates_skipped", stats.DuplicatesSkipped,
		"similar_pairs", stats.SimilarPairs,
		"elapsed", stats.Elapsed,
	)
	for ruleID, ruleErr := range stats.RuleErrors {
		a.Log.Warn("rule failed", "rule_id", ruleID, "error", ruleErr)
	}
	for _, rel := range inferred {
		a.Log.Debug("inferred relationship",
			"source", rel.Source,
			"target", rel.Target,
			"type", rel.Type,
			"rule_id", rel.RuleID,
			"confidence", rel.Band.String(),
			"score", rel.Score,
		)
	}

	clusters, err := a.Knowledge.DiscoverClusters(ctx, a.Cfg.Clustering)
	if err != nil {
		return fmt.Errorf("discover clusters: %w", err)
	}
	for _, c := range clusters {
		a.Log.Info("cluster discovered",
			"cluster_id", c.ID,
			"size", len(c.Members),
			"centroid", c.Centroid,
			"cohesion", c.Cohesion,
			"primary_subject", c.PrimarySubject,
		)
	}
	a.Log.Info("done", "clusters", len(clusters))
	return nil
}
