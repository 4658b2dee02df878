package services

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mindgrove/mindgrove-backend/internal/knowledge/gaps"
	"github.com/mindgrove/mindgrove-backend/internal/knowledge/graph"
	"github.com/mindgrove/mindgrove-backend/internal/knowledge/inference"
	"github.com/mindgrove/mindgrove-backend/internal/knowledge/similarity"
	"github.com/mindgrove/mindgrove-backend/internal/observability"
	"github.com/mindgrove/mindgrove-backend/internal/pkg/logger"
)

type KnowledgeService interface {
	Graph() *graph.ConceptGraph
	Refresh(ctx context.Context) error
	RunInference(ctx context.Context, ruleIDs []string, scope inference.Scope) ([]inference.InferredRelationship, inference.RunStats, error)
	DetectKnowledgeGaps(ctx context.Context, completed map[string]bool, targets []string, includeMinor bool) ([]gaps.KnowledgeGap, error)
	DiscoverClusters(ctx context.Context, opts similarity.ClusterOptions) ([]similarity.ConceptCluster, error)
	ConceptSimilarity(ctx context.Context, a, b string) (similarity.ConceptSimilarity, error)
	Registry() *inference.Registry
}

type knowledgeService struct {
	mu        sync.RWMutex
	graph     *graph.ConceptGraph
	source    CatalogSource
	registry  *inference.Registry
	engine    *inference.Engine
	detector  *gaps.Detector
	calc      *similarity.Calculator
	clusterer *similarity.Clusterer
	log       *logger.Logger
}

// NewKnowledgeService builds the reasoning stack over a catalog source. The
// graph starts empty until Refresh loads the catalog.
func NewKnowledgeService(source CatalogSource, registry *inference.Registry, baseLog *logger.Logger) KnowledgeService {
	log := baseLog.With("service", "KnowledgeService")
	calc := similarity.NewCalculator()
	clusterer := similarity.NewClusterer(calc, baseLog)
	return &knowledgeService{
		graph:     graph.NewConceptGraph(),
		source:    source,
		registry:  registry,
		engine:    inference.NewEngine(registry, calc, clusterer, baseLog),
		detector:  gaps.NewDetector(baseLog),
		calc:      calc,
		clusterer: clusterer,
		log:       log,
	}
}

func (s *knowledgeService) Graph() *graph.ConceptGraph {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph
}

func (s *knowledgeService) Registry() *inference.Registry { return s.registry }

// Refresh rebuilds the graph snapshot from the catalog source. Inferred
// edges from prior runs are discarded with the old snapshot.
func (s *knowledgeService) Refresh(ctx context.Context) error {
	if s.source == nil {
		return fmt.Errorf("knowledge: refresh: no catalog source configured")
	}
	concepts, relationships, err := s.source.LoadCatalog(ctx)
	if err != nil {
		return fmt.Errorf("knowledge: refresh: %w", err)
	}
	g, warnings := graph.BuildConceptGraph(concepts, relationships)
	for _, w := range warnings {
		s.log.Warn("catalog relationship skipped", "detail", w)
	}
	s.mu.Lock()
	s.graph = g
	s.mu.Unlock()
	s.log.Info("concept graph refreshed", "nodes", g.NodeCount(), "edges", g.EdgeCount(), "skipped_relationships", len(warnings))
	return nil
}

func (s *knowledgeService) RunInference(ctx context.Context, ruleIDs []string, scope inference.Scope) ([]inference.InferredRelationship, inference.RunStats, error) {
	ctx, span := observability.Tracer().Start(ctx, "knowledge.run_inference")
	defer span.End()

	// The engine writes virtual edges into the snapshot mid-run, so runs are
	// serialized against graph swaps and each other.
	s.mu.Lock()
	g := s.graph
	rels, stats := s.engine.Run(ctx, g, ruleIDs, scope)
	s.mu.Unlock()

	span.SetAttributes(
		attribute.Int("inference.emitted", stats.Emitted),
		attribute.Int("inference.rules_applied", stats.RulesApplied),
		attribute.Int("inference.rule_errors", len(stats.RuleErrors)),
	)
	return rels, stats, nil
}

func (s *knowledgeService) DetectKnowledgeGaps(ctx context.Context, completed map[string]bool, targets []string, includeMinor bool) ([]gaps.KnowledgeGap, error) {
	_, span := observability.Tracer().Start(ctx, "knowledge.detect_gaps")
	defer span.End()

	s.mu.RLock()
	g := s.graph
	s.mu.RUnlock()
	found := s.detector.Detect(g, completed, targets, includeMinor)
	span.SetAttributes(attribute.Int("gaps.found", len(found)))
	return found, nil
}

func (s *knowledgeService) DiscoverClusters(ctx context.Context, opts similarity.ClusterOptions) ([]similarity.ConceptCluster, error) {
	ctx, span := observability.Tracer().Start(ctx, "knowledge.discover_clusters")
	defer span.End()

	s.mu.RLock()
	g := s.graph
	s.mu.RUnlock()
	clusters, err := s.clusterer.Discover(ctx, g, opts)
	if err != nil {
		return nil, fmt.Errorf("knowledge: discover clusters: %w", err)
	}
	span.SetAttributes(attribute.Int("clusters.found", len(clusters)))
	return clusters, nil
}

func (s *knowledgeService) ConceptSimilarity(ctx context.Context, a, b string) (similarity.ConceptSimilarity, error) {
	s.mu.RLock()
	g := s.graph
	s.mu.RUnlock()
	return s.calc.Pairwise(g, a, b)
}
