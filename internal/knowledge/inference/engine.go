package inference

import (
	"context"
	"fmt"
	"time"

	"github.com/mindgrove/mindgrove-backend/internal/knowledge/graph"
	"github.com/mindgrove/mindgrove-backend/internal/knowledge/similarity"
	"github.com/mindgrove/mindgrove-backend/internal/pkg/logger"
)

// Band buckets a numeric confidence score.
type Band int

const (
	BandLow Band = iota
	BandMedium
	BandHigh
)

func (b Band) String() string {
	switch b {
	case BandHigh:
		return "high"
	case BandMedium:
		return "medium"
	default:
		return "low"
	}
}

func bandFor(score float64) Band {
	switch {
	case score >= 0.8:
		return BandHigh
	case score >= 0.5:
		return BandMedium
	default:
		return BandLow
	}
}

// InferredRelationship is one derived edge produced by a rule application.
type InferredRelationship struct {
	Source string
	Target string
	Type   string
	RuleID string
	Band   Band
	Score  float64
	Path   []string
	Hops   int
}

// RunStats is the diagnostic record returned alongside inference output.
// Rule failures land here instead of aborting the run.
type RunStats struct {
	RulesApplied      int
	Emitted           int
	DuplicatesSkipped int
	SimilarPairs      int
	ClustersFound     int
	RuleErrors        map[string]string
	Elapsed           time.Duration
}

// Scope optionally restricts a run to a subject or an explicit concept set.
type Scope struct {
	SubjectID  string
	ConceptIDs []string
}

func (s Scope) allows(n *graph.ConceptNode) bool {
	if n == nil {
		return false
	}
	if s.SubjectID != "" && n.SubjectID != s.SubjectID {
		return false
	}
	if len(s.ConceptIDs) > 0 {
		found := false
		for _, id := range s.ConceptIDs {
			if id == n.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Engine applies the registered rules to a graph snapshot. Rules are
// independent and order-insensitive across kinds; transitive chaining is
// sequential relative to itself because derived edges are written back into
// the snapshot as virtual edges mid-run.
type Engine struct {
	registry  *Registry
	calc      *similarity.Calculator
	clusterer *similarity.Clusterer
	log       *logger.Logger
}

func NewEngine(registry *Registry, calc *similarity.Calculator, clusterer *similarity.Clusterer, baseLog *logger.Logger) *Engine {
	return &Engine{
		registry:  registry,
		calc:      calc,
		clusterer: clusterer,
		log:       baseLog.With("engine", "Inference"),
	}
}

// Run applies the selected active rules (all active rules when ruleIDs is
// empty) and returns the newly derived relationships plus run statistics.
// Re-running against the same graph state derives nothing new: every emitted
// relationship is committed to the snapshot as a virtual edge, and emission
// is suppressed when the (source, target, type) edge already exists.
func (e *Engine) Run(ctx context.Context, g *graph.ConceptGraph, ruleIDs []string, scope Scope) ([]InferredRelationship, RunStats) {
	start := time.Now()
	stats := RunStats{RuleErrors: make(map[string]string)}
	var out []InferredRelationship

	for _, rule := range e.registry.Active(ruleIDs) {
		rels, err := e.applyRule(ctx, g, rule, scope, &stats)
		if err != nil {
			stats.RuleErrors[rule.ID] = err.Error()
			e.log.Warn("rule application failed", "rule_id", rule.ID, "kind", rule.Kind.String(), "error", err)
			continue
		}
		stats.RulesApplied++
		stats.Emitted += len(rels)
		out = append(out, rels...)
	}

	stats.Elapsed = time.Since(start)
	e.log.Debug("inference run complete",
		"rules_applied", stats.RulesApplied,
		"emitted", stats.Emitted,
		"duplicates_skipped", stats.DuplicatesSkipped,
		"rule_errors", len(stats.RuleErrors),
		"elapsed", stats.Elapsed,
	)
	return out, stats
}

// applyRule dispatches on the rule kind. A panic inside one rule is
// contained here so the remaining rules still execute.
func (e *Engine) applyRule(ctx context.Context, g *graph.ConceptGraph, rule Rule, scope Scope, stats *RunStats) (rels []InferredRelationship, err error) {
	defer func() {
		if r := recover(); r != nil {
			rels = nil
			err = fmt.Errorf("inference: rule %s: recovered: %v", rule.ID, r)
		}
	}()

	switch rule.Kind {
	case KindTransitive:
		return e.applyTransitive(g, rule, scope, stats), nil
	case KindSymmetric:
		return e.applySymmetric(g, rule, scope, stats), nil
	case KindInverse:
		return e.applyInverse(g, rule, scope, stats), nil
	case KindSimilarity:
		// Similarity rules emit no relationships of their own; qualifying
		// pairs are promoted to similar_to edges so the symmetric rules and
		// the recommendation surface can see them.
		sims, serr := e.calc.Matrix(ctx, g, 0)
		if serr != nil {
			return nil, serr
		}
		for _, s := range sims {
			if !s.RecommendedForReview() {
				continue
			}
			stats.SimilarPairs++
			if g.HasEdgeOfType(s.A, s.B, graph.RelSimilarTo) {
				stats.DuplicatesSkipped++
				continue
			}
			if perr := similarity.Promote(g, s, rule.ID); perr != nil {
				return nil, perr
			}
		}
		return nil, nil
	case KindCluster:
		clusters, cerr := e.clusterer.Discover(ctx, g, similarity.DefaultClusterOptions())
		if cerr != nil {
			return nil, cerr
		}
		stats.ClustersFound += len(clusters)
		return nil, nil
	default:
		return nil, fmt.Errorf("inference: rule %s: unknown kind %d", rule.ID, rule.Kind)
	}
}

// pathConfidence decays with hop count: shorter derivations are more
// trustworthy. Floored at 0.3 so long chains stay visible as LOW rather
// than vanishing.
func pathConfidence(hops int) float64 {
	c := 1 - (float64(hops)/5)*0.5
	if c < 0.3 {
		return 0.3
	}
	return c
}

func (e *Engine) ruleAllows(g *graph.ConceptGraph, rule Rule, scope Scope, id string) bool {
	n, ok := g.Node(id)
	if !ok || !scope.allows(n) {
		return false
	}
	if rule.SubjectFilter != "" && n.SubjectID != rule.SubjectFilter {
		return false
	}
	if rule.MaxDifficulty != 0 && n.Difficulty > rule.MaxDifficulty {
		return false
	}
	return true
}

func (e *Engine) applyTransitive(g *graph.ConceptGraph, rule Rule, scope Scope, stats *RunStats) []InferredRelationship {
	p := rule.SourcePredicate
	targetType := derivedPredicate(rule)
	var out []InferredRelationship

	for _, start := range g.Nodes() {
		if !e.ruleAllows(g, rule, scope, start.ID) {
			continue
		}
		// Paths come back shortest-first, so the first derivation for a pair
		// is the highest-confidence one.
		paths := g.FindAllPaths(start.ID, rule.MaxHops, func(ed graph.EdgeData) bool { return ed.Type == p })
		for _, path := range paths {
			hops := path.Hops()
			if hops < 2 {
				continue
			}
			end := path.Nodes[len(path.Nodes)-1]
			if !e.ruleAllows(g, rule, scope, end) {
				continue
			}
			if g.HasEdgeOfType(start.ID, end, p) {
				continue
			}
			if g.HasEdgeOfType(start.ID, end, targetType) {
				stats.DuplicatesSkipped++
				continue
			}
			score := rule.ConfidenceWeight * pathConfidence(hops)
			rel := InferredRelationship{
				Source: start.ID,
				Target: end,
				Type:   targetType,
				RuleID: rule.ID,
				Band:   bandFor(score),
				Score:  score,
				Path:   path.Nodes,
				Hops:   hops,
			}
			out = append(out, rel)
			_ = g.AddEdge(graph.EdgeData{
				Source:     start.ID,
				Target:     end,
				Type:       targetType,
				Weight:     score,
				Inferred:   true,
				Confidence: score,
				RuleID:     rule.ID,
			})
		}
	}
	return out
}

func (e *Engine) applySymmetric(g *graph.ConceptGraph, rule Rule, scope Scope, stats *RunStats) []InferredRelationship {
	p := rule.SourcePredicate
	var out []InferredRelationship
	for _, edge := range g.Edges() {
		if edge.Type != p {
			continue
		}
		if edge.Inferred && edge.RuleID == rule.ID {
			continue
		}
		if !e.ruleAllows(g, rule, scope, edge.Source) || !e.ruleAllows(g, rule, scope, edge.Target) {
			continue
		}
		if g.HasEdgeOfType(edge.Target, edge.Source, p) {
			stats.DuplicatesSkipped++
			continue
		}
		score := rule.ConfidenceWeight * 0.8
		out = append(out, InferredRelationship{
			Source: edge.Target,
			Target: edge.Source,
			Type:   p,
			RuleID: rule.ID,
			Band:   bandFor(score),
			Score:  score,
			Path:   []string{edge.Target, edge.Source},
			Hops:   1,
		})
		_ = g.AddEdge(graph.EdgeData{
			Source:     edge.Target,
			Target:     edge.Source,
			Type:       p,
			Weight:     score,
			Inferred:   true,
			Confidence: score,
			RuleID:     rule.ID,
		})
	}
	return out
}

func (e *Engine) applyInverse(g *graph.ConceptGraph, rule Rule, scope Scope, stats *RunStats) []InferredRelationship {
	p := rule.SourcePredicate
	inv := inversePredicate(p)
	var out []InferredRelationship
	for _, edge := range g.Edges() {
		if edge.Type != p {
			continue
		}
		if edge.Inferred && edge.RuleID == rule.ID {
			continue
		}
		if !e.ruleAllows(g, rule, scope, edge.Source) || !e.ruleAllows(g, rule, scope, edge.Target) {
			continue
		}
		if g.HasEdgeOfType(edge.Target, edge.Source, inv) {
			stats.DuplicatesSkipped++
			continue
		}
		score := rule.ConfidenceWeight * 0.9
		out = append(out, InferredRelationship{
			Source: edge.Target,
			Target: edge.Source,
			Type:   inv,
			RuleID: rule.ID,
			Band:   bandFor(score),
			Score:  score,
			Path:   []string{edge.Target, edge.Source},
			Hops:   1,
		})
		_ = g.AddEdge(graph.EdgeData{
			Source:     edge.Target,
			Target:     edge.Source,
			Type:       inv,
			Weight:     score,
			Inferred:   true,
			Confidence: score,
			RuleID:     rule.ID,
		})
	}
	return out
}
