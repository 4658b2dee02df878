package similarity

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mindgrove/mindgrove-backend/internal/knowledge/graph"
	pkgerrors "github.com/mindgrove/mindgrove-backend/internal/pkg/errors"
)

// Component weights of the overall similarity score.
const (
	tagWeight        = 0.30
	keywordWeight    = 0.30
	objectiveWeight  = 0.25
	structuralWeight = 0.15
)

// ConceptSimilarity is the derived similarity between an unordered concept
// pair. A is always the lexicographically smaller ID. Similarities are never
// persisted as relationships unless explicitly promoted.
type ConceptSimilarity struct {
	A          string
	B          string
	Tag        float64
	Keyword    float64
	Objective  float64
	Structural float64
	Overall    float64
}

// RecommendedAsPrerequisite flags pairs with high conceptual but low tag
// overlap, which tends to indicate a foundational relation rather than a
// sibling topic.
func (s ConceptSimilarity) RecommendedAsPrerequisite() bool {
	return s.Overall > 0.7 && s.Tag < 0.3
}

func (s ConceptSimilarity) RecommendedForReview() bool {
	return s.Overall > 0.6
}

// Calculator computes attribute-overlap and structural similarity over a
// graph snapshot.
type Calculator struct{}

func NewCalculator() *Calculator { return &Calculator{} }

// Pairwise scores one concept pair. Both concepts must exist in the graph.
func (c *Calculator) Pairwise(g *graph.ConceptGraph, a, b string) (ConceptSimilarity, error) {
	na, ok := g.Node(a)
	if !ok {
		return ConceptSimilarity{}, fmt.Errorf("similarity: %s: %w", a, pkgerrors.ErrUnknownConcept)
	}
	nb, ok := g.Node(b)
	if !ok {
		return ConceptSimilarity{}, fmt.Errorf("similarity: %s: %w", b, pkgerrors.ErrUnknownConcept)
	}
	if a > b {
		a, b = b, a
		na, nb = nb, na
	}
	s := ConceptSimilarity{
		A:          a,
		B:          b,
		Tag:        jaccard(na.Tags, nb.Tags),
		Keyword:    jaccard(na.Keywords, nb.Keywords),
		Objective:  jaccard(na.Objectives, nb.Objectives),
		Structural: jaccard(g.AllNeighbors(a), g.AllNeighbors(b)),
	}
	s.Overall = s.Tag*tagWeight + s.Keyword*keywordWeight + s.Objective*objectiveWeight + s.Structural*structuralWeight
	return s, nil
}

// Matrix computes all pairwise similarities with overall >= minOverall.
// Pairs are independent reads of the snapshot, so the work fans out across
// workers; the result is sorted descending by overall score with a stable
// pair-key tiebreak.
func (c *Calculator) Matrix(ctx context.Context, g *graph.ConceptGraph, minOverall float64) ([]ConceptSimilarity, error) {
	nodes := g.Nodes()
	type pair struct{ a, b string }
	var pairs []pair
	for i := 0; i < len(nodes); i++ {
		for j := i + 1; j < len(nodes); j++ {
			pairs = append(pairs, pair{nodes[i].ID, nodes[j].ID})
		}
	}

	var mu sync.Mutex
	var out []ConceptSimilarity
	eg, ctx := errgroup.WithContext(ctx)
	workers := runtime.GOMAXPROCS(0)
	if workers > len(pairs) {
		workers = len(pairs)
	}
	chunk := 0
	if workers > 0 {
		chunk = (len(pairs) + workers - 1) / workers
	}
	for start := 0; start < len(pairs); start += chunk {
		end := start + chunk
		if end > len(pairs) {
			end = len(pairs)
		}
		batch := pairs[start:end]
		eg.Go(func() error {
			local := make([]ConceptSimilarity, 0, len(batch))
			for _, p := range batch {
				if err := ctx.Err(); err != nil {
					return err
				}
				s, err := c.Pairwise(g, p.a, p.b)
				if err != nil {
					return err
				}
				if s.Overall >= minOverall {
					local = append(local, s)
				}
			}
			mu.Lock()
			out = append(out, local...)
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Overall != out[j].Overall {
			return out[i].Overall > out[j].Overall
		}
		if out[i].A != out[j].A {
			return out[i].A < out[j].A
		}
		return out[i].B < out[j].B
	})
	return out, nil
}

// Promote materializes a similarity as a pair of similar_to edges in the
// graph snapshot. This is the only way a similarity becomes a relationship.
func Promote(g *graph.ConceptGraph, s ConceptSimilarity, ruleID string) error {
	for _, e := range []graph.EdgeData{
		{Source: s.A, Target: s.B, Type: graph.RelSimilarTo, Weight: s.Overall, Inferred: true, Confidence: s.Overall, RuleID: ruleID},
		{Source: s.B, Target: s.A, Type: graph.RelSimilarTo, Weight: s.Overall, Inferred: true, Confidence: s.Overall, RuleID: ruleID},
	} {
		if err := g.AddEdge(e); err != nil {
			return err
		}
	}
	return nil
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]bool, len(a))
	for _, v := range a {
		setA[normalizeToken(v)] = true
	}
	inter := 0
	setB := make(map[string]bool, len(b))
	for _, v := range b {
		k := normalizeToken(v)
		if setB[k] {
			continue
		}
		setB[k] = true
		if setA[k] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
