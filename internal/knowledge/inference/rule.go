package inference

import (
	"fmt"
	"sync"

	"github.com/mindgrove/mindgrove-backend/internal/knowledge/graph"
	pkgerrors "github.com/mindgrove/mindgrove-backend/internal/pkg/errors"
)

// RuleKind is the closed set of inference rule behaviors. Adding a kind means
// adding a handler arm in the engine's switch.
type RuleKind int

const (
	KindTransitive RuleKind = iota
	KindSymmetric
	KindInverse
	KindSimilarity
	KindCluster
)

func (k RuleKind) String() string {
	switch k {
	case KindTransitive:
		return "transitive"
	case KindSymmetric:
		return "symmetric"
	case KindInverse:
		return "inverse"
	case KindSimilarity:
		return "similarity"
	case KindCluster:
		return "cluster"
	default:
		return "unknown"
	}
}

const (
	minHopBound = 1
	maxHopBound = 10
)

// Rule is one registered inference rule. Rules are process-wide
// configuration: loaded once, mutated only through Register/Deactivate.
type Rule struct {
	ID               string
	Kind             RuleKind
	SourcePredicate  string
	TargetPredicate  string
	MaxHops          int
	ConfidenceWeight float64
	Active           bool
	SubjectFilter    string
	MaxDifficulty    graph.Difficulty
}

func (r Rule) normalized() Rule {
	if r.MaxHops < minHopBound {
		r.MaxHops = minHopBound
	}
	if r.MaxHops > maxHopBound {
		r.MaxHops = maxHopBound
	}
	if r.ConfidenceWeight < 0 {
		r.ConfidenceWeight = 0
	}
	if r.ConfidenceWeight > 1 {
		r.ConfidenceWeight = 1
	}
	return r
}

// inversePredicates is the fixed inverse table for the INVERSE rule kind.
var inversePredicates = map[string]string{
	graph.RelPrerequisite: graph.RelEnables,
	graph.RelEnables:      graph.RelPrerequisite,
	graph.RelLeadsTo:      graph.RelRequires,
	graph.RelRequires:     graph.RelLeadsTo,
	graph.RelComponentOf:  graph.RelHasComponent,
	graph.RelHasComponent: graph.RelComponentOf,
}

func inversePredicate(p string) string {
	if inv, ok := inversePredicates[p]; ok {
		return inv
	}
	return "inverse_" + p
}

func derivedPredicate(r Rule) string {
	if r.TargetPredicate != "" {
		return r.TargetPredicate
	}
	return "derived_" + r.SourcePredicate
}

// Registry holds the rule set for one service instance. It is an explicit
// repository object, not ambient state.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
	order []string
}

func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]Rule)}
}

// NewDefaultRegistry seeds the rule set the engine ships with.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	defaults := []Rule{
		{ID: "prereq_transitive", Kind: KindTransitive, SourcePredicate: graph.RelPrerequisite, MaxHops: 3, ConfidenceWeight: 0.9, Active: true},
		{ID: "related_symmetric", Kind: KindSymmetric, SourcePredicate: graph.RelRelated, ConfidenceWeight: 0.85, Active: true},
		{ID: "similar_symmetric", Kind: KindSymmetric, SourcePredicate: graph.RelSimilarTo, ConfidenceWeight: 0.9, Active: true},
		{ID: "prereq_inverse", Kind: KindInverse, SourcePredicate: graph.RelPrerequisite, ConfidenceWeight: 0.95, Active: true},
		{ID: "concept_similarity", Kind: KindSimilarity, ConfidenceWeight: 0.8, Active: true},
		{ID: "concept_clusters", Kind: KindCluster, ConfidenceWeight: 0.8, Active: true},
	}
	for _, d := range defaults {
		_ = r.Register(d)
	}
	return r
}

func (reg *Registry) Register(r Rule) error {
	if r.ID == "" {
		return fmt.Errorf("inference: register rule: empty id: %w", pkgerrors.ErrInvalidArgument)
	}
	r = r.normalized()
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, exists := reg.rules[r.ID]; !exists {
		reg.order = append(reg.order, r.ID)
	}
	reg.rules[r.ID] = r
	return nil
}

// Deactivate marks a rule inactive. Unknown IDs are a no-op, advisory lookup.
func (reg *Registry) Deactivate(id string) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rules[id]
	if !ok {
		return false
	}
	r.Active = false
	reg.rules[id] = r
	return true
}

func (reg *Registry) Rule(id string) (Rule, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r, ok := reg.rules[id]
	return r, ok
}

// Active returns the active rules in registration order, optionally
// restricted to the given IDs.
func (reg *Registry) Active(ids []string) []Rule {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	var want map[string]bool
	if len(ids) > 0 {
		want = make(map[string]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
	}
	var out []Rule
	for _, id := range reg.order {
		r := reg.rules[id]
		if !r.Active {
			continue
		}
		if want != nil && !want[id] {
			continue
		}
		out = append(out, r)
	}
	return out
}
