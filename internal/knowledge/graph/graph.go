package graph

import (
	"fmt"
	"sort"

	pkgerrors "github.com/mindgrove/mindgrove-backend/internal/pkg/errors"
)

// ConceptGraph is an in-memory directed multigraph over concepts. Parallel
// edges between the same pair are allowed as long as their types differ.
// The graph is not safe for concurrent mutation; inference runs own their
// snapshot for the duration of a run.
type ConceptGraph struct {
	nodes map[string]*ConceptNode
	out   map[string][]EdgeData
	in    map[string][]EdgeData
}

func NewConceptGraph() *ConceptGraph {
	return &ConceptGraph{
		nodes: make(map[string]*ConceptNode),
		out:   make(map[string][]EdgeData),
		in:    make(map[string][]EdgeData),
	}
}

func (g *ConceptGraph) AddNode(n *ConceptNode) error {
	if n == nil || n.ID == "" {
		return fmt.Errorf("graph: add node: %w", pkgerrors.ErrInvalidArgument)
	}
	g.nodes[n.ID] = n
	return nil
}

func (g *ConceptGraph) Node(id string) (*ConceptNode, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes sorted by ID for deterministic iteration.
func (g *ConceptGraph) Nodes() []*ConceptNode {
	out := make([]*ConceptNode, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *ConceptGraph) NodeCount() int { return len(g.nodes) }

// AddEdge inserts a directed edge. Both endpoints must already exist in the
// graph. A second edge with the same (source, target, type) is rejected so
// repeated inference runs cannot pile up duplicates.
func (g *ConceptGraph) AddEdge(e EdgeData) error {
	if _, ok := g.nodes[e.Source]; !ok {
		return fmt.Errorf("graph: add edge %s->%s: source: %w", e.Source, e.Target, pkgerrors.ErrUnknownConcept)
	}
	if _, ok := g.nodes[e.Target]; !ok {
		return fmt.Errorf("graph: add edge %s->%s: target: %w", e.Source, e.Target, pkgerrors.ErrUnknownConcept)
	}
	if e.Type == "" {
		return fmt.Errorf("graph: add edge %s->%s: empty type: %w", e.Source, e.Target, pkgerrors.ErrInvalidArgument)
	}
	if g.HasEdgeOfType(e.Source, e.Target, e.Type) {
		return nil
	}
	g.out[e.Source] = append(g.out[e.Source], e)
	g.in[e.Target] = append(g.in[e.Target], e)
	return nil
}

// Edges returns every edge in the graph, committed and inferred alike.
func (g *ConceptGraph) Edges() []EdgeData {
	var out []EdgeData
	ids := make([]string, 0, len(g.out))
	for id := range g.out {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		out = append(out, g.out[id]...)
	}
	return out
}

func (g *ConceptGraph) EdgeCount() int {
	n := 0
	for _, es := range g.out {
		n += len(es)
	}
	return n
}

// OutEdges returns the edges leaving id, in insertion order.
func (g *ConceptGraph) OutEdges(id string) []EdgeData { return g.out[id] }

// InEdges returns the edges entering id, in insertion order.
func (g *ConceptGraph) InEdges(id string) []EdgeData { return g.in[id] }

// Neighbors returns the distinct out-neighbor IDs of a node, sorted.
func (g *ConceptGraph) Neighbors(id string) []string {
	seen := make(map[string]bool)
	for _, e := range g.out[id] {
		seen[e.Target] = true
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// AllNeighbors returns distinct neighbor IDs over both edge directions,
// sorted. Used for structural similarity.
func (g *ConceptGraph) AllNeighbors(id string) []string {
	seen := make(map[string]bool)
	for _, e := range g.out[id] {
		seen[e.Target] = true
	}
	for _, e := range g.in[id] {
		seen[e.Source] = true
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (g *ConceptGraph) HasEdge(source, target string) bool {
	for _, e := range g.out[source] {
		if e.Target == target {
			return true
		}
	}
	return false
}

func (g *ConceptGraph) HasEdgeOfType(source, target, typ string) bool {
	for _, e := range g.out[source] {
		if e.Target == target && e.Type == typ {
			return true
		}
	}
	return false
}
