package similarity

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/mindgrove/mindgrove-backend/internal/knowledge/graph"
	"github.com/mindgrove/mindgrove-backend/internal/pkg/logger"
)

// ClusterOptions bound the greedy agglomeration.
type ClusterOptions struct {
	MinSimilarity  float64
	MinClusterSize int
	MaxClusterSize int
}

func DefaultClusterOptions() ClusterOptions {
	return ClusterOptions{MinSimilarity: 0.5, MinClusterSize: 3, MaxClusterSize: 10}
}

// ConceptCluster is a discovered group of mutually similar concepts.
type ConceptCluster struct {
	ID               string
	Members          []string
	Centroid         string
	Cohesion         float64
	PrimarySubject   string
	SecondarySubject string
	LearningOrder    []string
}

type Clusterer struct {
	calc *Calculator
	log  *logger.Logger
}

func NewClusterer(calc *Calculator, baseLog *logger.Logger) *Clusterer {
	return &Clusterer{calc: calc, log: baseLog.With("engine", "Clusterer")}
}

// Discover runs greedy threshold agglomeration: concept pairs are processed
// by descending similarity and merged into clusters as long as the size cap
// holds. Clusters below the minimum size are dropped.
func (c *Clusterer) Discover(ctx context.Context, g *graph.ConceptGraph, opts ClusterOptions) ([]ConceptCluster, error) {
	if opts.MaxClusterSize <= 0 {
		opts.MaxClusterSize = DefaultClusterOptions().MaxClusterSize
	}
	if opts.MinClusterSize <= 0 {
		opts.MinClusterSize = DefaultClusterOptions().MinClusterSize
	}

	pairs, err := c.calc.Matrix(ctx, g, opts.MinSimilarity)
	if err != nil {
		return nil, err
	}

	assignment := make(map[string]int)
	members := make(map[int][]string)
	next := 0
	for _, p := range pairs {
		ca, okA := assignment[p.A]
		cb, okB := assignment[p.B]
		switch {
		case !okA && !okB:
			assignment[p.A] = next
			assignment[p.B] = next
			members[next] = []string{p.A, p.B}
			next++
		case okA && !okB:
			if len(members[ca]) < opts.MaxClusterSize {
				assignment[p.B] = ca
				members[ca] = append(members[ca], p.B)
			}
		case !okA && okB:
			if len(members[cb]) < opts.MaxClusterSize {
				assignment[p.A] = cb
				members[cb] = append(members[cb], p.A)
			}
		case ca != cb:
			if len(members[ca])+len(members[cb]) <= opts.MaxClusterSize {
				for _, id := range members[cb] {
					assignment[id] = ca
				}
				members[ca] = append(members[ca], members[cb]...)
				delete(members, cb)
			}
		}
	}

	keys := make([]int, 0, len(members))
	for k := range members {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	var clusters []ConceptCluster
	for _, k := range keys {
		ids := members[k]
		if len(ids) < opts.MinClusterSize {
			continue
		}
		sort.Strings(ids)
		cluster, err := c.describe(g, ids)
		if err != nil {
			return nil, err
		}
		clusters = append(clusters, cluster)
	}
	c.log.Debug("cluster discovery complete", "candidate_pairs", len(pairs), "clusters", len(clusters))
	return clusters, nil
}

func (c *Clusterer) describe(g *graph.ConceptGraph, ids []string) (ConceptCluster, error) {
	// Mean pairwise similarity doubles as cohesion and, per member, as the
	// centroid ranking.
	meanSim := make(map[string]float64, len(ids))
	total := 0.0
	pairCount := 0
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			s, err := c.calc.Pairwise(g, ids[i], ids[j])
			if err != nil {
				return ConceptCluster{}, err
			}
			meanSim[ids[i]] += s.Overall
			meanSim[ids[j]] += s.Overall
			total += s.Overall
			pairCount++
		}
	}
	cohesion := 0.0
	if pairCount > 0 {
		cohesion = total / float64(pairCount)
	}
	centroid := ids[0]
	for _, id := range ids {
		if meanSim[id] > meanSim[centroid] {
			centroid = id
		}
	}

	order := append([]string{}, ids...)
	prereqCount := make(map[string]int, len(ids))
	for _, id := range ids {
		prereqCount[id] = len(g.Prerequisites(id, true))
	}
	sort.SliceStable(order, func(i, j int) bool {
		if prereqCount[order[i]] != prereqCount[order[j]] {
			return prereqCount[order[i]] < prereqCount[order[j]]
		}
		return order[i] < order[j]
	})

	primary, secondary := dominantSubjects(g, ids)

	return ConceptCluster{
		ID:               uuid.NewString(),
		Members:          ids,
		Centroid:         centroid,
		Cohesion:         cohesion,
		PrimarySubject:   primary,
		SecondarySubject: secondary,
		LearningOrder:    order,
	}, nil
}

func dominantSubjects(g *graph.ConceptGraph, ids []string) (string, string) {
	counts := make(map[string]int)
	for _, id := range ids {
		if n, ok := g.Node(id); ok && n.SubjectID != "" {
			counts[n.SubjectID]++
		}
	}
	subjects := make([]string, 0, len(counts))
	for s := range counts {
		subjects = append(subjects, s)
	}
	sort.Slice(subjects, func(i, j int) bool {
		if counts[subjects[i]] != counts[subjects[j]] {
			return counts[subjects[i]] > counts[subjects[j]]
		}
		return subjects[i] < subjects[j]
	})
	primary, secondary := "", ""
	if len(subjects) > 0 {
		primary = subjects[0]
	}
	if len(subjects) > 1 {
		secondary = subjects[1]
	}
	return primary, secondary
}
