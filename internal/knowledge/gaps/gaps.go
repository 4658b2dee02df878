package gaps

import (
	"sort"

	"github.com/mindgrove/mindgrove-backend/internal/knowledge/graph"
	"github.com/mindgrove/mindgrove-backend/internal/pkg/logger"
)

// GapType classifies why a concept is not yet safe to attempt.
type GapType int

const (
	GapMissingPrerequisite GapType = iota
	GapDisconnected
)

func (g GapType) String() string {
	if g == GapDisconnected {
		return "disconnected"
	}
	return "missing_prerequisite"
}

// Severity orders gaps by urgency.
type Severity int

const (
	SeverityMinor Severity = iota
	SeverityMajor
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityMajor:
		return "major"
	default:
		return "minor"
	}
}

// maxConnectorSuggestions bounds the connector list on disconnected gaps.
const maxConnectorSuggestions = 5

// KnowledgeGap is one detected obstacle between a learner and a target
// concept.
type KnowledgeGap struct {
	ConceptID           string
	Type                GapType
	Severity            Severity
	Missing             []string
	Blocks              []string
	RemediationOrder    []string
	EffortHours         float64
	SuggestedConnectors []string
}

// Detector walks the concept graph against a learner's completed set.
type Detector struct {
	log *logger.Logger
}

func NewDetector(baseLog *logger.Logger) *Detector {
	return &Detector{log: baseLog.With("engine", "GapDetector")}
}

// Detect reports the knowledge gaps between completed and targets. Empty
// targets means every concept in the graph. Gaps with a single missing
// prerequisite and little blocking impact only surface when includeMinor is
// set.
func (d *Detector) Detect(g *graph.ConceptGraph, completed map[string]bool, targets []string, includeMinor bool) []KnowledgeGap {
	if len(targets) == 0 {
		for _, n := range g.Nodes() {
			targets = append(targets, n.ID)
		}
	}
	targetSet := make(map[string]bool, len(targets))
	for _, id := range targets {
		targetSet[id] = true
	}

	var gaps []KnowledgeGap
	for _, target := range targets {
		if completed[target] {
			continue
		}
		if _, ok := g.Node(target); !ok {
			continue
		}

		var missing []string
		for _, p := range g.Prerequisites(target, false) {
			if !completed[p] {
				missing = append(missing, p)
			}
		}

		if len(missing) == 0 {
			if gap, ok := d.disconnectedGap(g, completed, target); ok {
				gaps = append(gaps, gap)
			}
			continue
		}

		blocked := blockedConcepts(g, completed, targetSet, target, missing)
		severity, emit := classify(len(missing), len(blocked), includeMinor)
		if !emit {
			continue
		}
		gaps = append(gaps, KnowledgeGap{
			ConceptID:        target,
			Type:             GapMissingPrerequisite,
			Severity:         severity,
			Missing:          missing,
			Blocks:           blocked,
			RemediationOrder: remediationOrder(g, missing),
			EffortHours:      effortHours(g, missing),
		})
	}
	d.log.Debug("gap detection complete", "targets", len(targets), "gaps", len(gaps))
	return gaps
}

// classify applies the severity thresholds. The bool result is false when no
// gap should be emitted at all.
func classify(missingCount, blockedCount int, includeMinor bool) (Severity, bool) {
	switch {
	case missingCount >= 3:
		return SeverityCritical, true
	case missingCount == 2:
		return SeverityMajor, true
	case missingCount == 1 && blockedCount >= 3:
		return SeverityMajor, true
	case missingCount == 1 && includeMinor:
		return SeverityMinor, true
	default:
		return SeverityMinor, false
	}
}

// blockedConcepts collects the other incomplete targets held up by the same
// missing prerequisites.
func blockedConcepts(g *graph.ConceptGraph, completed, targetSet map[string]bool, target string, missing []string) []string {
	seen := make(map[string]bool)
	for _, m := range missing {
		for _, post := range g.Postrequisites(m) {
			if post == target || completed[post] || !targetSet[post] {
				continue
			}
			seen[post] = true
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// disconnectedGap reports a target with satisfied (or no) prerequisites that
// is still unreachable from everything the learner has completed.
func (d *Detector) disconnectedGap(g *graph.ConceptGraph, completed map[string]bool, target string) (KnowledgeGap, bool) {
	if len(completed) == 0 {
		return KnowledgeGap{}, false
	}
	for c := range completed {
		if g.HasPath(c, target) {
			return KnowledgeGap{}, false
		}
	}
	return KnowledgeGap{
		ConceptID:           target,
		Type:                GapDisconnected,
		Severity:            SeverityMinor,
		SuggestedConnectors: suggestConnectors(g, target),
	}, true
}

// suggestConnectors picks concepts in the same subject with overlapping
// tags, strongest overlap first.
func suggestConnectors(g *graph.ConceptGraph, target string) []string {
	tn, ok := g.Node(target)
	if !ok {
		return nil
	}
	targetTags := make(map[string]bool, len(tn.Tags))
	for _, tag := range tn.Tags {
		targetTags[tag] = true
	}

	type candidate struct {
		id      string
		overlap int
	}
	var candidates []candidate
	for _, n := range g.Nodes() {
		if n.ID == target || n.SubjectID != tn.SubjectID {
			continue
		}
		overlap := 0
		for _, tag := range n.Tags {
			if targetTags[tag] {
				overlap++
			}
		}
		if overlap > 0 {
			candidates = append(candidates, candidate{id: n.ID, overlap: overlap})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		return candidates[i].id < candidates[j].id
	})
	if len(candidates) > maxConnectorSuggestions {
		candidates = candidates[:maxConnectorSuggestions]
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.id)
	}
	return out
}

// remediationOrder sorts missing prerequisites by how deep their own
// prerequisite chains run, shallowest first.
func remediationOrder(g *graph.ConceptGraph, missing []string) []string {
	out := append([]string{}, missing...)
	depth := make(map[string]int, len(missing))
	for _, id := range missing {
		depth[id] = len(g.Prerequisites(id, true))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if depth[out[i]] != depth[out[j]] {
			return depth[out[i]] < depth[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

func effortHours(g *graph.ConceptGraph, missing []string) float64 {
	total := 0.0
	for _, id := range missing {
		if n, ok := g.Node(id); ok {
			total += n.Difficulty.Hours()
		}
	}
	return total
}
