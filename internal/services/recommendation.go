package services

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/mindgrove/mindgrove-backend/internal/knowledge/gaps"
	"github.com/mindgrove/mindgrove-backend/internal/knowledge/similarity"
	"github.com/mindgrove/mindgrove-backend/internal/mastery"
	"github.com/mindgrove/mindgrove-backend/internal/pkg/logger"
)

// Recommendation is one learner-facing next-step suggestion.
type Recommendation struct {
	ConceptID   string
	ConceptName string
	Reason      string
	Priority    float64
}

type RecommendationService interface {
	GetNextSteps(ctx context.Context, learnerID uuid.UUID, limit int) ([]Recommendation, error)
	GetReviewItems(ctx context.Context, learnerID uuid.UUID, limit int) ([]mastery.ReviewEntry, error)
}

type recommendationService struct {
	masterySvc  MasteryService
	knowledge   KnowledgeService
	clusterOpts similarity.ClusterOptions
	log         *logger.Logger
}

func NewRecommendationService(masterySvc MasteryService, knowledge KnowledgeService, clusterOpts similarity.ClusterOptions, baseLog *logger.Logger) RecommendationService {
	if clusterOpts.MaxClusterSize <= 0 {
		clusterOpts = similarity.DefaultClusterOptions()
	}
	return &recommendationService{
		masterySvc:  masterySvc,
		knowledge:   knowledge,
		clusterOpts: clusterOpts,
		log:         baseLog.With("service", "RecommendationService"),
	}
}

// GetNextSteps composes gap remediation, disconnected-concept bridging, and
// cluster neighborhoods into one ranked suggestion list.
func (s *recommendationService) GetNextSteps(ctx context.Context, learnerID uuid.UUID, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = 10
	}
	known, err := s.masterySvc.KnownConcepts(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	completed := make(map[string]bool, len(known))
	for _, id := range known {
		completed[id] = true
	}

	detected, err := s.knowledge.DetectKnowledgeGaps(ctx, completed, nil, false)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var recs []Recommendation
	add := func(conceptID, reason string, priority float64) {
		if conceptID == "" || completed[conceptID] || seen[conceptID] {
			return
		}
		seen[conceptID] = true
		name := conceptID
		if n, ok := s.knowledge.Graph().Node(conceptID); ok {
			name = n.Name
		}
		recs = append(recs, Recommendation{ConceptID: conceptID, ConceptName: name, Reason: reason, Priority: priority})
	}

	for _, gap := range detected {
		switch gap.Type {
		case gaps.GapMissingPrerequisite:
			priority := 0.5
			switch gap.Severity {
			case gaps.SeverityCritical:
				priority = 0.9
			case gaps.SeverityMajor:
				priority = 0.7
			}
			for _, id := range gap.RemediationOrder {
				add(id, "missing prerequisite for "+gap.ConceptID, priority)
			}
		case gaps.GapDisconnected:
			for _, id := range gap.SuggestedConnectors {
				add(id, "bridges toward "+gap.ConceptID, 0.4)
			}
		}
	}

	clusters, err := s.knowledge.DiscoverClusters(ctx, s.clusterOpts)
	if err != nil {
		return nil, err
	}
	for _, cluster := range clusters {
		knownMembers := 0
		for _, id := range cluster.Members {
			if completed[id] {
				knownMembers++
			}
		}
		if knownMembers == 0 {
			continue
		}
		for _, id := range cluster.LearningOrder {
			add(id, "rounds out a concept cluster the learner already started", 0.3)
		}
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Priority > recs[j].Priority })
	if len(recs) > limit {
		recs = recs[:limit]
	}
	s.log.Debug("next steps composed", "learner_id", learnerID, "suggestions", len(recs))
	return recs, nil
}

func (s *recommendationService) GetReviewItems(ctx context.Context, learnerID uuid.UUID, limit int) ([]mastery.ReviewEntry, error) {
	return s.masterySvc.GetReviewSchedule(ctx, learnerID, limit)
}
