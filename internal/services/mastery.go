package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mindgrove/mindgrove-backend/internal/mastery"
	"github.com/mindgrove/mindgrove-backend/internal/observability"
	pkgerrors "github.com/mindgrove/mindgrove-backend/internal/pkg/errors"
	"github.com/mindgrove/mindgrove-backend/internal/pkg/logger"
	"github.com/mindgrove/mindgrove-backend/internal/repos"
	"github.com/mindgrove/mindgrove-backend/internal/types"
)

type MasteryService interface {
	UpdateMastery(ctx context.Context, learnerID uuid.UUID, res mastery.InteractionResult) (mastery.Record, error)
	GetMasteryForLearner(ctx context.Context, learnerID uuid.UUID) ([]mastery.Record, error)
	GetReviewSchedule(ctx context.Context, learnerID uuid.UUID, maxItems int) ([]mastery.ReviewEntry, error)
	KnownConcepts(ctx context.Context, learnerID uuid.UUID) ([]string, error)
	RetentionPrediction(ctx context.Context, learnerID uuid.UUID, conceptID string, days float64) (float64, error)
	FlushLearner(ctx context.Context, learnerID uuid.UUID) (int, error)
}

type masteryService struct {
	tracker        *mastery.Tracker
	scheduler      *mastery.Scheduler
	repo           repos.ConceptMasteryRepo
	knowledge      KnowledgeService
	visualAids     VisualAidLookup
	knownThreshold float64
	log            *logger.Logger
}

// NewMasteryService wires the tracker and scheduler behind the service
// surface. repo and visualAids may be nil: state then lives in memory only
// and review entries carry no visual-aid annotation.
func NewMasteryService(
	tracker *mastery.Tracker,
	scheduler *mastery.Scheduler,
	repo repos.ConceptMasteryRepo,
	knowledge KnowledgeService,
	visualAids VisualAidLookup,
	knownThreshold float64,
	baseLog *logger.Logger,
) MasteryService {
	if knownThreshold <= 0 {
		knownThreshold = 0.7
	}
	return &masteryService{
		tracker:        tracker,
		scheduler:      scheduler,
		repo:           repo,
		knowledge:      knowledge,
		visualAids:     visualAids,
		knownThreshold: knownThreshold,
		log:            baseLog.With("service", "MasteryService"),
	}
}

func (s *masteryService) UpdateMastery(ctx context.Context, learnerID uuid.UUID, res mastery.InteractionResult) (mastery.Record, error) {
	ctx, span := observability.Tracer().Start(ctx, "mastery.update")
	defer span.End()

	if err := s.hydrateOne(ctx, learnerID, res.ConceptID); err != nil {
		return mastery.Record{}, err
	}
	rec, err := s.tracker.RecordInteraction(learnerID, res)
	if err != nil {
		return mastery.Record{}, err
	}
	span.SetAttributes(
		attribute.String("concept_id", res.ConceptID),
		attribute.Float64("mastery_score", rec.Score),
	)
	if s.repo != nil {
		if _, err := s.repo.Upsert(ctx, nil, types.FromRecord(rec)); err != nil {
			return mastery.Record{}, fmt.Errorf("mastery: persist %s/%s: %w", learnerID, res.ConceptID, err)
		}
	}
	return rec, nil
}

func (s *masteryService) GetMasteryForLearner(ctx context.Context, learnerID uuid.UUID) ([]mastery.Record, error) {
	if err := s.hydrateLearner(ctx, learnerID); err != nil {
		return nil, err
	}
	return s.tracker.RecordsForLearner(learnerID), nil
}

func (s *masteryService) GetReviewSchedule(ctx context.Context, learnerID uuid.UUID, maxItems int) ([]mastery.ReviewEntry, error) {
	ctx, span := observability.Tracer().Start(ctx, "mastery.review_schedule")
	defer span.End()

	if err := s.hydrateOverdue(ctx, learnerID); err != nil {
		return nil, err
	}
	var catalog mastery.Catalog
	if s.knowledge != nil {
		catalog = graphCatalog{g: s.knowledge.Graph()}
	}
	entries := s.scheduler.ReviewSchedule(learnerID, catalog, maxItems)

	if s.visualAids != nil {
		for i := range entries {
			mappings, err := s.visualAids.MappingsForConcept(ctx, entries[i].ConceptID)
			if err != nil {
				// Advisory lookup: a failed annotation never fails the schedule.
				s.log.Warn("visual aid lookup failed", "concept_id", entries[i].ConceptID, "error", err)
				continue
			}
			if len(mappings) > 0 {
				entries[i].HasVisualAid = true
				entries[i].VisualAidID = mappings[0].AssetID
			}
		}
	}
	span.SetAttributes(attribute.Int("review.items", len(entries)))
	return entries, nil
}

func (s *masteryService) KnownConcepts(ctx context.Context, learnerID uuid.UUID) ([]string, error) {
	if err := s.hydrateLearner(ctx, learnerID); err != nil {
		return nil, err
	}
	return s.tracker.KnownConcepts(learnerID, s.knownThreshold), nil
}

func (s *masteryService) RetentionPrediction(ctx context.Context, learnerID uuid.UUID, conceptID string, days float64) (float64, error) {
	if err := s.hydrateOne(ctx, learnerID, conceptID); err != nil {
		return 0, err
	}
	return s.tracker.RetentionPrediction(learnerID, conceptID, days), nil
}

// FlushLearner writes every in-memory record for the learner back to the
// store in one batch. No-op without a configured store.
func (s *masteryService) FlushLearner(ctx context.Context, learnerID uuid.UUID) (int, error) {
	if s.repo == nil {
		return 0, nil
	}
	records := s.tracker.RecordsForLearner(learnerID)
	rows := make([]*types.ConceptMastery, 0, len(records))
	for _, rec := range records {
		rows = append(rows, types.FromRecord(rec))
	}
	if _, err := s.repo.BulkUpsert(ctx, nil, rows); err != nil {
		return 0, fmt.Errorf("mastery: flush learner %s: %w", learnerID, err)
	}
	return len(rows), nil
}

// hydrateOne pulls one persisted record into the tracker the first time the
// (learner, concept) pair is touched in this process.
func (s *masteryService) hydrateOne(ctx context.Context, learnerID uuid.UUID, conceptID string) error {
	if s.repo == nil || conceptID == "" || s.tracker.Has(learnerID, conceptID) {
		return nil
	}
	row, err := s.repo.GetByLearnerConcept(ctx, nil, learnerID, conceptID)
	if errors.Is(err, pkgerrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("mastery: hydrate %s/%s: %w", learnerID, conceptID, err)
	}
	s.tracker.Load([]mastery.Record{row.ToRecord()})
	return nil
}

func (s *masteryService) hydrateLearner(ctx context.Context, learnerID uuid.UUID) error {
	if s.repo == nil {
		return nil
	}
	rows, err := s.repo.GetByLearner(ctx, nil, learnerID)
	if err != nil {
		return fmt.Errorf("mastery: hydrate learner %s: %w", learnerID, err)
	}
	s.loadMissing(learnerID, rows)
	return nil
}

// hydrateOverdue pulls only the persisted rows that are already due, which
// is all the review scheduler can rank anyway. The cutoff comes from the
// tracker's clock so the query and the scheduler agree on "now".
func (s *masteryService) hydrateOverdue(ctx context.Context, learnerID uuid.UUID) error {
	if s.repo == nil {
		return nil
	}
	rows, err := s.repo.ListOverdue(ctx, nil, learnerID, s.tracker.Now(), 0)
	if err != nil {
		return fmt.Errorf("mastery: hydrate overdue %s: %w", learnerID, err)
	}
	s.loadMissing(learnerID, rows)
	return nil
}

func (s *masteryService) loadMissing(learnerID uuid.UUID, rows []*types.ConceptMastery) {
	for _, row := range rows {
		if s.tracker.Has(learnerID, row.ConceptID) {
			continue
		}
		s.tracker.Load([]mastery.Record{row.ToRecord()})
	}
}
