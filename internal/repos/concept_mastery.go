package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	pkgerrors "github.com/mindgrove/mindgrove-backend/internal/pkg/errors"
	"github.com/mindgrove/mindgrove-backend/internal/pkg/logger"
	"github.com/mindgrove/mindgrove-backend/internal/types"
)

type ConceptMasteryRepo interface {
	GetByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) ([]*types.ConceptMastery, error)
	GetByLearnerConcept(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, conceptID string) (*types.ConceptMastery, error)
	Upsert(ctx context.Context, tx *gorm.DB, record *types.ConceptMastery) (*types.ConceptMastery, error)
	BulkUpsert(ctx context.Context, tx *gorm.DB, records []*types.ConceptMastery) ([]*types.ConceptMastery, error)
	ListOverdue(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, asOf time.Time, limit int) ([]*types.ConceptMastery, error)
}

type conceptMasteryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConceptMasteryRepo(db *gorm.DB, baseLog *logger.Logger) ConceptMasteryRepo {
	return &conceptMasteryRepo{db: db, log: baseLog.With("repo", "ConceptMasteryRepo")}
}

func (r *conceptMasteryRepo) GetByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) ([]*types.ConceptMastery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var records []*types.ConceptMastery
	if err := transaction.WithContext(ctx).
		Where("learner_id = ?", learnerID).
		Order("concept_id asc").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *conceptMasteryRepo) GetByLearnerConcept(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, conceptID string) (*types.ConceptMastery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var record types.ConceptMastery
	err := transaction.WithContext(ctx).
		Where("learner_id = ? AND concept_id = ?", learnerID, conceptID).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *conceptMasteryRepo) Upsert(ctx context.Context, tx *gorm.DB, record *types.ConceptMastery) (*types.ConceptMastery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if record == nil {
		return nil, pkgerrors.ErrInvalidArgument
	}
	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "learner_id"}, {Name: "concept_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"mastery_score", "confidence_score", "stability", "difficulty_modifier",
				"interval_days", "last_interaction_at", "next_review_at", "last_mastered_at",
				"interaction_count", "success_count", "total_time_seconds", "peak_score",
				"history", "updated_at",
			}),
		}).
		Create(record).Error; err != nil {
		return nil, err
	}
	return record, nil
}

func (r *conceptMasteryRepo) BulkUpsert(ctx context.Context, tx *gorm.DB, records []*types.ConceptMastery) ([]*types.ConceptMastery, error) {
	if len(records) == 0 {
		return []*types.ConceptMastery{}, nil
	}
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	for _, record := range records {
		if _, err := r.Upsert(ctx, transaction, record); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (r *conceptMasteryRepo) ListOverdue(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, asOf time.Time, limit int) ([]*types.ConceptMastery, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).
		Where("learner_id = ? AND next_review_at IS NOT NULL AND next_review_at <= ?", learnerID, asOf).
		Order("next_review_at asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var records []*types.ConceptMastery
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
