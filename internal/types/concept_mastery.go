package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mindgrove/mindgrove-backend/internal/mastery"
)

// ConceptMastery is the persisted row behind one in-memory mastery record.
// There is no cross-record transactional requirement; rows load and save as
// a flat list.
type ConceptMastery struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LearnerID          uuid.UUID      `gorm:"type:uuid;not null;index:idx_learner_concept,unique,priority:1" json:"learner_id"`
	ConceptID          string         `gorm:"column:concept_id;not null;index:idx_learner_concept,unique,priority:2;index" json:"concept_id"`
	MasteryScore       float64        `gorm:"column:mastery_score;not null;default:0" json:"mastery_score"`
	ConfidenceScore    float64        `gorm:"column:confidence_score;not null;default:0.5" json:"confidence_score"`
	Stability          float64        `gorm:"column:stability;not null;default:1" json:"stability"`
	DifficultyModifier float64        `gorm:"column:difficulty_modifier;not null;default:1" json:"difficulty_modifier"`
	IntervalDays       float64        `gorm:"column:interval_days;not null;default:1" json:"interval_days"`
	FirstSeenAt        time.Time      `gorm:"column:first_seen_at;not null;default:now()" json:"first_seen_at"`
	LastInteractionAt  *time.Time     `gorm:"column:last_interaction_at" json:"last_interaction_at,omitempty"`
	NextReviewAt       *time.Time     `gorm:"column:next_review_at;index" json:"next_review_at,omitempty"`
	LastMasteredAt     *time.Time     `gorm:"column:last_mastered_at" json:"last_mastered_at,omitempty"`
	InteractionCount   int            `gorm:"column:interaction_count;not null;default:0" json:"interaction_count"`
	SuccessCount       int            `gorm:"column:success_count;not null;default:0" json:"success_count"`
	TotalTimeSeconds   float64        `gorm:"column:total_time_seconds;not null;default:0" json:"total_time_seconds"`
	PeakScore          float64        `gorm:"column:peak_score;not null;default:0" json:"peak_score"`
	History            datatypes.JSON `gorm:"column:history;type:jsonb" json:"history,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ConceptMastery) TableName() string { return "concept_mastery" }

// ToRecord converts the row into the tracker's in-memory record.
func (m *ConceptMastery) ToRecord() mastery.Record {
	rec := mastery.Record{
		LearnerID:          m.LearnerID,
		ConceptID:          m.ConceptID,
		Score:              m.MasteryScore,
		Confidence:         m.ConfidenceScore,
		Stability:          m.Stability,
		DifficultyModifier: m.DifficultyModifier,
		IntervalDays:       m.IntervalDays,
		FirstSeenAt:        m.FirstSeenAt,
		LastMasteredAt:     m.LastMasteredAt,
		InteractionCount:   m.InteractionCount,
		SuccessCount:       m.SuccessCount,
		TotalTimeSeconds:   m.TotalTimeSeconds,
		PeakScore:          m.PeakScore,
	}
	if m.LastInteractionAt != nil {
		rec.LastInteractionAt = *m.LastInteractionAt
	}
	if m.NextReviewAt != nil {
		rec.NextReviewAt = *m.NextReviewAt
	}
	if len(m.History) > 0 {
		// A malformed history blob degrades to an empty history rather than
		// failing the load.
		var hist []mastery.Interaction
		if err := json.Unmarshal(m.History, &hist); err == nil {
			rec.History = hist
		}
	}
	return rec
}

// FromRecord builds the persisted row for a tracker record. The row ID is
// left for the database to assign on first insert.
func FromRecord(rec mastery.Record) *ConceptMastery {
	m := &ConceptMastery{
		LearnerID:          rec.LearnerID,
		ConceptID:          rec.ConceptID,
		MasteryScore:       rec.Score,
		ConfidenceScore:    rec.Confidence,
		Stability:          rec.Stability,
		DifficultyModifier: rec.DifficultyModifier,
		IntervalDays:       rec.IntervalDays,
		FirstSeenAt:        rec.FirstSeenAt,
		LastMasteredAt:     rec.LastMasteredAt,
		InteractionCount:   rec.InteractionCount,
		SuccessCount:       rec.SuccessCount,
		TotalTimeSeconds:   rec.TotalTimeSeconds,
		PeakScore:          rec.PeakScore,
	}
	if !rec.LastInteractionAt.IsZero() {
		t := rec.LastInteractionAt
		m.LastInteractionAt = &t
	}
	if !rec.NextReviewAt.IsZero() {
		t := rec.NextReviewAt
		m.NextReviewAt = &t
	}
	if len(rec.History) > 0 {
		if raw, err := json.Marshal(rec.History); err == nil {
			m.History = datatypes.JSON(raw)
		}
	}
	return m
}

// VisualAidMapping links a concept to a rendered asset, as served by the
// visual-aid collaborator.
type VisualAidMapping struct {
	AssetID       string `json:"asset_id"`
	RelevanceType string `json:"relevance_type"`
}
