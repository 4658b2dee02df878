package mastery

import (
	"time"

	"github.com/google/uuid"
)

// Level is the derived proficiency band over the mastery score.
type Level int

const (
	LevelNovice Level = iota
	LevelBeginner
	LevelDeveloping
	LevelProficient
	LevelAdvanced
	LevelExpert
)

func (l Level) String() string {
	switch l {
	case LevelBeginner:
		return "beginner"
	case LevelDeveloping:
		return "developing"
	case LevelProficient:
		return "proficient"
	case LevelAdvanced:
		return "advanced"
	case LevelExpert:
		return "expert"
	default:
		return "novice"
	}
}

func LevelFor(score float64) Level {
	switch {
	case score >= 0.95:
		return LevelExpert
	case score >= 0.85:
		return LevelAdvanced
	case score >= 0.7:
		return LevelProficient
	case score >= 0.5:
		return LevelDeveloping
	case score >= 0.25:
		return LevelBeginner
	default:
		return LevelNovice
	}
}

// InteractionResult is one graded learner interaction with a concept.
type InteractionResult struct {
	ConceptID        string
	Success          bool
	Kind             string
	Score            float64
	TimeSpentSeconds float64
	DifficultyRating float64
}

// Interaction is the history entry kept on the record.
type Interaction struct {
	At               time.Time `json:"at"`
	Success          bool      `json:"success"`
	Kind             string    `json:"kind"`
	Score            float64   `json:"score"`
	TimeSpentSeconds float64   `json:"time_spent_seconds"`
	DifficultyRating float64   `json:"difficulty_rating"`
}

// historyCap bounds the per-record interaction history; the oldest entries
// are evicted first.
const historyCap = 100

// Record is the mastery state for one (learner, concept) pair. It is created
// lazily, mutated only by the Tracker, and decays toward zero rather than
// being deleted.
type Record struct {
	LearnerID          uuid.UUID
	ConceptID          string
	Score              float64
	Confidence         float64
	Stability          float64
	DifficultyModifier float64
	IntervalDays       float64
	FirstSeenAt        time.Time
	LastInteractionAt  time.Time
	NextReviewAt       time.Time
	LastMasteredAt     *time.Time
	InteractionCount   int
	SuccessCount       int
	TotalTimeSeconds   float64
	PeakScore          float64
	History            []Interaction
}

func newRecord(learnerID uuid.UUID, conceptID string, now time.Time) *Record {
	return &Record{
		LearnerID:          learnerID,
		ConceptID:          conceptID,
		Score:              0,
		Confidence:         0.5,
		Stability:          1,
		DifficultyModifier: 1,
		IntervalDays:       1,
		FirstSeenAt:        now,
		NextReviewAt:       now.Add(24 * time.Hour),
	}
}

func (r *Record) Level() Level { return LevelFor(r.Score) }

// IsKnown reports whether the learner is considered to know the concept.
func (r *Record) IsKnown(threshold float64) bool { return r.Score >= threshold }

// IsOverdue reports whether the record is due for review at now.
func (r *Record) IsOverdue(now time.Time) bool {
	return !r.NextReviewAt.IsZero() && !now.Before(r.NextReviewAt)
}

func (r *Record) clone() Record {
	out := *r
	out.History = append([]Interaction{}, r.History...)
	if r.LastMasteredAt != nil {
		t := *r.LastMasteredAt
		out.LastMasteredAt = &t
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
