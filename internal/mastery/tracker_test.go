package mastery

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mindgrove/mindgrove-backend/internal/pkg/logger"
)

func newTestTracker(start time.Time) (*Tracker, *time.Time) {
	t := NewTracker(logger.NewNop())
	current := start
	t.now = func() time.Time { return current }
	return t, &current
}

func TestRecordInteraction_FirstSuccessScenario(t *testing.T) {
	tr, _ := newTestTracker(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	learner := uuid.New()

	rec, err := tr.RecordInteraction(learner, InteractionResult{
		ConceptID:        "fractions",
		Success:          true,
		Kind:             "quiz",
		Score:            0.9,
		DifficultyRating: 1.0,
	})
	if err != nil {
		t.Fatalf("record interaction: %v", err)
	}
	// alpha=0.3, confidence_factor=0.5+0+0.2=0.7: delta = 0.3*0.9*0.7.
	if math.Abs(rec.Score-0.189) > 1e-9 {
		t.Fatalf("score = %v, want 0.189", rec.Score)
	}
	// An interaction grade of exactly 0.9 is not >0.9, so the normal
	// multiplier applies: stability 1.0 -> 2.0.
	if rec.Stability != 2.0 {
		t.Fatalf("stability = %v, want 2.0", rec.Stability)
	}
	if math.Abs(rec.Confidence-0.535) > 1e-9 {
		t.Fatalf("confidence = %v, want 0.535", rec.Confidence)
	}
	if rec.InteractionCount != 1 || rec.SuccessCount != 1 {
		t.Fatalf("counters wrong: %+v", rec)
	}
	if rec.IntervalDays != 2 {
		t.Fatalf("interval = %v, want 2", rec.IntervalDays)
	}
	if !rec.NextReviewAt.After(rec.LastInteractionAt) {
		t.Fatalf("next review must be in the future")
	}
}

func TestRecordInteraction_HighGradeStretchesStability(t *testing.T) {
	tr, _ := newTestTracker(time.Now())
	learner := uuid.New()
	rec, err := tr.RecordInteraction(learner, InteractionResult{ConceptID: "c", Success: true, Score: 0.95, DifficultyRating: 1})
	if err != nil {
		t.Fatalf("record interaction: %v", err)
	}
	if rec.Stability != 2.5 {
		t.Fatalf("stability = %v, want 2.5 for grade > 0.9", rec.Stability)
	}
}

func TestRecordInteraction_FailureShrinksStateWithinBounds(t *testing.T) {
	tr, _ := newTestTracker(time.Now())
	learner := uuid.New()
	for i := 0; i < 5; i++ {
		if _, err := tr.RecordInteraction(learner, InteractionResult{ConceptID: "c", Success: true, Score: 0.9, DifficultyRating: 1}); err != nil {
			t.Fatalf("seed interaction: %v", err)
		}
	}
	before := tr.Record(learner, "c")
	rec, err := tr.RecordInteraction(learner, InteractionResult{ConceptID: "c", Success: false, Score: 0.2, DifficultyRating: 1})
	if err != nil {
		t.Fatalf("failure interaction: %v", err)
	}
	if rec.Score >= before.Score {
		t.Fatalf("failure must lower mastery: %v -> %v", before.Score, rec.Score)
	}
	if rec.Confidence >= before.Confidence {
		t.Fatalf("failure must lower confidence: %v -> %v", before.Confidence, rec.Confidence)
	}
	if math.Abs(rec.Stability-before.Stability*0.8) > 1e-9 {
		t.Fatalf("stability = %v, want %v", rec.Stability, before.Stability*0.8)
	}
}

func TestRecordInteraction_BoundsHoldUnderArbitrarySequences(t *testing.T) {
	tr, current := newTestTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	learner := uuid.New()
	for i := 0; i < 300; i++ {
		res := InteractionResult{
			ConceptID:        "c",
			Success:          i%3 != 0,
			Score:            float64(i%11) / 10,
			DifficultyRating: 0.25 + float64(i%9)*0.33, // deliberately out of range at the edges
			TimeSpentSeconds: 30,
		}
		rec, err := tr.RecordInteraction(learner, res)
		if err != nil {
			t.Fatalf("interaction %d: %v", i, err)
		}
		if rec.Score < 0 || rec.Score > 1 {
			t.Fatalf("interaction %d: score out of range: %v", i, rec.Score)
		}
		if rec.Confidence < 0 || rec.Confidence > 1 {
			t.Fatalf("interaction %d: confidence out of range: %v", i, rec.Confidence)
		}
		if rec.Stability < 1 {
			t.Fatalf("interaction %d: stability below floor: %v", i, rec.Stability)
		}
		if rec.IntervalDays < 1 || rec.IntervalDays > 365 {
			t.Fatalf("interaction %d: interval out of range: %v", i, rec.IntervalDays)
		}
		*current = current.Add(time.Duration(i%50) * time.Hour)
	}
}

func TestRecordInteraction_DecayAppliesAfterIdleGap(t *testing.T) {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	tr, current := newTestTracker(start)
	learner := uuid.New()
	if _, err := tr.RecordInteraction(learner, InteractionResult{ConceptID: "c", Success: true, Score: 1, DifficultyRating: 1}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	seeded := tr.Record(learner, "c")

	// 10 idle days on stability 2.5 decays the score drastically before the
	// new (failed) interaction is folded in.
	*current = start.Add(10 * 24 * time.Hour)
	rec, err := tr.RecordInteraction(learner, InteractionResult{ConceptID: "c", Success: false, Score: 0, DifficultyRating: 1})
	if err != nil {
		t.Fatalf("interaction: %v", err)
	}
	decayed := seeded.Score * math.Exp(-10/seeded.Stability)
	if rec.Score > decayed {
		t.Fatalf("expected decay then failure below %v, got %v", decayed, rec.Score)
	}
}

func TestRetentionPrediction_MonotoneNonIncreasing(t *testing.T) {
	tr, _ := newTestTracker(time.Now())
	learner := uuid.New()
	if got := tr.RetentionPrediction(learner, "c", 0); got != 1 {
		t.Fatalf("retention at 0 days = %v, want 1", got)
	}
	prev := 1.0
	for _, d := range []float64{0.5, 1, 2, 5, 10, 30, 120} {
		r := tr.RetentionPrediction(learner, "c", d)
		if r > prev {
			t.Fatalf("retention grew from %v to %v at %v days", prev, r, d)
		}
		prev = r
	}
}

func TestHistory_FIFOCapAt100(t *testing.T) {
	tr, _ := newTestTracker(time.Now())
	learner := uuid.New()
	for i := 0; i < 150; i++ {
		kind := "early"
		if i >= 50 {
			kind = "late"
		}
		if _, err := tr.RecordInteraction(learner, InteractionResult{ConceptID: "c", Success: true, Score: 0.5, Kind: kind, DifficultyRating: 1}); err != nil {
			t.Fatalf("interaction %d: %v", i, err)
		}
	}
	rec := tr.Record(learner, "c")
	if len(rec.History) != 100 {
		t.Fatalf("history length = %d, want 100", len(rec.History))
	}
	for _, h := range rec.History {
		if h.Kind != "late" {
			t.Fatalf("oldest entries must be evicted first, found %q", h.Kind)
		}
	}
}

func TestRecord_AutoCreatesDefault(t *testing.T) {
	tr, _ := newTestTracker(time.Now())
	rec := tr.Record(uuid.New(), "never-seen")
	if rec.Score != 0 || rec.Stability != 1 || rec.DifficultyModifier != 1 {
		t.Fatalf("unexpected default record: %+v", rec)
	}
	if rec.IsKnown(0.7) {
		t.Fatalf("default record must not be known")
	}
}

func TestKnownConcepts_UsesThreshold(t *testing.T) {
	tr, _ := newTestTracker(time.Now())
	learner := uuid.New()
	tr.Load([]Record{
		{LearnerID: learner, ConceptID: "strong", Score: 0.8, Stability: 10, DifficultyModifier: 1, Confidence: 0.9},
		{LearnerID: learner, ConceptID: "weak", Score: 0.4, Stability: 2, DifficultyModifier: 1, Confidence: 0.5},
	})
	known := tr.KnownConcepts(learner, 0.7)
	if len(known) != 1 || known[0] != "strong" {
		t.Fatalf("unexpected known set: %v", known)
	}
}

func TestLevelFor_Bands(t *testing.T) {
	cases := []struct {
		score float64
		want  Level
	}{
		{0.0, LevelNovice},
		{0.24, LevelNovice},
		{0.25, LevelBeginner},
		{0.5, LevelDeveloping},
		{0.7, LevelProficient},
		{0.85, LevelAdvanced},
		{0.95, LevelExpert},
		{1.0, LevelExpert},
	}
	for _, c := range cases {
		if got := LevelFor(c.score); got != c.want {
			t.Fatalf("LevelFor(%v) = %v, want %v", c.score, got, c.want)
		}
	}
}

func TestRecordInteraction_RejectsInvalidInput(t *testing.T) {
	tr, _ := newTestTracker(time.Now())
	if _, err := tr.RecordInteraction(uuid.Nil, InteractionResult{ConceptID: "c"}); err == nil {
		t.Fatalf("expected error for nil learner")
	}
	if _, err := tr.RecordInteraction(uuid.New(), InteractionResult{}); err == nil {
		t.Fatalf("expected error for empty concept")
	}
}
