package mastery

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mindgrove/mindgrove-backend/internal/pkg/logger"
)

type mapCatalog map[string]ConceptInfo

func (m mapCatalog) ConceptInfo(id string) (ConceptInfo, bool) {
	info, ok := m[id]
	return info, ok
}

func schedulerFixture(t *testing.T) (*Scheduler, *Tracker, uuid.UUID, time.Time) {
	t.Helper()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	tr, _ := newTestTracker(now)
	learner := uuid.New()
	tr.Load([]Record{
		// 1 day overdue, stable memory, high mastery: only the overdue bonus.
		{LearnerID: learner, ConceptID: "solid", Score: 0.9, Stability: 200, DifficultyModifier: 1, Confidence: 0.9, NextReviewAt: now.Add(-24 * time.Hour)},
		// 10 days overdue, fast decay, low mastery: every bonus maxed.
		{LearnerID: learner, ConceptID: "fragile", Score: 0.2, Stability: 2, DifficultyModifier: 1, Confidence: 0.3, NextReviewAt: now.Add(-10 * 24 * time.Hour)},
		// Not yet due.
		{LearnerID: learner, ConceptID: "fresh", Score: 0.5, Stability: 10, DifficultyModifier: 1, Confidence: 0.7, NextReviewAt: now.Add(24 * time.Hour)},
		// 2 days overdue, moderate decay, mid mastery.
		{LearnerID: learner, ConceptID: "middling", Score: 0.45, Stability: 12, DifficultyModifier: 1, Confidence: 0.6, NextReviewAt: now.Add(-2 * 24 * time.Hour)},
	})
	return NewScheduler(tr, logger.NewNop()), tr, learner, now
}

func TestReviewSchedule_RanksByPriorityAndSkipsNotDue(t *testing.T) {
	s, _, learner, _ := schedulerFixture(t)
	entries := s.ReviewSchedule(learner, mapCatalog{
		"fragile": {Name: "Fragile Concept", Subject: "math"},
	}, 10)

	if len(entries) != 3 {
		t.Fatalf("expected 3 overdue entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.ConceptID == "fresh" {
			t.Fatalf("not-yet-due record must be excluded")
		}
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Priority > entries[i-1].Priority {
			t.Fatalf("schedule not sorted by non-increasing priority: %v then %v", entries[i-1].Priority, entries[i].Priority)
		}
	}

	top := entries[0]
	if top.ConceptID != "fragile" {
		t.Fatalf("expected fragile first, got %q", top.ConceptID)
	}
	// overdue 0.3 (capped) + decay 0.3 (7-day retention on stability 2 is
	// well under 0.5) + low mastery 0.2.
	if math.Abs(top.Priority-0.8) > 1e-9 {
		t.Fatalf("fragile priority = %v, want 0.8", top.Priority)
	}
	if top.ConceptName != "Fragile Concept" || top.Subject != "math" {
		t.Fatalf("catalog annotation missing: %+v", top)
	}
	if top.PredictedDecay <= 0 {
		t.Fatalf("expected positive predicted decay, got %v", top.PredictedDecay)
	}
}

func TestReviewSchedule_PriorityComponents(t *testing.T) {
	s, _, learner, _ := schedulerFixture(t)
	entries := s.ReviewSchedule(learner, nil, 10)
	byID := make(map[string]ReviewEntry)
	for _, e := range entries {
		byID[e.ConceptID] = e
	}

	// solid: 1 day overdue only. Stability 200 keeps 7-day retention above
	// 0.7 and mastery 0.9 earns no low-mastery bonus.
	if got := byID["solid"].Priority; math.Abs(got-0.05) > 1e-9 {
		t.Fatalf("solid priority = %v, want 0.05", got)
	}
	// middling: 2*0.05 overdue + 0.15 decay (exp(-7/12)~0.56) + 0.1 mastery.
	if got := byID["middling"].Priority; math.Abs(got-0.35) > 1e-9 {
		t.Fatalf("middling priority = %v, want 0.35", got)
	}
	// Without a catalog the ID doubles as the display name.
	if byID["solid"].ConceptName != "solid" {
		t.Fatalf("expected ID fallback for name, got %q", byID["solid"].ConceptName)
	}
}

func TestReviewSchedule_TruncationKeepsPrefix(t *testing.T) {
	s, _, learner, _ := schedulerFixture(t)
	full := s.ReviewSchedule(learner, nil, 10)
	capped := s.ReviewSchedule(learner, nil, 2)
	if len(capped) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(capped))
	}
	for i := range capped {
		if capped[i].ConceptID != full[i].ConceptID {
			t.Fatalf("truncation reordered the prefix: %v vs %v", capped[i].ConceptID, full[i].ConceptID)
		}
	}
}

func TestReviewSchedule_DefaultLimit(t *testing.T) {
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	tr, _ := newTestTracker(now)
	learner := uuid.New()
	var recs []Record
	for i := 0; i < 25; i++ {
		recs = append(recs, Record{
			LearnerID:          learner,
			ConceptID:          string(rune('a' + i)),
			Score:              0.4,
			Stability:          5,
			DifficultyModifier: 1,
			Confidence:         0.5,
			NextReviewAt:       now.Add(-48 * time.Hour),
		})
	}
	tr.Load(recs)
	entries := NewScheduler(tr, logger.NewNop()).ReviewSchedule(learner, nil, 0)
	if len(entries) != DefaultMaxReviewItems {
		t.Fatalf("expected default cap %d, got %d", DefaultMaxReviewItems, len(entries))
	}
}
