package mastery

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/mindgrove/mindgrove-backend/internal/pkg/logger"
)

// DefaultMaxReviewItems bounds the review list when the caller passes no
// explicit limit.
const DefaultMaxReviewItems = 10

// ConceptInfo is the catalog detail a review entry is annotated with.
type ConceptInfo struct {
	Name    string
	Subject string
}

// Catalog resolves concept IDs to display details. The graph layer adapts
// onto this; the scheduler itself stays independent of graph internals.
type Catalog interface {
	ConceptInfo(id string) (ConceptInfo, bool)
}

// ReviewEntry is one ranked item of a learner's review schedule. Entries are
// recomputed per request and never persisted.
type ReviewEntry struct {
	ConceptID      string
	ConceptName    string
	Subject        string
	ScheduledAt    time.Time
	Priority       float64
	Mastery        float64
	PredictedDecay float64
	HasVisualAid   bool
	VisualAidID    string
}

// Scheduler ranks overdue mastery records into a bounded review list.
type Scheduler struct {
	tracker *Tracker
	log     *logger.Logger
}

func NewScheduler(tracker *Tracker, baseLog *logger.Logger) *Scheduler {
	return &Scheduler{tracker: tracker, log: baseLog.With("service", "ReviewScheduler")}
}

// ReviewSchedule returns the learner's overdue records ranked by priority,
// truncated to maxItems. The sort is stable over the tracker's first-touch
// record order, so equal priorities keep a deterministic relative order and
// truncation never reorders the retained prefix.
func (s *Scheduler) ReviewSchedule(learnerID uuid.UUID, catalog Catalog, maxItems int) []ReviewEntry {
	if maxItems <= 0 {
		maxItems = DefaultMaxReviewItems
	}
	now := s.tracker.now()

	var entries []ReviewEntry
	for _, rec := range s.tracker.RecordsForLearner(learnerID) {
		if !rec.IsOverdue(now) {
			continue
		}
		entry := ReviewEntry{
			ConceptID:      rec.ConceptID,
			ConceptName:    rec.ConceptID,
			ScheduledAt:    rec.NextReviewAt,
			Priority:       reviewPriority(rec, now),
			Mastery:        rec.Score,
			PredictedDecay: rec.Score * (1 - retention(7, rec.Stability)),
		}
		if catalog != nil {
			if info, ok := catalog.ConceptInfo(rec.ConceptID); ok {
				entry.ConceptName = info.Name
				entry.Subject = info.Subject
			}
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Priority > entries[j].Priority })
	if len(entries) > maxItems {
		entries = entries[:maxItems]
	}
	s.log.Debug("review schedule built", "learner_id", learnerID, "items", len(entries))
	return entries
}

func reviewPriority(rec Record, now time.Time) float64 {
	daysOverdue := now.Sub(rec.NextReviewAt).Hours() / 24
	if daysOverdue < 0 {
		daysOverdue = 0
	}
	overdueBonus := daysOverdue * 0.05
	if overdueBonus > 0.3 {
		overdueBonus = 0.3
	}

	decayBonus := 0.0
	switch r7 := retention(7, rec.Stability); {
	case r7 < 0.5:
		decayBonus = 0.3
	case r7 < 0.7:
		decayBonus = 0.15
	}

	lowMasteryBonus := 0.0
	switch {
	case rec.Score < 0.3:
		lowMasteryBonus = 0.2
	case rec.Score < 0.5:
		lowMasteryBonus = 0.1
	}

	p := overdueBonus + decayBonus + lowMasteryBonus
	if p > 1 {
		p = 1
	}
	return p
}
