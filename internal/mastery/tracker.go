package mastery

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/mindgrove/mindgrove-backend/internal/pkg/errors"
	"github.com/mindgrove/mindgrove-backend/internal/pkg/logger"
)

const (
	stabilityCapDays   = 365
	stabilityFloorDays = 1
	intervalCapDays    = 365
	intervalFloorDays  = 1
	// decayIdleDays is the minimum idle gap before decay is applied.
	decayIdleDays = 0.1
)

// Key identifies one mastery record.
type Key struct {
	LearnerID uuid.UUID
	ConceptID string
}

type entry struct {
	mu  sync.Mutex
	rec *Record
}

// Tracker owns every mastery record in the process. Updates to one record
// are serialized through a per-record mutex because the decay-then-update
// sequence is not commutative; distinct records update fully in parallel.
type Tracker struct {
	mu      sync.RWMutex
	entries map[Key]*entry
	order   []Key
	now     func() time.Time
	log     *logger.Logger
}

func NewTracker(baseLog *logger.Logger) *Tracker {
	return NewTrackerWithClock(baseLog, time.Now)
}

// NewTrackerWithClock fixes the tracker's time source. Everything that
// reasons about "now" (decay, overdue checks, hydration cutoffs) must go
// through this clock so callers with a synthetic clock stay consistent.
func NewTrackerWithClock(baseLog *logger.Logger, clock func() time.Time) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{
		entries: make(map[Key]*entry),
		now:     clock,
		log:     baseLog.With("service", "MasteryTracker"),
	}
}

// Now reports the tracker's current time.
func (t *Tracker) Now() time.Time { return t.now() }

// entryFor returns the record entry, lazily creating a default record.
func (t *Tracker) entryFor(learnerID uuid.UUID, conceptID string) *entry {
	k := Key{LearnerID: learnerID, ConceptID: conceptID}
	t.mu.RLock()
	e, ok := t.entries[k]
	t.mu.RUnlock()
	if ok {
		return e
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok = t.entries[k]; ok {
		return e
	}
	e = &entry{rec: newRecord(learnerID, conceptID, t.now())}
	t.entries[k] = e
	t.order = append(t.order, k)
	return e
}

// Has reports whether a record already exists in memory, without creating
// one. Callers use this to decide whether to hydrate from persisted state.
func (t *Tracker) Has(learnerID uuid.UUID, conceptID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.entries[Key{LearnerID: learnerID, ConceptID: conceptID}]
	return ok
}

// Record returns a snapshot of the (learner, concept) record, creating a
// default record on first touch.
func (t *Tracker) Record(learnerID uuid.UUID, conceptID string) Record {
	e := t.entryFor(learnerID, conceptID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec.clone()
}

// RecordInteraction applies one graded interaction: decay, bounded update,
// stability adjustment, and review rescheduling, in that order. The returned
// record is a snapshot of the post-update state.
func (t *Tracker) RecordInteraction(learnerID uuid.UUID, res InteractionResult) (Record, error) {
	if learnerID == uuid.Nil || res.ConceptID == "" {
		return Record{}, fmt.Errorf("mastery: record interaction: %w", pkgerrors.ErrInvalidArgument)
	}
	e := t.entryFor(learnerID, res.ConceptID)
	e.mu.Lock()
	defer e.mu.Unlock()

	now := t.now()
	rec := e.rec
	res.Score = clamp(res.Score, 0, 1)
	rating := clamp(res.DifficultyRating, 0.5, 2.0)

	// 1. Forgetting-curve decay since the last interaction.
	if !rec.LastInteractionAt.IsZero() {
		idleDays := now.Sub(rec.LastInteractionAt).Hours() / 24
		if idleDays > decayIdleDays {
			rec.Score *= math.Exp(-idleDays / rec.Stability)
		}
	}

	// 2. Bounded update toward the interaction result.
	alpha := 0.3 / rating
	confidenceFactor := rec.Confidence + math.Min(0.3, float64(rec.InteractionCount)*0.02) + 0.2
	if res.Success {
		rec.Score += alpha*(res.Score-rec.Score)*confidenceFactor + 0.1*(1-rec.DifficultyModifier)*0.1
		rec.Confidence += 0.05 * confidenceFactor
	} else {
		rec.Score -= 0.2 * rec.Score * confidenceFactor
		rec.Confidence -= 0.02
	}
	rec.Score = clamp(rec.Score, 0, 1)
	rec.Confidence = clamp(rec.Confidence, 0.1, 1)

	// 3. Stability moves on the interaction grade, not the blended mastery
	// score: a strong performance stretches the memory half-life even while
	// overall mastery is still catching up.
	if res.Success {
		mult := 2.0
		if res.Score > 0.9 {
			mult = 2.5
		} else if res.Score < 0.6 {
			mult = 1.5
		}
		rec.Stability = math.Min(stabilityCapDays, rec.Stability*mult)
	} else {
		rec.Stability = math.Max(stabilityFloorDays, rec.Stability*0.8)
	}
	rec.IntervalDays = math.Max(intervalFloorDays, rec.Stability/rec.DifficultyModifier)

	// 4. Next review date.
	levelMult := 1.0
	switch {
	case rec.Score >= 0.95:
		levelMult = 2.0
	case rec.Score >= 0.85:
		levelMult = 1.5
	case rec.Score >= 0.70:
		levelMult = 1.2
	}
	reviewDays := clamp(rec.IntervalDays*(0.5+1.5*rec.Confidence)*levelMult, intervalFloorDays, intervalCapDays)
	rec.NextReviewAt = now.Add(time.Duration(reviewDays * 24 * float64(time.Hour)))

	// Counters, history, and the slow-moving difficulty modifier.
	rec.InteractionCount++
	if res.Success {
		rec.SuccessCount++
	}
	rec.TotalTimeSeconds += res.TimeSpentSeconds
	rec.LastInteractionAt = now
	if rec.Score > rec.PeakScore {
		rec.PeakScore = rec.Score
	}
	if rec.Score >= 0.95 {
		ts := now
		rec.LastMasteredAt = &ts
	}
	rec.DifficultyModifier = clamp(rec.DifficultyModifier*0.9+rating*0.1, 0.5, 2.0)
	rec.History = append(rec.History, Interaction{
		At:               now,
		Success:          res.Success,
		Kind:             res.Kind,
		Score:            res.Score,
		TimeSpentSeconds: res.TimeSpentSeconds,
		DifficultyRating: rating,
	})
	if len(rec.History) > historyCap {
		rec.History = rec.History[len(rec.History)-historyCap:]
	}

	t.log.Debug("interaction recorded",
		"learner_id", learnerID,
		"concept_id", res.ConceptID,
		"success", res.Success,
		"score", rec.Score,
		"stability", rec.Stability,
		"next_review_at", rec.NextReviewAt,
	)
	return rec.clone(), nil
}

// RetentionPrediction estimates the retention fraction after idle days on
// the record's current stability. It is 1 at zero days and non-increasing
// in the horizon.
func (t *Tracker) RetentionPrediction(learnerID uuid.UUID, conceptID string, days float64) float64 {
	e := t.entryFor(learnerID, conceptID)
	e.mu.Lock()
	defer e.mu.Unlock()
	return retention(days, e.rec.Stability)
}

func retention(days, stability float64) float64 {
	if days < 0 {
		days = 0
	}
	if stability < stabilityFloorDays {
		stability = stabilityFloorDays
	}
	return math.Exp(-days / stability)
}

// KnownConcepts lists the concepts the learner currently masters at or
// above threshold, sorted by concept ID.
func (t *Tracker) KnownConcepts(learnerID uuid.UUID, threshold float64) []string {
	var out []string
	for _, rec := range t.RecordsForLearner(learnerID) {
		if rec.IsKnown(threshold) {
			out = append(out, rec.ConceptID)
		}
	}
	sort.Strings(out)
	return out
}

// RecordsForLearner snapshots the learner's records in first-touch order.
// The stable ordering is what makes downstream scheduling deterministic.
func (t *Tracker) RecordsForLearner(learnerID uuid.UUID) []Record {
	t.mu.RLock()
	keys := make([]Key, 0, len(t.order))
	for _, k := range t.order {
		if k.LearnerID == learnerID {
			keys = append(keys, k)
		}
	}
	entries := make([]*entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, t.entries[k])
	}
	t.mu.RUnlock()

	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.rec.clone())
		e.mu.Unlock()
	}
	return out
}

// Load hydrates records from persisted state, replacing any in-memory
// record with the same key.
func (t *Tracker) Load(records []Record) {
	for i := range records {
		rec := records[i].clone()
		e := t.entryFor(rec.LearnerID, rec.ConceptID)
		e.mu.Lock()
		*e.rec = rec
		e.mu.Unlock()
	}
}
