package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mindgrove/mindgrove-backend/internal/knowledge/graph"
	"github.com/mindgrove/mindgrove-backend/internal/knowledge/inference"
	"github.com/mindgrove/mindgrove-backend/internal/knowledge/similarity"
	"github.com/mindgrove/mindgrove-backend/internal/mastery"
	pkgerrors "github.com/mindgrove/mindgrove-backend/internal/pkg/errors"
	"github.com/mindgrove/mindgrove-backend/internal/pkg/logger"
	"github.com/mindgrove/mindgrove-backend/internal/types"
)

// fakeCatalogSource serves a fixed catalog: algebra -> equations -> calculus,
// with limits a second calculus prerequisite that nothing leads into.
type fakeCatalogSource struct {
	err error
}

func (f fakeCatalogSource) LoadCatalog(ctx context.Context) (map[string]graph.ConceptInput, []graph.RelationshipInput, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	concepts := map[string]graph.ConceptInput{
		"algebra":   {Name: "Algebra", SubjectID: "math", DifficultyLevel: "beginner", Tags: []string{"symbolic"}},
		"equations": {Name: "Equations", SubjectID: "math", DifficultyLevel: "intermediate", Tags: []string{"symbolic"}},
		"limits":    {Name: "Limits", SubjectID: "math", DifficultyLevel: "intermediate", Tags: []string{"symbolic"}},
		"calculus":  {Name: "Calculus", SubjectID: "math", DifficultyLevel: "advanced"},
	}
	relationships := []graph.RelationshipInput{
		{Source: "algebra", Target: "equations", Type: graph.RelPrerequisite},
		{Source: "equations", Target: "calculus", Type: graph.RelPrerequisite},
		{Source: "limits", Target: "calculus", Type: graph.RelPrerequisite},
	}
	return concepts, relationships, nil
}

type fakeMasteryRepo struct {
	rows    map[string]*types.ConceptMastery
	upserts int
	failAll bool
}

func newFakeMasteryRepo() *fakeMasteryRepo {
	return &fakeMasteryRepo{rows: make(map[string]*types.ConceptMastery)}
}

func rowKey(learnerID uuid.UUID, conceptID string) string {
	return learnerID.String() + "/" + conceptID
}

func (f *fakeMasteryRepo) seed(rec mastery.Record) {
	f.rows[rowKey(rec.LearnerID, rec.ConceptID)] = types.FromRecord(rec)
}

func (f *fakeMasteryRepo) GetByLearner(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID) ([]*types.ConceptMastery, error) {
	if f.failAll {
		return nil, errors.New("repo down")
	}
	var out []*types.ConceptMastery
	for _, row := range f.rows {
		if row.LearnerID == learnerID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (f *fakeMasteryRepo) GetByLearnerConcept(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, conceptID string) (*types.ConceptMastery, error) {
	if f.failAll {
		return nil, errors.New("repo down")
	}
	row, ok := f.rows[rowKey(learnerID, conceptID)]
	if !ok {
		return nil, pkgerrors.ErrNotFound
	}
	return row, nil
}

func (f *fakeMasteryRepo) Upsert(ctx context.Context, tx *gorm.DB, record *types.ConceptMastery) (*types.ConceptMastery, error) {
	if f.failAll {
		return nil, errors.New("repo down")
	}
	f.upserts++
	f.rows[rowKey(record.LearnerID, record.ConceptID)] = record
	return record, nil
}

func (f *fakeMasteryRepo) BulkUpsert(ctx context.Context, tx *gorm.DB, records []*types.ConceptMastery) ([]*types.ConceptMastery, error) {
	for _, r := range records {
		if _, err := f.Upsert(ctx, tx, r); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (f *fakeMasteryRepo) ListOverdue(ctx context.Context, tx *gorm.DB, learnerID uuid.UUID, asOf time.Time, limit int) ([]*types.ConceptMastery, error) {
	rows, err := f.GetByLearner(ctx, tx, learnerID)
	if err != nil {
		return nil, err
	}
	var out []*types.ConceptMastery
	for _, row := range rows {
		if row.NextReviewAt != nil && !row.NextReviewAt.After(asOf) {
			out = append(out, row)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeVisualAids struct {
	mappings map[string][]types.VisualAidMapping
	errOn    string
}

func (f fakeVisualAids) MappingsForConcept(ctx context.Context, conceptID string) ([]types.VisualAidMapping, error) {
	if conceptID == f.errOn {
		return nil, fmt.Errorf("asset store unavailable")
	}
	return f.mappings[conceptID], nil
}

func newTestKnowledge(t *testing.T) KnowledgeService {
	t.Helper()
	svc := NewKnowledgeService(fakeCatalogSource{}, inference.NewDefaultRegistry(), logger.NewNop())
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return svc
}

func TestKnowledgeServiceRefreshBuildsGraph(t *testing.T) {
	svc := newTestKnowledge(t)
	g := svc.Graph()
	if g.NodeCount() != 4 {
		t.Fatalf("node count = %d, want 4", g.NodeCount())
	}
	if g.EdgeCount() != 3 {
		t.Fatalf("edge count = %d, want 3", g.EdgeCount())
	}
	if _, err := svc.ConceptSimilarity(context.Background(), "algebra", "equations"); err != nil {
		t.Fatalf("similarity over known pair: %v", err)
	}
	if _, err := svc.ConceptSimilarity(context.Background(), "algebra", "nope"); !errors.Is(err, pkgerrors.ErrUnknownConcept) {
		t.Fatalf("similarity over unknown concept: err = %v, want ErrUnknownConcept", err)
	}
}

func TestKnowledgeServiceRefreshSourceFailure(t *testing.T) {
	svc := NewKnowledgeService(fakeCatalogSource{err: errors.New("boom")}, inference.NewDefaultRegistry(), logger.NewNop())
	if err := svc.Refresh(context.Background()); err == nil {
		t.Fatal("expected refresh error when the source fails")
	}
}

func TestKnowledgeServiceRunInferenceDerivesTransitiveChain(t *testing.T) {
	svc := newTestKnowledge(t)
	rels, stats, err := svc.RunInference(context.Background(), nil, inference.Scope{})
	if err != nil {
		t.Fatalf("run inference: %v", err)
	}
	if stats.RulesApplied == 0 || len(stats.RuleErrors) != 0 {
		t.Fatalf("stats = %+v, want applied rules and no errors", stats)
	}
	found := false
	for _, rel := range rels {
		if rel.Source == "algebra" && rel.Target == "calculus" && rel.Type == "derived_prerequisite" {
			found = true
			if math.Abs(rel.Score-0.72) > 1e-9 {
				t.Fatalf("algebra->calculus score = %v, want 0.72", rel.Score)
			}
		}
	}
	if !found {
		t.Fatalf("missing derived algebra->calculus relationship in %+v", rels)
	}
	if !svc.Graph().HasEdgeOfType("algebra", "calculus", "derived_prerequisite") {
		t.Fatal("derived relationship not committed to the graph snapshot")
	}
}

func newTestMasterySvc(repo *fakeMasteryRepo, knowledge KnowledgeService, aids VisualAidLookup) MasteryService {
	log := logger.NewNop()
	tracker := mastery.NewTracker(log)
	scheduler := mastery.NewScheduler(tracker, log)
	return NewMasteryService(tracker, scheduler, repo, knowledge, aids, 0.7, log)
}

func TestMasteryServiceUpdatePersists(t *testing.T) {
	repo := newFakeMasteryRepo()
	svc := newTestMasterySvc(repo, nil, nil)
	learner := uuid.New()

	rec, err := svc.UpdateMastery(context.Background(), learner, mastery.InteractionResult{
		ConceptID:        "algebra",
		Success:          true,
		Kind:             "quiz",
		Score:            0.9,
		DifficultyRating: 1,
	})
	if err != nil {
		t.Fatalf("update mastery: %v", err)
	}
	if math.Abs(rec.Score-0.189) > 1e-9 {
		t.Fatalf("score after first success = %v, want 0.189", rec.Score)
	}
	if repo.upserts != 1 {
		t.Fatalf("upserts = %d, want 1", repo.upserts)
	}
	row, err := repo.GetByLearnerConcept(context.Background(), nil, learner, "algebra")
	if err != nil {
		t.Fatalf("persisted row missing: %v", err)
	}
	if math.Abs(row.MasteryScore-rec.Score) > 1e-9 {
		t.Fatalf("persisted score = %v, want %v", row.MasteryScore, rec.Score)
	}
}

func TestMasteryServiceHydratesPersistedState(t *testing.T) {
	repo := newFakeMasteryRepo()
	learner := uuid.New()
	past := time.Now().Add(-48 * time.Hour)
	repo.seed(mastery.Record{
		LearnerID:          learner,
		ConceptID:          "algebra",
		Score:              0.8,
		Confidence:         0.6,
		Stability:          12,
		DifficultyModifier: 1,
		IntervalDays:       6,
		FirstSeenAt:        past,
		LastInteractionAt:  past,
		NextReviewAt:       past,
		InteractionCount:   4,
		SuccessCount:       3,
	})
	svc := newTestMasterySvc(repo, nil, nil)

	known, err := svc.KnownConcepts(context.Background(), learner)
	if err != nil {
		t.Fatalf("known concepts: %v", err)
	}
	if len(known) != 1 || known[0] != "algebra" {
		t.Fatalf("known = %v, want [algebra]", known)
	}

	got, err := svc.RetentionPrediction(context.Background(), learner, "algebra", 12)
	if err != nil {
		t.Fatalf("retention: %v", err)
	}
	want := math.Exp(-1)
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("retention(12d, stability 12) = %v, want %v", got, want)
	}

	records, err := svc.GetMasteryForLearner(context.Background(), learner)
	if err != nil {
		t.Fatalf("get mastery: %v", err)
	}
	if len(records) != 1 || records[0].ConceptID != "algebra" {
		t.Fatalf("records = %+v, want the hydrated algebra record", records)
	}
}

func TestMasteryServiceFlushLearnerBatches(t *testing.T) {
	repo := newFakeMasteryRepo()
	svc := newTestMasterySvc(repo, nil, nil)
	learner := uuid.New()
	for _, conceptID := range []string{"algebra", "equations"} {
		if _, err := svc.UpdateMastery(context.Background(), learner, mastery.InteractionResult{
			ConceptID: conceptID, Success: true, Score: 0.8, DifficultyRating: 1,
		}); err != nil {
			t.Fatalf("update %s: %v", conceptID, err)
		}
	}
	n, err := svc.FlushLearner(context.Background(), learner)
	if err != nil {
		t.Fatalf("flush: %v", err)
	}
	if n != 2 {
		t.Fatalf("flushed = %d, want 2", n)
	}
	if len(repo.rows) != 2 {
		t.Fatalf("persisted rows = %d, want 2", len(repo.rows))
	}
}

func TestMasteryServiceHydrateFailureSurfaces(t *testing.T) {
	repo := newFakeMasteryRepo()
	repo.failAll = true
	svc := newTestMasterySvc(repo, nil, nil)
	if _, err := svc.KnownConcepts(context.Background(), uuid.New()); err == nil {
		t.Fatal("expected error when hydration fails")
	}
}

func TestReviewScheduleAnnotatesVisualAids(t *testing.T) {
	repo := newFakeMasteryRepo()
	learner := uuid.New()
	assetID := uuid.NewString()
	past := time.Now().Add(-72 * time.Hour)
	for _, conceptID := range []string{"algebra", "equations"} {
		repo.seed(mastery.Record{
			LearnerID:          learner,
			ConceptID:          conceptID,
			Score:              0.2,
			Confidence:         0.5,
			Stability:          1,
			DifficultyModifier: 1,
			IntervalDays:       1,
			FirstSeenAt:        past,
			LastInteractionAt:  past,
			NextReviewAt:       past,
		})
	}
	aids := fakeVisualAids{
		mappings: map[string][]types.VisualAidMapping{
			"algebra": {{AssetID: assetID, RelevanceType: "diagram"}},
		},
		errOn: "equations",
	}
	svc := newTestMasterySvc(repo, newTestKnowledge(t), aids)

	entries, err := svc.GetReviewSchedule(context.Background(), learner, 10)
	if err != nil {
		t.Fatalf("review schedule: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2 overdue", len(entries))
	}
	byID := make(map[string]mastery.ReviewEntry, len(entries))
	for _, e := range entries {
		byID[e.ConceptID] = e
	}
	algebra := byID["algebra"]
	if !algebra.HasVisualAid || algebra.VisualAidID != assetID {
		t.Fatalf("algebra entry not annotated: %+v", algebra)
	}
	if algebra.ConceptName != "Algebra" || algebra.Subject != "math" {
		t.Fatalf("algebra entry missing catalog info: %+v", algebra)
	}
	// A failing asset lookup must not drop the entry or fail the call.
	equations := byID["equations"]
	if equations.HasVisualAid {
		t.Fatalf("equations entry annotated despite lookup failure: %+v", equations)
	}
}

func TestReviewScheduleHydratesAgainstTrackerClock(t *testing.T) {
	repo := newFakeMasteryRepo()
	learner := uuid.New()
	wallNow := time.Now()
	// Due five days from wall time: only overdue when judged by the
	// tracker's clock, which runs ten days ahead.
	due := wallNow.Add(5 * 24 * time.Hour)
	repo.seed(mastery.Record{
		LearnerID:          learner,
		ConceptID:          "algebra",
		Score:              0.2,
		Confidence:         0.5,
		Stability:          1,
		DifficultyModifier: 1,
		IntervalDays:       1,
		FirstSeenAt:        wallNow,
		LastInteractionAt:  wallNow,
		NextReviewAt:       due,
	})

	log := logger.NewNop()
	tracker := mastery.NewTrackerWithClock(log, func() time.Time { return wallNow.Add(10 * 24 * time.Hour) })
	scheduler := mastery.NewScheduler(tracker, log)
	svc := NewMasteryService(tracker, scheduler, repo, nil, nil, 0.7, log)

	entries, err := svc.GetReviewSchedule(context.Background(), learner, 10)
	if err != nil {
		t.Fatalf("review schedule: %v", err)
	}
	if len(entries) != 1 || entries[0].ConceptID != "algebra" {
		t.Fatalf("entries = %+v, want the record due on the tracker's clock", entries)
	}
}

// fakeMastery satisfies MasteryService for recommendation composition tests.
type fakeMastery struct {
	known    []string
	schedule []mastery.ReviewEntry
}

func (f fakeMastery) UpdateMastery(ctx context.Context, learnerID uuid.UUID, res mastery.InteractionResult) (mastery.Record, error) {
	return mastery.Record{}, nil
}

func (f fakeMastery) GetMasteryForLearner(ctx context.Context, learnerID uuid.UUID) ([]mastery.Record, error) {
	return nil, nil
}

func (f fakeMastery) GetReviewSchedule(ctx context.Context, learnerID uuid.UUID, maxItems int) ([]mastery.ReviewEntry, error) {
	return f.schedule, nil
}

func (f fakeMastery) KnownConcepts(ctx context.Context, learnerID uuid.UUID) ([]string, error) {
	return f.known, nil
}

func (f fakeMastery) RetentionPrediction(ctx context.Context, learnerID uuid.UUID, conceptID string, days float64) (float64, error) {
	return 1, nil
}

func (f fakeMastery) FlushLearner(ctx context.Context, learnerID uuid.UUID) (int, error) {
	return 0, nil
}

func TestRecommendationNextStepsRanksGapRemediation(t *testing.T) {
	knowledge := newTestKnowledge(t)
	svc := NewRecommendationService(fakeMastery{known: []string{"algebra"}}, knowledge, similarity.DefaultClusterOptions(), logger.NewNop())

	recs, err := svc.GetNextSteps(context.Background(), uuid.New(), 10)
	if err != nil {
		t.Fatalf("next steps: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("recs = %+v, want exactly limits and equations", recs)
	}
	// Calculus is blocked by two missing prerequisites, so both surface at
	// major-gap priority, shallowest prerequisite chain first.
	if recs[0].ConceptID != "limits" || recs[1].ConceptID != "equations" {
		t.Fatalf("order = [%s %s], want [limits equations]", recs[0].ConceptID, recs[1].ConceptID)
	}
	for _, r := range recs {
		if math.Abs(r.Priority-0.7) > 1e-9 {
			t.Fatalf("priority for %s = %v, want 0.7", r.ConceptID, r.Priority)
		}
	}
	if recs[0].ConceptName != "Limits" {
		t.Fatalf("concept name = %q, want catalog name", recs[0].ConceptName)
	}
}

func TestRecommendationNextStepsHonorsLimit(t *testing.T) {
	knowledge := newTestKnowledge(t)
	svc := NewRecommendationService(fakeMastery{known: []string{"algebra"}}, knowledge, similarity.DefaultClusterOptions(), logger.NewNop())

	recs, err := svc.GetNextSteps(context.Background(), uuid.New(), 1)
	if err != nil {
		t.Fatalf("next steps: %v", err)
	}
	if len(recs) != 1 || recs[0].ConceptID != "limits" {
		t.Fatalf("recs = %+v, want just the top suggestion", recs)
	}
}

func TestRecommendationReviewItemsDelegates(t *testing.T) {
	entry := mastery.ReviewEntry{ConceptID: "algebra", Priority: 0.4}
	svc := NewRecommendationService(fakeMastery{schedule: []mastery.ReviewEntry{entry}}, newTestKnowledge(t), similarity.DefaultClusterOptions(), logger.NewNop())
	items, err := svc.GetReviewItems(context.Background(), uuid.New(), 5)
	if err != nil {
		t.Fatalf("review items: %v", err)
	}
	if len(items) != 1 || items[0].ConceptID != "algebra" {
		t.Fatalf("items = %+v, want the delegated schedule", items)
	}
}
