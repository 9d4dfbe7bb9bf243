package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/pavelanni/neetrank/internal/analysis"
	"github.com/pavelanni/neetrank/internal/model"
	"github.com/pavelanni/neetrank/internal/rank"
	"github.com/pavelanni/neetrank/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func raw(id int, user, topic string, accuracy, finalScore float64, day int) model.RawSubmission {
	return model.RawSubmission{
		"id":           float64(id),
		"quiz_id":      float64(100 + id),
		"user_id":      user,
		"submitted_at": fmt.Sprintf("2024-01-%02dT10:00:00Z", day),
		"score":        finalScore,
		"final_score":  finalScore,
		"accuracy":     fmt.Sprintf("%.0f %%", accuracy*100),
		"quiz":         map[string]any{"topic": topic},
	}
}

func seed(t *testing.T, s *store.Store, raws ...model.RawSubmission) {
	t.Helper()
	if _, err := s.SaveSubmissions(context.Background(), raws, false); err != nil {
		t.Fatalf("SaveSubmissions: %v", err)
	}
}

func TestAnalyze(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		raw(1, "u1", "Physiology", 0.8, 40, 15),
		raw(2, "u1", "Genetics", 0.3, 20, 16),
	)
	if _, err := s.SaveSubmissions(context.Background(), []model.RawSubmission{raw(3, "u1", "Physiology", 0.6, 30, 17)}, true); err != nil {
		t.Fatalf("SaveSubmissions current: %v", err)
	}

	a, err := Analyze(context.Background(), s, rank.NewEstimator(nil), "u1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.Submissions) != 3 {
		t.Fatalf("expected current submission appended, got %d", len(a.Submissions))
	}
	if a.Submissions[2].ID != 3 {
		t.Errorf("current submission should be last, got id %d", a.Submissions[2].ID)
	}
	perf := a.Performance
	if got := perf.TopicWiseAccuracy["Physiology"]; math.Abs(got-0.7) > 1e-9 {
		t.Errorf("Physiology accuracy = %v, want 0.7", got)
	}
	if len(perf.WeakAreas) != 1 || perf.WeakAreas[0] != "Genetics" {
		t.Errorf("weak areas = %v", perf.WeakAreas)
	}
	if perf.PredictedRank == nil || *perf.PredictedRank != rank.PlaceholderRank {
		t.Errorf("predicted rank = %v, want placeholder", perf.PredictedRank)
	}
	if len(perf.RecommendedColleges) != 3 || a.Prediction.PredictedRank != rank.PlaceholderRank {
		t.Errorf("prediction = %+v", a.Prediction)
	}
}

func TestAnalyzeNoData(t *testing.T) {
	s := newTestStore(t)
	// A record that fails validation leaves nothing to analyze.
	seed(t, s, model.RawSubmission{"id": float64(1), "user_id": "u1", "accuracy": "bad"})

	_, err := Analyze(context.Background(), s, rank.NewEstimator(nil), "u1")
	if !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData, got %v", err)
	}
	_, err = Analyze(context.Background(), s, rank.NewEstimator(nil), "nobody")
	if !errors.Is(err, ErrNoData) {
		t.Errorf("expected ErrNoData for unknown user, got %v", err)
	}
}

func TestBuildSummary(t *testing.T) {
	s := newTestStore(t)
	seed(t, s,
		raw(1, "u1", "Physiology", 0.8, 40, 15),
		raw(2, "u1", "Genetics", 0.3, 20, 16),
		raw(3, "u1", "Physiology", 0.6, 30, 17),
	)
	a, err := Analyze(context.Background(), s, rank.NewEstimator(nil), "u1")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	now := time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC)
	sum := BuildSummary(a, SummaryOptions{
		Insights:   analysis.Options{Topics: []string{"Physiology", "Genetics", "Ecology"}, Now: func() time.Time { return now }},
		RecentDays: 2,
	})
	if sum.UserID != "u1" {
		t.Errorf("user = %q", sum.UserID)
	}
	if sum.RecentQuizCount != 2 {
		t.Errorf("recent quizzes = %d, want 2", sum.RecentQuizCount)
	}
	if sum.Insights.OverallStatistics == nil || sum.Insights.OverallStatistics.TotalQuizzes != 3 {
		t.Errorf("insights = %+v", sum.Insights)
	}
	if len(sum.Insights.UncoveredTopics) != 1 || sum.Insights.UncoveredTopics[0] != "Ecology" {
		t.Errorf("uncovered = %v", sum.Insights.UncoveredTopics)
	}
	if sum.Consistency <= 0 || sum.Consistency >= 1 {
		t.Errorf("consistency = %v, want within (0,1)", sum.Consistency)
	}
	if !sum.GeneratedAt.Equal(now) {
		t.Errorf("generated at = %v", sum.GeneratedAt)
	}
}

// trainingHistories gives six users two Genetics quizzes each. Their feature
// vectors span the regression's parameter space.
var trainingHistories = []struct {
	first, second, final float64
	rank                 int
}{
	{0.2, 0.4, 10, 9000},
	{0.8, 0.6, 20, 3000},
	{0.5, 0.9, 15, 2500},
	{0.3, 0.3, 40, 7000},
	{0.9, 0.9, 5, 800},
	{0.4, 0.6, 30, 5000},
}

func TestTrain(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i, h := range trainingHistories {
		user := fmt.Sprintf("u%d", i)
		seed(t, s,
			raw(2*i, user, "Genetics", h.first, h.final, 10),
			raw(2*i+1, user, "Genetics", h.second, h.final, 11),
		)
		if err := s.UpsertRankSample(ctx, user, h.rank); err != nil {
			t.Fatalf("UpsertRankSample: %v", err)
		}
	}
	// A recorded rank without any history is skipped.
	if err := s.UpsertRankSample(ctx, "ghost", 100); err != nil {
		t.Fatalf("UpsertRankSample: %v", err)
	}

	est := rank.NewEstimator(nil)
	res, err := Train(ctx, s, est)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if res.Used != 6 || res.Skipped != 1 || res.RunID == "" {
		t.Errorf("result = %+v", res)
	}
	if est.State() != rank.Trained {
		t.Errorf("estimator state = %v", est.State())
	}

	restored := rank.NewEstimator(nil)
	ok, err := RestoreLatest(ctx, s, restored)
	if err != nil || !ok {
		t.Fatalf("RestoreLatest = %v, %v", ok, err)
	}
	m, _ := restored.Model()
	if m.Intercept != res.Model.Intercept || m.Coefficients != res.Model.Coefficients {
		t.Errorf("restored model = %+v, want %+v", m, res.Model)
	}
}

func TestTrainTooFewSamples(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, raw(1, "u1", "Genetics", 0.5, 10, 10))
	if err := s.UpsertRankSample(ctx, "u1", 4000); err != nil {
		t.Fatalf("UpsertRankSample: %v", err)
	}

	est := rank.NewEstimator(nil)
	if _, err := Train(ctx, s, est); !errors.Is(err, rank.ErrTooFewSamples) {
		t.Errorf("expected ErrTooFewSamples, got %v", err)
	}
	if est.State() != rank.Untrained {
		t.Error("failed training must leave the estimator untrained")
	}
}

func TestRestoreLatestEmpty(t *testing.T) {
	ok, err := RestoreLatest(context.Background(), newTestStore(t), rank.NewEstimator(nil))
	if err != nil || ok {
		t.Errorf("RestoreLatest = %v, %v; want false, nil", ok, err)
	}
}
