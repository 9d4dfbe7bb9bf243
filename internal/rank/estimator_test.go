package rank

import (
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pavelanni/neetrank/internal/model"
)

var base = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func perfWith(acc map[string]float64, weak []string, trends map[string][]float64, scores ...float64) *model.StudentPerformance {
	p := &model.StudentPerformance{
		UserID:            "u",
		TopicWiseAccuracy: acc,
		WeakAreas:         weak,
		ImprovementTrends: trends,
	}
	for i, s := range scores {
		p.QuizHistory = append(p.QuizHistory, model.Submission{
			ID: int64(i), FinalScore: s, SubmittedAt: base.AddDate(0, 0, i),
		})
	}
	return p
}

func TestFeatures(t *testing.T) {
	p := perfWith(
		map[string]float64{"Physiology": 0.7, "Genetics": 0.3},
		[]string{"Genetics"},
		map[string][]float64{"Physiology": {0.8, 0.6}, "Genetics": {0.3}},
		40, 30,
	)
	// The most recent submission is not the last one in history order.
	p.QuizHistory[0].SubmittedAt = base.AddDate(0, 0, 5)

	f := Features(p)
	want := Vector{0.5, 1, -0.2, 40}
	for i := range f {
		if math.Abs(f[i]-want[i]) > 1e-9 {
			t.Errorf("feature %d = %v, want %v", i, f[i], want[i])
		}
	}
}

func TestFeaturesNoMultiPointTrends(t *testing.T) {
	p := perfWith(map[string]float64{"A": 0.9}, nil, map[string][]float64{"A": {0.9}}, 100)
	if got := Features(p)[FeatImprovement]; got != 0 {
		t.Errorf("improvement = %v, want 0", got)
	}
}

func TestPredictRankUntrained(t *testing.T) {
	e := NewEstimator(nil)
	p := perfWith(
		map[string]float64{"A": 0.9, "B": 0.9, "C": 0.9},
		nil,
		map[string][]float64{"A": {0.9}, "B": {0.9}, "C": {0.9}},
		150,
	)
	if got := e.PredictRank(p); got != PlaceholderRank {
		t.Errorf("PredictRank = %d, want %d", got, PlaceholderRank)
	}
	if e.State() != Untrained {
		t.Errorf("state = %v", e.State())
	}
}

func trainingSet() ([]Sample, Model) {
	truth := Model{Intercept: 20000, Coefficients: Vector{-15000, 800, -3000, -20}}
	var samples []Sample
	for i := range 12 {
		fi := float64(i)
		acc := 0.3 + 0.05*fi
		weak := make([]string, i%4)
		for j := range weak {
			weak[j] = string(rune('a' + j))
		}
		first := 0.2 + 0.03*float64(i%5)
		p := perfWith(
			map[string]float64{"A": acc, "B": acc * acc},
			weak,
			map[string][]float64{"A": {first, first + 0.01*fi*fi/10}},
			10+7*fi+float64(i%3)*11,
		)
		samples = append(samples, Sample{Performance: p, ObservedRank: int(math.Round(truth.Predict(Features(p))))})
	}
	return samples, truth
}

func TestTrainAndPredict(t *testing.T) {
	samples, _ := trainingSet()
	e := NewEstimator(nil)
	m, err := e.Train(samples)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if e.State() != Trained || m.Samples != len(samples) {
		t.Fatalf("unexpected state %v / model %+v", e.State(), m)
	}
	for i, s := range samples {
		got := e.PredictRank(s.Performance)
		if d := got - s.ObservedRank; d < -2 || d > 2 {
			t.Errorf("sample %d: predicted %d, observed %d", i, got, s.ObservedRank)
		}
	}
}

func TestTrainTooFewSamples(t *testing.T) {
	samples, _ := trainingSet()
	e := NewEstimator(nil)
	_, err := e.Train(samples[:3])
	if !errors.Is(err, ErrTooFewSamples) {
		t.Fatalf("expected ErrTooFewSamples, got %v", err)
	}
	if e.State() != Untrained {
		t.Error("failed training must not change state")
	}
}

func TestPredictRankClampsToOne(t *testing.T) {
	e := NewEstimator(nil)
	e.model = Model{Intercept: -100}
	e.state = Trained
	p := perfWith(map[string]float64{"A": 1}, nil, nil, 1)
	if got := e.PredictRank(p); got != 1 {
		t.Errorf("PredictRank = %d, want 1", got)
	}
}

func TestConcurrentPredict(t *testing.T) {
	samples, _ := trainingSet()
	e := NewEstimator(nil)
	if _, err := e.Train(samples); err != nil {
		t.Fatalf("Train: %v", err)
	}
	want := e.PredictRank(samples[0].Performance)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got := e.PredictRank(samples[0].Performance); got != want {
				t.Errorf("concurrent PredictRank = %d, want %d", got, want)
			}
		}()
	}
	wg.Wait()
}

func TestPredictColleges(t *testing.T) {
	e := NewEstimator(nil)
	a := e.PredictColleges(100)
	b := e.PredictColleges(90000)
	if len(a) != 3 || a[0] != "All India Institute of Medical Sciences" {
		t.Errorf("colleges = %v", a)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("college list must be deterministic: %v vs %v", a, b)
		}
	}
	a[0] = "mutated"
	if e.PredictColleges(1)[0] == "mutated" {
		t.Error("PredictColleges must return a copy")
	}
}

func TestPrediction(t *testing.T) {
	e := NewEstimator([]string{"X", "Y"})
	p := perfWith(map[string]float64{"A": 0.5}, nil, nil, 10)
	got := e.Prediction("u1", p)
	if got.PredictedRank != PlaceholderRank || got.RankRange != "4500 to 5500" {
		t.Errorf("prediction = %+v", got)
	}
	if len(got.RecommendedColleges) != 2 {
		t.Fatalf("colleges = %+v", got.RecommendedColleges)
	}
	second := got.RecommendedColleges[1]
	if second.Name != "Y" || second.Probability != 0.8 || second.CutoffRange != "≤ 6000" {
		t.Errorf("second college = %+v", second)
	}
}

func TestRestore(t *testing.T) {
	e := NewEstimator(nil)
	e.Restore(Model{Intercept: 1234})
	if e.State() != Trained {
		t.Fatalf("state = %v, want trained", e.State())
	}
	p := perfWith(map[string]float64{"A": 0.5}, nil, nil, 10)
	if got := e.PredictRank(p); got != 1234 {
		t.Errorf("PredictRank = %d, want 1234", got)
	}
}
