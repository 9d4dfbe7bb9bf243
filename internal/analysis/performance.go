package analysis

import (
	"errors"
	"slices"

	"github.com/pavelanni/neetrank/internal/model"
)

// WeakThreshold is the mean accuracy below which a topic is a weak area.
const WeakThreshold = 0.6

// ErrEmptyHistory is returned when there is nothing to aggregate.
var ErrEmptyHistory = errors.New("quiz history is empty")

// Aggregate builds a StudentPerformance from a non-empty history. The
// history slice is neither reordered nor modified.
func Aggregate(history []model.Submission) (*model.StudentPerformance, error) {
	if len(history) == 0 {
		return nil, ErrEmptyHistory
	}

	groups := groupByTopic(history)
	accuracy := make(map[string]float64, len(groups))
	weak := make([]string, 0)
	for _, g := range groups {
		m := g.mean()
		accuracy[g.topic] = m
		if m < WeakThreshold {
			weak = append(weak, g.topic)
		}
	}

	return &model.StudentPerformance{
		UserID:            history[0].UserID,
		QuizHistory:       slices.Clone(history),
		TopicWiseAccuracy: accuracy,
		WeakAreas:         weak,
		ImprovementTrends: Trends(history),
	}, nil
}

// Trends returns each topic's accuracies in ascending submission time.
// Submissions with equal timestamps keep their input order.
func Trends(history []model.Submission) map[string][]float64 {
	sorted := slices.Clone(history)
	slices.SortStableFunc(sorted, func(a, b model.Submission) int {
		return a.SubmittedAt.Compare(b.SubmittedAt)
	})
	trends := make(map[string][]float64)
	for _, s := range sorted {
		trends[s.Topic] = append(trends[s.Topic], s.Accuracy)
	}
	return trends
}
