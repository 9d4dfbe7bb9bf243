package analysis

import (
	"math"
	"time"

	"github.com/pavelanni/neetrank/internal/model"
)

// ConsistencyScore rates how steady a series of accuracies (fractions) is:
// 1 minus the population standard deviation on the 0-100 scale divided by
// 100, clamped to [0,1]. An empty series scores 0.
func ConsistencyScore(accuracies []float64) float64 {
	if len(accuracies) == 0 {
		return 0
	}
	var mean float64
	for _, a := range accuracies {
		mean += a * 100
	}
	mean /= float64(len(accuracies))
	var variance float64
	for _, a := range accuracies {
		d := a*100 - mean
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(accuracies)))
	return min(1, max(0, 1-std/100))
}

// RecentSubmissions returns the submissions made strictly after now-days.
func RecentSubmissions(history []model.Submission, days int, now time.Time) []model.Submission {
	cutoff := now.AddDate(0, 0, -days)
	var out []model.Submission
	for _, s := range history {
		if s.SubmittedAt.After(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// Accuracies extracts the accuracy of every submission in history order.
func Accuracies(history []model.Submission) []float64 {
	out := make([]float64, len(history))
	for i, s := range history {
		out[i] = s.Accuracy
	}
	return out
}
