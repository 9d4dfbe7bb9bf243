// Package rank estimates a competitive-exam rank from aggregated performance.
package rank

import (
	"github.com/pavelanni/neetrank/internal/model"
)

// NumFeatures is the length of a feature vector.
const NumFeatures = 4

// Feature vector positions.
const (
	FeatMeanAccuracy = iota
	FeatWeakAreas
	FeatImprovement
	FeatLatestScore
)

// Vector is the fixed-order numeric summary fed to the regression.
type Vector [NumFeatures]float64

// Features extracts the feature vector of perf: the unweighted mean of the
// topic accuracies, the number of weak areas, the mean last-minus-first
// trend delta over topics with at least two points (0 when there are none)
// and the final score of the most recent submission.
func Features(perf *model.StudentPerformance) Vector {
	var v Vector

	if n := len(perf.TopicWiseAccuracy); n > 0 {
		var sum float64
		for _, topic := range sortedKeys(perf.TopicWiseAccuracy) {
			sum += perf.TopicWiseAccuracy[topic]
		}
		v[FeatMeanAccuracy] = sum / float64(n)
	}

	v[FeatWeakAreas] = float64(len(perf.WeakAreas))

	var deltaSum float64
	var deltas int
	for _, topic := range sortedKeys(perf.ImprovementTrends) {
		trend := perf.ImprovementTrends[topic]
		if len(trend) < 2 {
			continue
		}
		deltaSum += trend[len(trend)-1] - trend[0]
		deltas++
	}
	if deltas > 0 {
		v[FeatImprovement] = deltaSum / float64(deltas)
	}

	if latest, ok := perf.Latest(); ok {
		v[FeatLatestScore] = latest.FinalScore
	}
	return v
}
