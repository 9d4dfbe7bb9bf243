// Package analysis aggregates normalized quiz submissions into per-topic
// performance and textual insights.
package analysis

import (
	"math"

	"github.com/pavelanni/neetrank/internal/model"
)

// topicGroup holds the accuracies of one topic in history order.
type topicGroup struct {
	topic      string
	accuracies []float64
}

func (g topicGroup) mean() float64 {
	var sum float64
	for _, a := range g.accuracies {
		sum += a
	}
	return sum / float64(len(g.accuracies))
}

// groupByTopic groups accuracies by exact topic label. Groups are ordered by
// the first appearance of their topic in history.
func groupByTopic(history []model.Submission) []topicGroup {
	index := make(map[string]int)
	var groups []topicGroup
	for _, s := range history {
		i, ok := index[s.Topic]
		if !ok {
			i = len(groups)
			index[s.Topic] = i
			groups = append(groups, topicGroup{topic: s.Topic})
		}
		groups[i].accuracies = append(groups[i].accuracies, s.Accuracy)
	}
	return groups
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
