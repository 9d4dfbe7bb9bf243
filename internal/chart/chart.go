// Package chart reshapes analytics results into axis/series descriptors that
// a front-end charting library can render directly.
package chart

import (
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/pavelanni/neetrank/internal/model"
)

// Palette colours.
const (
	ColorPrimary   = "#2563eb"
	ColorSecondary = "#16a34a"
	ColorError     = "#ef4444"
	ColorNeutral   = "#64748b"
)

// Axis describes one chart axis.
type Axis struct {
	Label   string    `json:"label"`
	DataKey string    `json:"dataKey,omitempty"`
	Domain  []float64 `json:"domain,omitempty"`
}

// Series describes one plotted series.
type Series struct {
	Name    string `json:"name"`
	DataKey string `json:"dataKey"`
	Color   string `json:"color"`
}

// Chart is a renderable chart description.
type Chart struct {
	Type   string           `json:"type"`
	Title  string           `json:"title"`
	Data   []map[string]any `json:"data"`
	Axes   map[string]Axis  `json:"axes"`
	Series []Series         `json:"series"`
}

var percentDomain = []float64{0, 100}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// PerformanceTrend plots accuracy and final score per submission by date.
func PerformanceTrend(history []model.Submission) Chart {
	sorted := slices.Clone(history)
	slices.SortStableFunc(sorted, func(a, b model.Submission) int {
		return a.SubmittedAt.Compare(b.SubmittedAt)
	})
	data := make([]map[string]any, 0, len(sorted))
	for _, s := range sorted {
		data = append(data, map[string]any{
			"date":     s.SubmittedAt.Format(time.DateOnly),
			"accuracy": round2(s.Accuracy * 100),
			"score":    round2(s.FinalScore),
		})
	}
	return Chart{
		Type:  "line",
		Title: "Performance Trend",
		Data:  data,
		Axes: map[string]Axis{
			"x": {Label: "Quiz Date", DataKey: "date"},
			"y": {Label: "Score/Accuracy (%)", Domain: percentDomain},
		},
		Series: []Series{
			{Name: "Accuracy", DataKey: "accuracy", Color: ColorPrimary},
			{Name: "Score", DataKey: "score", Color: ColorSecondary},
		},
	}
}

// topicRow is a sortable intermediate for the per-topic charts.
type topicRow struct {
	topic    string
	accuracy float64
}

func topicRows(acc map[string]float64) []topicRow {
	rows := make([]topicRow, 0, len(acc))
	for t, a := range acc {
		rows = append(rows, topicRow{topic: t, accuracy: round2(a * 100)})
	}
	// Topic name breaks ties so the output does not depend on map order.
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].accuracy == rows[j].accuracy {
			return rows[i].topic < rows[j].topic
		}
		return rows[i].accuracy < rows[j].accuracy
	})
	return rows
}

// TopicPerformance plots topic accuracies, best first.
func TopicPerformance(acc map[string]float64) Chart {
	rows := topicRows(acc)
	slices.Reverse(rows)
	data := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		status := "Needs Improvement"
		if acc[r.topic] >= 0.7 {
			status = "Good"
		}
		data = append(data, map[string]any{
			"topic":    r.topic,
			"accuracy": r.accuracy,
			"status":   status,
		})
	}
	return Chart{
		Type:  "bar",
		Title: "Topic-wise Performance",
		Data:  data,
		Axes: map[string]Axis{
			"x": {Label: "Subjects", DataKey: "topic"},
			"y": {Label: "Accuracy (%)", Domain: percentDomain},
		},
		Series: []Series{{Name: "Current Performance", DataKey: "accuracy", Color: ColorPrimary}},
	}
}

// WeakAreas plots the weak topics, weakest first, with the gap to 70%.
func WeakAreas(perf *model.StudentPerformance) Chart {
	weak := make(map[string]float64, len(perf.WeakAreas))
	for _, t := range perf.WeakAreas {
		weak[t] = perf.TopicWiseAccuracy[t]
	}
	rows := topicRows(weak)
	data := make([]map[string]any, 0, len(rows))
	for _, r := range rows {
		status := "Needs Work"
		if weak[r.topic] < 0.6 {
			status = "Critical"
		}
		data = append(data, map[string]any{
			"topic":    r.topic,
			"accuracy": r.accuracy,
			"gap":      round2(70 - weak[r.topic]*100),
			"status":   status,
		})
	}
	return Chart{
		Type:  "bar",
		Title: "Areas Needing Improvement",
		Data:  data,
		Axes: map[string]Axis{
			"x": {Label: "Current Score (%)", Domain: percentDomain},
			"y": {Label: "Subjects", DataKey: "topic"},
		},
		Series: []Series{{Name: "Current Score", DataKey: "accuracy", Color: ColorError}},
	}
}

// Improvement plots every topic's trend against quiz number. Topics with
// shorter trends simply have no value on later rows.
func Improvement(trends map[string][]float64) Chart {
	topics := make([]string, 0, len(trends))
	longest := 0
	for t, tr := range trends {
		topics = append(topics, t)
		longest = max(longest, len(tr))
	}
	sort.Strings(topics)

	data := make([]map[string]any, 0, longest)
	for i := range longest {
		row := map[string]any{"quiz": fmt.Sprintf("Quiz %d", i+1)}
		for _, t := range topics {
			if i < len(trends[t]) {
				row[t] = round2(trends[t][i] * 100)
			}
		}
		data = append(data, row)
	}

	series := make([]Series, 0, len(topics))
	for i, t := range topics {
		series = append(series, Series{Name: t, DataKey: t, Color: fmt.Sprintf("hsl(%d, 70%%, 50%%)", i*45)})
	}
	return Chart{
		Type:  "line",
		Title: "Improvement Trends",
		Data:  data,
		Axes: map[string]Axis{
			"x": {Label: "Quiz Number", DataKey: "quiz"},
			"y": {Label: "Score (%)", Domain: percentDomain},
		},
		Series: series,
	}
}

// DifficultyDistribution counts embedded questions per difficulty level.
// Questions tagged with an unknown level are ignored.
func DifficultyDistribution(history []model.Submission) Chart {
	levels := []model.Difficulty{model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard}
	total := make(map[model.Difficulty]int, len(levels))
	correct := make(map[model.Difficulty]int, len(levels))
	for _, s := range history {
		for _, q := range s.Questions {
			if !slices.Contains(levels, q.Difficulty) {
				continue
			}
			total[q.Difficulty]++
			if q.IsCorrect {
				correct[q.Difficulty]++
			}
		}
	}

	data := make([]map[string]any, 0, len(levels))
	for _, l := range levels {
		acc := 0.0
		if total[l] > 0 {
			acc = round2(float64(correct[l]) / float64(total[l]) * 100)
		}
		data = append(data, map[string]any{
			"difficulty": string(l),
			"total":      total[l],
			"correct":    correct[l],
			"accuracy":   acc,
		})
	}
	return Chart{
		Type:  "bar",
		Title: "Difficulty Distribution",
		Data:  data,
		Axes: map[string]Axis{
			"x": {Label: "Difficulty Level", DataKey: "difficulty"},
			"y": {Label: "Questions Count"},
		},
		Series: []Series{
			{Name: "Total Questions", DataKey: "total", Color: ColorNeutral},
			{Name: "Correct Answers", DataKey: "correct", Color: ColorPrimary},
		},
	}
}

// All builds every chart for a performance, keyed as the API exposes them.
func All(perf *model.StudentPerformance) map[string]Chart {
	return map[string]Chart{
		"performance_trend_chart":       PerformanceTrend(perf.QuizHistory),
		"topic_performance_chart":       TopicPerformance(perf.TopicWiseAccuracy),
		"weak_areas_chart":              WeakAreas(perf),
		"improvement_trends_chart":      Improvement(perf.ImprovementTrends),
		"difficulty_distribution_chart": DifficultyDistribution(perf.QuizHistory),
	}
}
