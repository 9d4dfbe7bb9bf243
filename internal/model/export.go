package model

import (
	"fmt"
	"strconv"
	"time"
)

// RankPrediction is the rank section returned to clients.
type RankPrediction struct {
	UserID              string              `json:"user_id"`
	PredictedRank       int                 `json:"predicted_rank"`
	RankRange           string              `json:"rank_range"`
	ConfidenceScore     float64             `json:"confidence_score"`
	RecommendedColleges []CollegePrediction `json:"recommended_colleges"`
	Note                string              `json:"note,omitempty"`
}

// CollegePrediction is one suggested institution.
type CollegePrediction struct {
	Name        string  `json:"name"`
	Probability float64 `json:"probability"`
	CutoffRange string  `json:"cutoff_range"`
}

// Summary is the top-level structure of the summary endpoint and the
// report command.
type Summary struct {
	UserID          string              `json:"user_id"`
	Analysis        *StudentPerformance `json:"analysis"`
	Insights        InsightReport       `json:"insights"`
	Prediction      RankPrediction      `json:"predictions"`
	Charts          any                 `json:"visualizations"`
	Consistency     float64             `json:"consistency_score"`
	RecentQuizCount int                 `json:"recent_quiz_count"`
	GeneratedAt     time.Time           `json:"generated_at"`
}

func toString(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(v)
	}
}
