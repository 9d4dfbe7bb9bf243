package model

import (
	"time"
)

// RawSubmission is a quiz submission as delivered by a data source, before
// any validation. Values keep whatever JSON types the source produced.
type RawSubmission map[string]any

// UserID returns the raw user identifier as a string, or "" when absent.
func (r RawSubmission) UserID() string {
	switch v := r["user_id"].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return toString(v)
	}
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// QuestionOutcome is one difficulty-tagged question embedded in a submission.
type QuestionOutcome struct {
	ID         int64      `json:"id"`
	Difficulty Difficulty `json:"difficulty"`
	IsCorrect  bool       `json:"is_correct"`
}

// Submission is a validated quiz submission. Accuracy is a fraction in [0,1].
type Submission struct {
	ID               int64             `json:"id"`
	QuizID           int64             `json:"quiz_id"`
	UserID           string            `json:"user_id"`
	SubmittedAt      time.Time         `json:"submitted_at"`
	Score            float64           `json:"score"`
	Accuracy         float64           `json:"accuracy"`
	Speed            string            `json:"speed"`
	FinalScore       float64           `json:"final_score"`
	CorrectAnswers   int               `json:"correct_answers"`
	IncorrectAnswers int               `json:"incorrect_answers"`
	TotalQuestions   int               `json:"total_questions"`
	ResponseMap      map[string]int64  `json:"response_map"`
	Topic            string            `json:"topic"`
	Questions        []QuestionOutcome `json:"questions,omitempty"`
}

// StudentPerformance is the aggregated view of one student's history.
type StudentPerformance struct {
	UserID              string               `json:"user_id"`
	QuizHistory         []Submission         `json:"-"`
	TopicWiseAccuracy   map[string]float64   `json:"topic_wise_accuracy"`
	WeakAreas           []string             `json:"weak_areas"`
	ImprovementTrends   map[string][]float64 `json:"improvement_trends"`
	PredictedRank       *int                 `json:"predicted_rank,omitempty"`
	RecommendedColleges []string             `json:"recommended_colleges,omitempty"`
}

// Latest returns the chronologically most recent submission. Ties keep the
// earliest one in history order.
func (p *StudentPerformance) Latest() (Submission, bool) {
	if len(p.QuizHistory) == 0 {
		return Submission{}, false
	}
	latest := p.QuizHistory[0]
	for _, s := range p.QuizHistory[1:] {
		if s.SubmittedAt.After(latest.SubmittedAt) {
			latest = s
		}
	}
	return latest, true
}

// Status is the performance band of a topic in an insight report.
type Status string

const (
	StatusGood             Status = "Good"
	StatusAverage          Status = "Average"
	StatusNeedsImprovement Status = "Needs Improvement"
)

// Priority ranks weak areas for remediation.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
)

// OverallStatistics summarises a whole history.
type OverallStatistics struct {
	AverageAccuracy          float64 `json:"average_accuracy"`
	TotalQuizzes             int     `json:"total_quizzes"`
	TopicsCovered            int     `json:"topics_covered"`
	TopicsNeedingImprovement int     `json:"topics_needing_improvement"`
}

// TopicInsight is the per-topic section of an insight report.
type TopicInsight struct {
	Score           float64  `json:"score"`
	Status          Status   `json:"status"`
	Recommendations []string `json:"recommendations"`
}

// WeakArea is a topic flagged in an insight report.
type WeakArea struct {
	Topic        string   `json:"topic"`
	CurrentScore string   `json:"current_score"`
	Priority     Priority `json:"priority"`
}

// Action is a remediation step derived from a weak area.
type Action struct {
	Area     string   `json:"area"`
	Action   string   `json:"action"`
	Priority Priority `json:"priority"`
}

// InsightReport is regenerated on every request and never stored. When the
// history was empty only Error and GeneratedAt are set.
type InsightReport struct {
	OverallStatistics *OverallStatistics      `json:"overall_statistics,omitempty"`
	TopicInsights     map[string]TopicInsight `json:"topic_insights,omitempty"`
	WeakAreas         []WeakArea              `json:"weak_areas,omitempty"`
	Recommendations   []Action                `json:"recommendations,omitempty"`
	UncoveredTopics   []string                `json:"uncovered_topics,omitempty"`
	Error             string                  `json:"error,omitempty"`
	GeneratedAt       time.Time               `json:"generated_at"`
}

// ServiceConfig holds runtime parameters set via CLI flags.
type ServiceConfig struct {
	BasePath   string // URL prefix for sub-path deployments
	AdminToken string // bcrypt hash of the admin token; empty disables /admin
	RecentDays int    // window for the recent-activity summary
}
