package analysis

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/neetrank/internal/model"
)

// Insight thresholds. Status bands are inclusive at both extremes.
const (
	GoodThreshold        = 0.75
	NeedsWorkThreshold   = 0.4
	FundamentalsBelow    = 0.6
	PracticeBelow        = 0.8
	WeakScoreBelow       = 70.0
	HighPriorityBelow    = 60.0
	noHistoryErrorMarker = "No quiz history available"
)

// Tier selects the recommendation wording for a topic.
type Tier int

const (
	TierFundamentals Tier = iota
	TierPractice
	TierMaintain
)

// Phrasebook renders the human-readable strings of an insight report.
type Phrasebook interface {
	Recommendation(topic string, tier Tier) string
	Action(topic string) string
}

// EnglishPhrasebook is the default Phrasebook.
type EnglishPhrasebook struct{}

func (EnglishPhrasebook) Recommendation(topic string, tier Tier) string {
	switch tier {
	case TierFundamentals:
		return fmt.Sprintf("Focus on %s fundamentals", topic)
	case TierPractice:
		return fmt.Sprintf("Practice more %s problems", topic)
	default:
		return fmt.Sprintf("Maintain performance in %s", topic)
	}
}

func (EnglishPhrasebook) Action(topic string) string {
	return "Intensive practice needed in " + topic
}

// Options configures Synthesize.
type Options struct {
	// Topics is the canonical subject list used for uncovered topics.
	Topics     []string
	Phrasebook Phrasebook
	Now        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Phrasebook == nil {
		o.Phrasebook = EnglishPhrasebook{}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// CategorizePerformance maps a mean accuracy to its status band.
func CategorizePerformance(accuracy float64) model.Status {
	switch {
	case accuracy >= GoodThreshold:
		return model.StatusGood
	case accuracy <= NeedsWorkThreshold:
		return model.StatusNeedsImprovement
	default:
		return model.StatusAverage
	}
}

// RecommendationTier maps a mean accuracy to a recommendation tier. The
// bounds differ from CategorizePerformance on purpose.
func RecommendationTier(accuracy float64) Tier {
	switch {
	case accuracy < FundamentalsBelow:
		return TierFundamentals
	case accuracy < PracticeBelow:
		return TierPractice
	default:
		return TierMaintain
	}
}

// Synthesize builds an insight report from a history. It never fails: an
// empty history yields a report carrying only an error marker.
func Synthesize(history []model.Submission, opts Options) model.InsightReport {
	opts = opts.withDefaults()
	now := opts.Now()

	if len(history) == 0 {
		slog.Warn("no quiz history provided")
		return model.InsightReport{Error: noHistoryErrorMarker, GeneratedAt: now}
	}

	var sum float64
	for _, s := range history {
		sum += s.Accuracy
	}
	groups := groupByTopic(history)

	insights := make(map[string]model.TopicInsight, len(groups))
	var weak []model.WeakArea
	for _, g := range groups {
		avg := g.mean()
		score := round2(avg * 100)
		insights[g.topic] = model.TopicInsight{
			Score:           score,
			Status:          CategorizePerformance(avg),
			Recommendations: []string{opts.Phrasebook.Recommendation(g.topic, RecommendationTier(avg))},
		}
		if score < WeakScoreBelow {
			priority := model.PriorityMedium
			if score < HighPriorityBelow {
				priority = model.PriorityHigh
			}
			weak = append(weak, model.WeakArea{
				Topic:        g.topic,
				CurrentScore: FormatScore(score),
				Priority:     priority,
			})
		}
	}
	slog.Debug("generated topic insights", "topics", len(insights), "weak_areas", len(weak))

	actions := make([]model.Action, 0, len(weak))
	for _, w := range weak {
		actions = append(actions, model.Action{
			Area:     w.Topic,
			Action:   opts.Phrasebook.Action(w.Topic),
			Priority: w.Priority,
		})
	}

	uncovered := make([]string, 0)
	for _, t := range opts.Topics {
		if _, ok := insights[t]; !ok {
			uncovered = append(uncovered, t)
		}
	}

	return model.InsightReport{
		OverallStatistics: &model.OverallStatistics{
			AverageAccuracy:          round2(sum / float64(len(history)) * 100),
			TotalQuizzes:             len(history),
			TopicsCovered:            len(groups),
			TopicsNeedingImprovement: len(weak),
		},
		TopicInsights:   insights,
		WeakAreas:       weak,
		Recommendations: actions,
		UncoveredTopics: uncovered,
		GeneratedAt:     now,
	}
}

// FormatScore renders a 0-100 score with a percent sign, always keeping at
// least one decimal ("30.0%", "56.67%").
func FormatScore(score float64) string {
	s := strconv.FormatFloat(score, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s + "%"
}
