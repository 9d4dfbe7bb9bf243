// Package normalize turns raw quiz submissions into validated records.
package normalize

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pavelanni/neetrank/internal/model"
)

// UnknownTopic is used when a submission carries no nested quiz topic.
const UnknownTopic = "Unknown"

// RequiredFields lists the keys every raw submission must carry.
var RequiredFields = []string{
	"id", "quiz_id", "user_id", "submitted_at", "score", "accuracy", "final_score",
}

// ValidationError reports a missing or malformed required field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return "missing required field: " + e.Field
	}
	return fmt.Sprintf("invalid field %s: %s", e.Field, e.Reason)
}

// Result is the outcome of parsing one raw submission: exactly one of
// Submission or Err is meaningful.
type Result struct {
	Index      int
	Submission model.Submission
	Err        error
}

// OK reports whether the record was normalized.
func (r Result) OK() bool { return r.Err == nil }

// Parse normalizes one record without panicking or logging.
func Parse(index int, raw model.RawSubmission) Result {
	s, err := Normalize(raw)
	return Result{Index: index, Submission: s, Err: err}
}

// Normalize validates raw and converts it into a Submission.
func Normalize(raw model.RawSubmission) (model.Submission, error) {
	for _, f := range RequiredFields {
		if v, ok := raw[f]; !ok || v == nil {
			return model.Submission{}, &ValidationError{Field: f}
		}
	}

	var (
		sub model.Submission
		err error
	)
	if sub.ID, err = intField(raw, "id"); err != nil {
		return model.Submission{}, err
	}
	if sub.QuizID, err = intField(raw, "quiz_id"); err != nil {
		return model.Submission{}, err
	}
	sub.UserID = raw.UserID()
	if sub.UserID == "" {
		return model.Submission{}, &ValidationError{Field: "user_id", Reason: "empty"}
	}

	ts, ok := raw["submitted_at"].(string)
	if !ok {
		return model.Submission{}, &ValidationError{Field: "submitted_at", Reason: "not a string"}
	}
	if sub.SubmittedAt, err = ParseTimestamp(ts); err != nil {
		return model.Submission{}, &ValidationError{Field: "submitted_at", Reason: err.Error()}
	}

	if sub.Score, err = floatField(raw, "score"); err != nil {
		return model.Submission{}, err
	}
	if sub.FinalScore, err = floatField(raw, "final_score"); err != nil {
		return model.Submission{}, err
	}

	acc, ok := raw["accuracy"].(string)
	if !ok {
		return model.Submission{}, &ValidationError{Field: "accuracy", Reason: "not a percentage string"}
	}
	if sub.Accuracy, err = ParsePercent(acc); err != nil {
		return model.Submission{}, &ValidationError{Field: "accuracy", Reason: err.Error()}
	}

	sub.Speed = "0"
	if v, ok := raw["speed"]; ok && v != nil {
		sub.Speed = strings.TrimSpace(fmt.Sprint(v))
	}
	sub.CorrectAnswers = optionalInt(raw, "correct_answers")
	sub.IncorrectAnswers = optionalInt(raw, "incorrect_answers")
	sub.TotalQuestions = optionalInt(raw, "total_questions")
	sub.ResponseMap = responseMap(raw["response_map"])
	sub.Topic = topicOf(raw)
	sub.Questions = questionOutcomes(raw["questions"])

	return sub, nil
}

// NormalizeBatch normalizes every record, returning the valid ones in input
// order plus the failures.
func NormalizeBatch(raws []model.RawSubmission) ([]model.Submission, []Result) {
	subs := make([]model.Submission, 0, len(raws))
	var skipped []Result
	for i, raw := range raws {
		res := Parse(i, raw)
		if !res.OK() {
			skipped = append(skipped, res)
			continue
		}
		subs = append(subs, res.Submission)
	}
	return subs, skipped
}

// NormalizeAll normalizes raws, skipping and logging invalid records.
func NormalizeAll(raws []model.RawSubmission) []model.Submission {
	subs, skipped := NormalizeBatch(raws)
	for _, s := range skipped {
		slog.Warn("skipping invalid submission", "index", s.Index, "error", s.Err)
	}
	return subs
}

// ParsePercent converts a string such as "73%" or "73.5 %" into 0.73.
func ParsePercent(s string) (float64, error) {
	s = strings.TrimSpace(s)
	body, ok := strings.CutSuffix(s, "%")
	if !ok {
		return 0, fmt.Errorf("%q has no %% suffix", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(body), 64)
	if err != nil || !finite(v) {
		return 0, fmt.Errorf("%q is not numeric", s)
	}
	frac := v / 100
	if frac < 0 || frac > 1 {
		return 0, fmt.Errorf("%q is outside 0-100%%", s)
	}
	return frac, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp. A trailing "Z" means UTC and
// timestamps without an offset are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not an ISO-8601 timestamp", s)
}

func topicOf(raw model.RawSubmission) string {
	quiz, ok := raw["quiz"].(map[string]any)
	if !ok {
		return UnknownTopic
	}
	topic, ok := quiz["topic"].(string)
	if !ok {
		return UnknownTopic
	}
	return topic
}

func intField(raw model.RawSubmission, key string) (int64, error) {
	v, err := toFloat(raw[key])
	if err != nil {
		return 0, &ValidationError{Field: key, Reason: err.Error()}
	}
	if v != math.Trunc(v) {
		return 0, &ValidationError{Field: key, Reason: fmt.Sprintf("%v is not an integer", v)}
	}
	return int64(v), nil
}

func floatField(raw model.RawSubmission, key string) (float64, error) {
	v, err := toFloat(raw[key])
	if err != nil {
		return 0, &ValidationError{Field: key, Reason: err.Error()}
	}
	return v, nil
}

func optionalInt(raw model.RawSubmission, key string) int {
	v, err := toFloat(raw[key])
	if err != nil {
		return 0
	}
	return int(v)
}

// toFloat accepts JSON numbers and numeric strings. NaN and infinities are
// rejected.
func toFloat(v any) (float64, error) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return 0, err
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not numeric", t)
		}
		f = n
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
	if !finite(f) {
		return 0, fmt.Errorf("%v is not a finite number", v)
	}
	return f, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func responseMap(v any) map[string]int64 {
	out := map[string]int64{}
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for q, opt := range m {
		f, err := toFloat(opt)
		if err != nil {
			continue
		}
		out[q] = int64(f)
	}
	return out
}

func questionOutcomes(v any) []model.QuestionOutcome {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []model.QuestionOutcome
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		level, _ := m["difficulty"].(string)
		if level == "" {
			continue
		}
		var q model.QuestionOutcome
		if id, err := toFloat(m["id"]); err == nil {
			q.ID = int64(id)
		}
		q.Difficulty = model.Difficulty(level)
		q.IsCorrect, _ = m["is_correct"].(bool)
		out = append(out, q)
	}
	return out
}
