package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/neetrank/internal/model"
)

//go:embed templates/*.txt
var Templates embed.FS

var systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)

const maxFieldRunes = 200

// PromptVariant represents a coaching prompt variant.
type PromptVariant string

const (
	// PromptConcise asks for a short plan with at most three focus topics.
	PromptConcise PromptVariant = "concise"
	// PromptDetailed asks for a full weekly plan covering every weak area.
	PromptDetailed PromptVariant = "detailed"
)

var validVariants = map[PromptVariant]bool{
	PromptConcise:  true,
	PromptDetailed: true,
}

// ErrNoStatistics is returned for a report generated from an empty history.
var ErrNoStatistics = errors.New("insight report has no statistics")

var (
	loadOnce       sync.Once
	loadErr        error
	coachTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// TopicLine is one topic row of the coaching prompt.
type TopicLine struct {
	Name            string
	Score           float64
	Status          model.Status
	Recommendations []string
}

// CoachData holds template data for coaching prompts.
type CoachData struct {
	UserID          string
	TotalQuizzes    int
	AverageAccuracy float64
	PredictedRank   int
	Topics          []TopicLine
	WeakAreas       []model.WeakArea
	Uncovered       []string
}

// Load parses the coaching templates from fsys. Only the first call has
// any effect.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		coachTemplates = make(map[PromptVariant]*template.Template)
		funcs := template.FuncMap{"join": strings.Join}

		for _, v := range []PromptVariant{PromptConcise, PromptDetailed} {
			file := "templates/coach_" + string(v) + ".txt"
			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = fmt.Errorf("failed to read prompt file %s: %w", file, err)
				return
			}
			tmpl, err := template.New("coach").Funcs(funcs).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("failed to parse prompt template %s: %w", file, err)
				return
			}
			coachTemplates[v] = tmpl
		}
	})
	return loadErr
}

// NewCoachData flattens an insight report into template data. Topics are
// ordered by name and every free-text field is sanitized.
func NewCoachData(userID string, report model.InsightReport, predictedRank int) (CoachData, error) {
	if report.OverallStatistics == nil {
		return CoachData{}, ErrNoStatistics
	}
	data := CoachData{
		UserID:          sanitize(userID),
		TotalQuizzes:    report.OverallStatistics.TotalQuizzes,
		AverageAccuracy: report.OverallStatistics.AverageAccuracy,
		PredictedRank:   predictedRank,
	}

	names := make([]string, 0, len(report.TopicInsights))
	for name := range report.TopicInsights {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ti := report.TopicInsights[name]
		data.Topics = append(data.Topics, TopicLine{
			Name:            sanitize(name),
			Score:           ti.Score,
			Status:          ti.Status,
			Recommendations: ti.Recommendations,
		})
	}

	for _, w := range report.WeakAreas {
		w.Topic = sanitize(w.Topic)
		data.WeakAreas = append(data.WeakAreas, w)
	}
	// High priority first, original order otherwise.
	sort.SliceStable(data.WeakAreas, func(i, j int) bool {
		return data.WeakAreas[i].Priority == model.PriorityHigh && data.WeakAreas[j].Priority != model.PriorityHigh
	})

	data.Uncovered = append(data.Uncovered, report.UncoveredTopics...)
	return data, nil
}

// BuildCoachPrompt renders a coaching prompt using the specified variant.
func BuildCoachPrompt(variant PromptVariant, data CoachData) (string, error) {
	if coachTemplates == nil {
		return "", errors.New("templates not initialized: call Load first")
	}
	tmpl, ok := coachTemplates[variant]
	if !ok {
		if loadErr != nil {
			return "", fmt.Errorf("templates load failed: %w", loadErr)
		}
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// sanitize strips instruction tags from source-provided text and bounds its
// length.
func sanitize(s string) string {
	s = systemInstructionsRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
	if utf8.RuneCountInString(s) > maxFieldRunes {
		s = string([]rune(s)[:maxFieldRunes]) + "…"
	}
	return s
}
