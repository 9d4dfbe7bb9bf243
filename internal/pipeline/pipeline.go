// Package pipeline chains source, normalization, aggregation and rank
// estimation into the operations served over HTTP and the command line.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/neetrank/internal/analysis"
	"github.com/pavelanni/neetrank/internal/chart"
	"github.com/pavelanni/neetrank/internal/model"
	"github.com/pavelanni/neetrank/internal/normalize"
	"github.com/pavelanni/neetrank/internal/rank"
	"github.com/pavelanni/neetrank/internal/source"
	"github.com/pavelanni/neetrank/internal/store"
)

// ErrNoData is returned when a user has no valid submissions.
var ErrNoData = errors.New("no quiz data found")

// Analysis is the result of running one user's history through the pipeline.
type Analysis struct {
	Submissions []model.Submission
	Performance *model.StudentPerformance
	Prediction  model.RankPrediction
}

// Analyze fetches, normalizes and aggregates a user's history, then attaches
// the estimator's rank and college predictions.
func Analyze(ctx context.Context, src source.Source, est *rank.Estimator, userID string) (*Analysis, error) {
	raws, err := source.Fetch(ctx, src, userID)
	if err != nil {
		return nil, err
	}
	subs := normalize.NormalizeAll(raws)
	perf, err := analysis.Aggregate(subs)
	if errors.Is(err, analysis.ErrEmptyHistory) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, err
	}
	// Submissions may omit user_id; the requested id is authoritative.
	perf.UserID = userID

	pred := est.Prediction(userID, perf)
	perf.PredictedRank = &pred.PredictedRank
	perf.RecommendedColleges = est.PredictColleges(pred.PredictedRank)

	return &Analysis{Submissions: subs, Performance: perf, Prediction: pred}, nil
}

// SummaryOptions configures BuildSummary.
type SummaryOptions struct {
	Insights   analysis.Options
	RecentDays int
}

// BuildSummary assembles the combined analysis, insights, prediction and
// chart document for one user.
func BuildSummary(a *Analysis, opts SummaryOptions) model.Summary {
	now := time.Now
	if opts.Insights.Now != nil {
		now = opts.Insights.Now
	}
	return model.Summary{
		UserID:          a.Performance.UserID,
		Analysis:        a.Performance,
		Insights:        analysis.Synthesize(a.Submissions, opts.Insights),
		Prediction:      a.Prediction,
		Charts:          chart.All(a.Performance),
		Consistency:     analysis.ConsistencyScore(analysis.Accuracies(a.Submissions)),
		RecentQuizCount: len(analysis.RecentSubmissions(a.Submissions, opts.RecentDays, now())),
		GeneratedAt:     now().UTC(),
	}
}

// TrainingStore provides recorded ranks and the histories behind them, and
// persists fitted models.
type TrainingStore interface {
	source.Source
	ListRankSamples(ctx context.Context) ([]store.RankSample, error)
	RecordTrainingRun(ctx context.Context, m rank.Model) (string, error)
}

// TrainResult describes a completed training pass.
type TrainResult struct {
	RunID   string     `json:"run_id"`
	Model   rank.Model `json:"model"`
	Used    int        `json:"samples_used"`
	Skipped int        `json:"samples_skipped"`
}

// Train fits est on every recorded rank whose user has a usable history and
// records the run. Users without valid submissions are skipped.
func Train(ctx context.Context, st TrainingStore, est *rank.Estimator) (*TrainResult, error) {
	recorded, err := st.ListRankSamples(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rank samples: %w", err)
	}

	var (
		samples []rank.Sample
		skipped int
	)
	for _, rs := range recorded {
		raws, err := source.Fetch(ctx, st, rs.UserID)
		if err != nil {
			return nil, fmt.Errorf("load history for %s: %w", rs.UserID, err)
		}
		perf, err := analysis.Aggregate(normalize.NormalizeAll(raws))
		if err != nil {
			slog.Warn("skipping rank sample without usable history", "user_id", rs.UserID, "error", err)
			skipped++
			continue
		}
		samples = append(samples, rank.Sample{Performance: perf, ObservedRank: rs.ObservedRank})
	}

	m, err := est.Train(samples)
	if err != nil {
		return nil, err
	}
	runID, err := st.RecordTrainingRun(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("record training run: %w", err)
	}
	slog.Info("training run recorded", "run_id", runID, "samples", len(samples), "skipped", skipped)
	return &TrainResult{RunID: runID, Model: m, Used: len(samples), Skipped: skipped}, nil
}

// RestoreLatest loads the most recent stored model into est. It reports
// false when no model has been recorded yet.
func RestoreLatest(ctx context.Context, st *store.Store, est *rank.Estimator) (bool, error) {
	run, err := st.LatestTrainingRun(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	est.Restore(rank.Model{
		Intercept:    run.Intercept,
		Coefficients: run.Coefficients,
		Samples:      run.Samples,
		TrainedAt:    run.TrainedAt,
	})
	slog.Info("restored rank model", "run_id", run.ID, "trained_at", run.TrainedAt)
	return true, nil
}
