package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/neetrank/internal/analysis"
	"github.com/pavelanni/neetrank/internal/chart"
	"github.com/pavelanni/neetrank/internal/config"
	appI18n "github.com/pavelanni/neetrank/internal/i18n"
	"github.com/pavelanni/neetrank/internal/llm"
	"github.com/pavelanni/neetrank/internal/model"
	"github.com/pavelanni/neetrank/internal/pipeline"
	"github.com/pavelanni/neetrank/internal/rank"
	"github.com/pavelanni/neetrank/internal/source"
	"github.com/pavelanni/neetrank/internal/store"
)

const apiVersion = "1.0.0"

// Coach produces a study plan from a student's insights.
type Coach interface {
	StudyPlan(ctx context.Context, userID string, report model.InsightReport, predictedRank int) (*llm.StudyPlan, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store     *store.Store
	source    source.Source
	estimator *rank.Estimator
	coach     Coach
	profile   config.Profile
	config    model.ServiceConfig
	now       func() time.Time
}

// New creates a new Handler. src supplies quiz histories; coach may be nil.
func New(s *store.Store, src source.Source, est *rank.Estimator, coach Coach, profile config.Profile, cfg model.ServiceConfig) (*Handler, error) {
	if s == nil || src == nil || est == nil {
		return nil, errors.New("handler: store, source and estimator are required")
	}
	return &Handler{
		store:     s,
		source:    src,
		estimator: est,
		coach:     coach,
		profile:   profile,
		config:    cfg,
		now:       time.Now,
	}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.handleIndex)
	r.Get("/health", h.handleHealth)
	r.Get("/analysis/{userID}", h.handleAnalysis)
	r.Get("/insights/{userID}", h.handleInsights)
	r.Get("/predictions/{userID}", h.handlePredictions)
	r.Get("/visualizations/{userID}", h.handleVisualizations)
	r.Get("/summary/{userID}", h.handleSummary)
	r.Get("/coach/{userID}", h.handleCoach)

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.requireAdmin)
		r.Post("/submissions", h.handleImportSubmissions)
		r.Post("/ranks", h.handleRecordRanks)
		r.Post("/train", h.handleTrain)
		r.Get("/users", h.handleListUsers)
	})
}

var publicEndpoints = []string{
	"/analysis/{user_id}",
	"/insights/{user_id}",
	"/predictions/{user_id}",
	"/visualizations/{user_id}",
	"/summary/{user_id}",
	"/coach/{user_id}",
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	endpoints := make([]string, len(publicEndpoints))
	for i, p := range publicEndpoints {
		endpoints[i] = h.config.BasePath + p
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"name":      appI18n.T(r.Context(), "AppTitle"),
		"version":   apiVersion,
		"exam":      h.profile.Name,
		"timestamp": h.now().UTC(),
		"endpoints": endpoints,
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	if _, err := h.store.SubmissionCount(r.Context()); err != nil {
		slog.Error("health check: store unavailable", "error", err)
		dbStatus = "error"
	}
	coachStatus := "disabled"
	if h.coach != nil {
		coachStatus = "ok"
	}
	status := http.StatusOK
	overall := "healthy"
	if dbStatus != "ok" {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}
	respondJSON(w, status, map[string]any{
		"status":    overall,
		"timestamp": h.now().UTC(),
		"components": map[string]string{
			"store":          dbStatus,
			"rank_predictor": h.estimator.State().String(),
			"coach":          coachStatus,
		},
	})
}

// analyze runs the pipeline for the request's user and writes the error
// response itself when it fails.
func (h *Handler) analyze(w http.ResponseWriter, r *http.Request) (*pipeline.Analysis, bool) {
	userID := chi.URLParam(r, "userID")
	a, err := pipeline.Analyze(r.Context(), h.source, h.estimator, userID)
	if err != nil {
		h.respondPipelineError(w, r, userID, err)
		return nil, false
	}
	return a, true
}

func (h *Handler) insightOptions(ctx context.Context) analysis.Options {
	return analysis.Options{
		Topics:     h.profile.Topics,
		Phrasebook: appI18n.PhrasebookFor(ctx),
		Now:        h.now,
	}
}

func (h *Handler) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	a, ok := h.analyze(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, a.Performance)
}

func (h *Handler) handleInsights(w http.ResponseWriter, r *http.Request) {
	a, ok := h.analyze(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, analysis.Synthesize(a.Submissions, h.insightOptions(r.Context())))
}

func (h *Handler) handlePredictions(w http.ResponseWriter, r *http.Request) {
	a, ok := h.analyze(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.annotate(r.Context(), a.Prediction))
}

// annotate marks predictions served before the rank model was trained.
func (h *Handler) annotate(ctx context.Context, p model.RankPrediction) model.RankPrediction {
	if h.estimator.State() == rank.Untrained {
		p.Note = appI18n.T(ctx, "NotTrained")
	}
	return p
}

func (h *Handler) handleVisualizations(w http.ResponseWriter, r *http.Request) {
	a, ok := h.analyze(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, chart.All(a.Performance))
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	a, ok := h.analyze(w, r)
	if !ok {
		return
	}
	summary := pipeline.BuildSummary(a, pipeline.SummaryOptions{
		Insights:   h.insightOptions(r.Context()),
		RecentDays: h.config.RecentDays,
	})
	summary.Prediction = h.annotate(r.Context(), summary.Prediction)
	respondJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleCoach(w http.ResponseWriter, r *http.Request) {
	if h.coach == nil {
		respondError(w, http.StatusNotImplemented, appI18n.T(r.Context(), "CoachDisabled"))
		return
	}
	a, ok := h.analyze(w, r)
	if !ok {
		return
	}
	report := analysis.Synthesize(a.Submissions, h.insightOptions(r.Context()))
	plan, err := h.coach.StudyPlan(r.Context(), a.Performance.UserID, report, a.Prediction.PredictedRank)
	if err != nil {
		slog.Error("study plan failed", "user_id", a.Performance.UserID, "error", err)
		respondError(w, http.StatusBadGateway, appI18n.T(r.Context(), "InternalError"))
		return
	}
	respondJSON(w, http.StatusOK, plan)
}

func (h *Handler) respondPipelineError(w http.ResponseWriter, r *http.Request, userID string, err error) {
	if errors.Is(err, pipeline.ErrNoData) {
		slog.Warn("no quiz data found", "user_id", userID)
		respondError(w, http.StatusNotFound, appI18n.T(r.Context(), "NoQuizData"))
		return
	}
	slog.Error("analysis failed", "user_id", userID, "error", err)
	respondError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "InternalError"))
}

// respondJSON encodes v before writing the header so an unencodable value
// becomes a 500 instead of a truncated 200.
func respondJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
		buf.Reset()
		_ = json.NewEncoder(&buf).Encode(map[string]string{"detail": http.StatusText(http.StatusInternalServerError)})
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		slog.Error("write response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}
