package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/neetrank/internal/model"
	"github.com/pavelanni/neetrank/internal/rank"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func rawSubmission(id int, user string, accuracy string) model.RawSubmission {
	return model.RawSubmission{
		"id":           float64(id),
		"user_id":      user,
		"quiz_id":      float64(100),
		"score":        float64(40),
		"accuracy":     accuracy,
		"submitted_at": "2024-01-15T10:00:00Z",
		"quiz":         map[string]any{"topic": "Genetics"},
	}
}

func TestSubmissionHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Empty DB should return zero count and empty history.
	count, err := s.SubmissionCount(ctx)
	if err != nil {
		t.Fatalf("SubmissionCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 submissions, got %d", count)
	}
	hist, err := s.History(ctx, "u1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 0 {
		t.Fatalf("expected empty history, got %d", len(hist))
	}

	n, err := s.SaveSubmissions(ctx, []model.RawSubmission{
		rawSubmission(1, "u1", "70 %"),
		rawSubmission(2, "u1", "30 %"),
		rawSubmission(3, "u2", "50 %"),
	}, false)
	if err != nil {
		t.Fatalf("SaveSubmissions: %v", err)
	}
	if n != 3 {
		t.Errorf("saved = %d, want 3", n)
	}

	hist, err = s.History(ctx, "u1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 submissions for u1, got %d", len(hist))
	}
	if hist[0]["accuracy"] != "70 %" || hist[1]["accuracy"] != "30 %" {
		t.Errorf("history order = %v, %v", hist[0]["accuracy"], hist[1]["accuracy"])
	}
	quiz, ok := hist[0]["quiz"].(map[string]any)
	if !ok || quiz["topic"] != "Genetics" {
		t.Errorf("nested quiz not preserved: %v", hist[0]["quiz"])
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 || users[0] != "u1" || users[1] != "u2" {
		t.Errorf("users = %v", users)
	}
}

func TestSaveSubmissionsReplacesDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.SaveSubmissions(ctx, []model.RawSubmission{rawSubmission(1, "u1", "70 %")}, false); err != nil {
		t.Fatalf("SaveSubmissions: %v", err)
	}
	if _, err := s.SaveSubmissions(ctx, []model.RawSubmission{rawSubmission(1, "u1", "80 %")}, false); err != nil {
		t.Fatalf("SaveSubmissions again: %v", err)
	}
	hist, _ := s.History(ctx, "u1")
	if len(hist) != 1 {
		t.Fatalf("expected 1 submission after re-import, got %d", len(hist))
	}
	if hist[0]["accuracy"] != "80 %" {
		t.Errorf("accuracy = %v, want updated value", hist[0]["accuracy"])
	}
}

func TestSaveSubmissionsMissingUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bad := model.RawSubmission{"id": float64(1), "accuracy": "50 %"}
	if _, err := s.SaveSubmissions(ctx, []model.RawSubmission{rawSubmission(1, "u1", "70 %"), bad}, false); err == nil {
		t.Fatal("expected error for submission without user_id")
	}
	// The batch is rolled back.
	count, _ := s.SubmissionCount(ctx)
	if count != 0 {
		t.Errorf("expected rollback, got %d rows", count)
	}
}

func TestCurrentSubmission(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cur, err := s.Current(ctx, "u1")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur != nil {
		t.Fatalf("expected no current submission, got %v", cur)
	}

	if _, err := s.SaveSubmissions(ctx, []model.RawSubmission{rawSubmission(1, "u1", "70 %")}, false); err != nil {
		t.Fatalf("SaveSubmissions: %v", err)
	}
	if _, err := s.SaveSubmissions(ctx, []model.RawSubmission{rawSubmission(5, "u1", "90 %")}, true); err != nil {
		t.Fatalf("SaveSubmissions current: %v", err)
	}
	if _, err := s.SaveSubmissions(ctx, []model.RawSubmission{rawSubmission(6, "u1", "95 %")}, true); err != nil {
		t.Fatalf("SaveSubmissions current: %v", err)
	}

	cur, err = s.Current(ctx, "u1")
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur["accuracy"] != "95 %" {
		t.Errorf("current accuracy = %v, want 95 %%", cur["accuracy"])
	}

	// The superseded current submission moves into history.
	hist, _ := s.History(ctx, "u1")
	if len(hist) != 2 {
		t.Errorf("expected 2 historical submissions, got %d", len(hist))
	}
}

func TestRankSamples(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertRankSample(ctx, "u2", 1500); err != nil {
		t.Fatalf("UpsertRankSample: %v", err)
	}
	if err := s.UpsertRankSample(ctx, "u1", 3000); err != nil {
		t.Fatalf("UpsertRankSample: %v", err)
	}
	if err := s.UpsertRankSample(ctx, "u1", 2500); err != nil {
		t.Fatalf("UpsertRankSample update: %v", err)
	}

	samples, err := s.ListRankSamples(ctx)
	if err != nil {
		t.Fatalf("ListRankSamples: %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}
	if samples[0].UserID != "u1" || samples[0].ObservedRank != 2500 {
		t.Errorf("sample[0] = %+v", samples[0])
	}
}

func TestTrainingRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LatestTrainingRun(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	m := rank.Model{
		Intercept:    12000,
		Coefficients: rank.Vector{-5000, -10, 0, -200},
		Samples:      12,
		TrainedAt:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	id, err := s.RecordTrainingRun(ctx, m)
	if err != nil {
		t.Fatalf("RecordTrainingRun: %v", err)
	}
	if id == "" {
		t.Fatal("expected run id")
	}

	run, err := s.LatestTrainingRun(ctx)
	if err != nil {
		t.Fatalf("LatestTrainingRun: %v", err)
	}
	if run.ID != id || run.Samples != 12 || run.Intercept != 12000 {
		t.Errorf("run = %+v", run)
	}
	if run.Coefficients != m.Coefficients {
		t.Errorf("coefficients = %v, want %v", run.Coefficients, m.Coefficients)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	// Missing file returns empty string.
	hash, err := s.GetImportedFileHash("/some/path.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash("/some/path.json", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	hash, err = s.GetImportedFileHash("/some/path.json")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "abc123" {
		t.Errorf("expected 'abc123', got %q", hash)
	}

	// Update existing.
	if err := s.SetImportedFileHash("/some/path.json", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash("/some/path.json")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}
