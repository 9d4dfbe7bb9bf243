// Package source provides the quiz histories that feed the analytics
// pipeline: a JSON file directory, a remote HTTP endpoint, or the local store.
package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/neetrank/internal/model"
)

const (
	HistoryFile = "api_endpoint.json"
	CurrentFile = "quiz_submission.json"
)

// Source yields raw quiz submissions for a user.
type Source interface {
	// History returns the user's past submissions; an unknown user yields
	// an empty slice.
	History(ctx context.Context, userID string) ([]model.RawSubmission, error)
	// Current returns the user's in-progress submission, or nil.
	Current(ctx context.Context, userID string) (model.RawSubmission, error)
}

// Fetch loads history and the current submission concurrently and returns
// the history with the current submission appended.
func Fetch(ctx context.Context, src Source, userID string) ([]model.RawSubmission, error) {
	var (
		history []model.RawSubmission
		current model.RawSubmission
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		history, err = src.History(gctx, userID)
		if err != nil {
			return fmt.Errorf("fetch history: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		current, err = src.Current(gctx, userID)
		if err != nil {
			return fmt.Errorf("fetch current submission: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if current != nil {
		history = append(history, current)
	}
	return history, nil
}

// FileSource reads submissions from a directory holding a history file (a
// JSON array covering all users) and a current-submission file (one object).
// Missing files are treated as no data.
type FileSource struct {
	Dir string
}

func (f FileSource) History(ctx context.Context, userID string) ([]model.RawSubmission, error) {
	var all []model.RawSubmission
	ok, err := readJSON(filepath.Join(f.Dir, HistoryFile), &all)
	if err != nil || !ok {
		return nil, err
	}
	var out []model.RawSubmission
	for _, raw := range all {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if raw.UserID() == userID {
			out = append(out, raw)
		}
	}
	return out, nil
}

func (f FileSource) Current(_ context.Context, userID string) (model.RawSubmission, error) {
	var raw model.RawSubmission
	ok, err := readJSON(filepath.Join(f.Dir, CurrentFile), &raw)
	if err != nil || !ok {
		return nil, err
	}
	if raw.UserID() != userID {
		return nil, nil
	}
	return raw, nil
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return true, nil
}

// HTTPSource fetches submissions from a remote quiz service exposing
// GET {BaseURL}/users/{id}/submissions and GET {BaseURL}/users/{id}/current.
// A 404 response is treated as no data.
type HTTPSource struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPSource(baseURL string) *HTTPSource {
	return &HTTPSource{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (h *HTTPSource) History(ctx context.Context, userID string) ([]model.RawSubmission, error) {
	var out []model.RawSubmission
	if _, err := h.get(ctx, "/users/"+url.PathEscape(userID)+"/submissions", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (h *HTTPSource) Current(ctx context.Context, userID string) (model.RawSubmission, error) {
	var raw model.RawSubmission
	ok, err := h.get(ctx, "/users/"+url.PathEscape(userID)+"/current", &raw)
	if err != nil || !ok {
		return nil, err
	}
	return raw, nil
}

func (h *HTTPSource) get(ctx context.Context, path string, v any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.BaseURL+path, http.NoBody)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := h.Client.Do(req)
	if err != nil {
		return false, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}
	return true, nil
}
