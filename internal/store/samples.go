package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/neetrank/internal/rank"
)

// RankSample is an observed exam rank recorded for a user.
type RankSample struct {
	UserID       string
	ObservedRank int
	RecordedAt   time.Time
}

// TrainingRun records one fit of the rank model.
type TrainingRun struct {
	ID           string
	Samples      int
	Intercept    float64
	Coefficients rank.Vector
	TrainedAt    time.Time
}

// UpsertRankSample records the rank a user actually obtained.
func (s *Store) UpsertRankSample(ctx context.Context, userID string, observedRank int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rank_samples (user_id, observed_rank, recorded_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET observed_rank = ?, recorded_at = ?`,
		userID, observedRank, time.Now(), observedRank, time.Now(),
	)
	return err
}

// ListRankSamples returns all recorded ranks ordered by user id.
func (s *Store) ListRankSamples(ctx context.Context) ([]RankSample, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, observed_rank, recorded_at FROM rank_samples ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var samples []RankSample
	for rows.Next() {
		var rs RankSample
		if err := rows.Scan(&rs.UserID, &rs.ObservedRank, &rs.RecordedAt); err != nil {
			return nil, err
		}
		samples = append(samples, rs)
	}
	return samples, rows.Err()
}

// RecordTrainingRun stores a fitted model and returns the run id.
func (s *Store) RecordTrainingRun(ctx context.Context, m rank.Model) (string, error) {
	coeffs, err := json.Marshal(m.Coefficients)
	if err != nil {
		return "", fmt.Errorf("encode coefficients: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO training_runs (id, samples, intercept, coefficients, trained_at) VALUES (?, ?, ?, ?, ?)`,
		id, m.Samples, m.Intercept, string(coeffs), m.TrainedAt,
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// LatestTrainingRun returns the most recent training run, or ErrNotFound.
func (s *Store) LatestTrainingRun(ctx context.Context) (TrainingRun, error) {
	var (
		run    TrainingRun
		coeffs string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, samples, intercept, coefficients, trained_at
		 FROM training_runs ORDER BY trained_at DESC LIMIT 1`,
	).Scan(&run.ID, &run.Samples, &run.Intercept, &coeffs, &run.TrainedAt)
	if err == sql.ErrNoRows {
		return TrainingRun{}, ErrNotFound
	}
	if err != nil {
		return TrainingRun{}, err
	}
	if err := json.Unmarshal([]byte(coeffs), &run.Coefficients); err != nil {
		return TrainingRun{}, fmt.Errorf("decode coefficients: %w", err)
	}
	return run, nil
}
