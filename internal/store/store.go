package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/neetrank/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS submissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		external_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		is_current INTEGER NOT NULL DEFAULT 0,
		imported_at DATETIME NOT NULL,
		UNIQUE (user_id, external_id)
	);

	CREATE INDEX IF NOT EXISTS idx_submissions_user ON submissions(user_id);

	CREATE TABLE IF NOT EXISTS rank_samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL UNIQUE,
		observed_rank INTEGER NOT NULL,
		recorded_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS training_runs (
		id TEXT PRIMARY KEY,
		samples INTEGER NOT NULL,
		intercept REAL NOT NULL,
		coefficients TEXT NOT NULL,
		trained_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveSubmissions stores raw submissions, replacing earlier copies with the
// same user and submission id. Records without a user id are rejected.
// When current is true the records are marked as in-progress submissions.
func (s *Store) SaveSubmissions(ctx context.Context, raws []model.RawSubmission, current bool) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now()
	saved := 0
	for i, raw := range raws {
		userID := raw.UserID()
		if userID == "" {
			return 0, fmt.Errorf("submission %d: missing user_id", i)
		}
		payload, err := json.Marshal(raw)
		if err != nil {
			return 0, fmt.Errorf("submission %d: encode: %w", i, err)
		}
		if current {
			if _, err := tx.ExecContext(ctx,
				`UPDATE submissions SET is_current = 0 WHERE user_id = ?`, userID); err != nil {
				return 0, err
			}
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO submissions (user_id, external_id, payload, is_current, imported_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(user_id, external_id) DO UPDATE SET payload = ?, is_current = ?, imported_at = ?`,
			userID, externalID(raw, i), string(payload), current, now,
			string(payload), current, now,
		)
		if err != nil {
			return 0, err
		}
		saved++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	slog.Info("saved submissions", "count", saved, "current", current)
	return saved, nil
}

// History returns the user's stored historical submissions in insertion order.
func (s *Store) History(ctx context.Context, userID string) ([]model.RawSubmission, error) {
	return s.querySubmissions(ctx,
		`SELECT payload FROM submissions WHERE user_id = ? AND is_current = 0 ORDER BY id`, userID)
}

// Current returns the user's in-progress submission, or nil when none exists.
func (s *Store) Current(ctx context.Context, userID string) (model.RawSubmission, error) {
	subs, err := s.querySubmissions(ctx,
		`SELECT payload FROM submissions WHERE user_id = ? AND is_current = 1 ORDER BY id DESC LIMIT 1`, userID)
	if err != nil || len(subs) == 0 {
		return nil, err
	}
	return subs[0], nil
}

// ListUsers returns every user id with stored submissions.
func (s *Store) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT user_id FROM submissions ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// SubmissionCount returns the number of stored submissions.
func (s *Store) SubmissionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM submissions`).Scan(&count)
	return count, err
}

func (s *Store) querySubmissions(ctx context.Context, query string, args ...any) ([]model.RawSubmission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.RawSubmission
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var raw model.RawSubmission
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			return nil, fmt.Errorf("decode stored submission: %w", err)
		}
		out = append(out, raw)
	}
	return out, rows.Err()
}

// externalID is the submission's own id, or its batch position when the
// record has none.
func externalID(raw model.RawSubmission, index int) string {
	if v, ok := raw["id"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return fmt.Sprintf("idx-%d", index)
}
