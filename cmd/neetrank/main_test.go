package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pavelanni/neetrank/internal/store"
)

func TestDecodeSubmissions(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    int
		wantErr bool
	}{
		{"array", `[{"id": 1}, {"id": 2}]`, 2, false},
		{"single object", `{"id": 1, "user_id": "u1"}`, 1, false},
		{"invalid", `nope`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeSubmissions([]byte(tt.in))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != tt.want {
				t.Errorf("got %d submissions, want %d", len(got), tt.want)
			}
		})
	}
}

func TestImportSubmissionsSkipsUnchangedFile(t *testing.T) {
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer db.Close()

	path := filepath.Join(t.TempDir(), "api_endpoint.json")
	if err := os.WriteFile(path, []byte(`[{"id": 1, "user_id": "u1"}, {"id": 2, "user_id": "u2"}]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ctx := context.Background()

	if err := importSubmissions(ctx, db, []string{path}, false); err != nil {
		t.Fatalf("importSubmissions: %v", err)
	}
	if err := importSubmissions(ctx, db, []string{path}, false); err != nil {
		t.Fatalf("importSubmissions again: %v", err)
	}
	count, err := db.SubmissionCount(ctx)
	if err != nil {
		t.Fatalf("SubmissionCount: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestImportRanksRejectsInvalid(t *testing.T) {
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer db.Close()

	path := filepath.Join(t.TempDir(), "ranks.json")
	if err := os.WriteFile(path, []byte(`[{"user_id": "", "observed_rank": 10}]`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := importRanks(context.Background(), db, path); err == nil {
		t.Error("expected error for record without user_id")
	}
}
