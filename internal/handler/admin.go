package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	appI18n "github.com/pavelanni/neetrank/internal/i18n"
	"github.com/pavelanni/neetrank/internal/model"
	"github.com/pavelanni/neetrank/internal/pipeline"
	"github.com/pavelanni/neetrank/internal/rank"
)

const maxUploadBytes = 10 << 20

// RankRecord is one observed exam rank posted to /admin/ranks.
type RankRecord struct {
	UserID       string `json:"user_id"`
	ObservedRank int    `json:"observed_rank"`
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, appI18n.T(r.Context(), "BadRequest"))
		return nil, false
	}
	return data, true
}

// handleImportSubmissions stores a JSON array of raw submissions. With
// ?current=true they are recorded as in-progress submissions. A body that was
// already imported is skipped.
func (h *Handler) handleImportSubmissions(w http.ResponseWriter, r *http.Request) {
	data, ok := h.readBody(w, r)
	if !ok {
		return
	}
	current, _ := strconv.ParseBool(r.URL.Query().Get("current"))

	hashBytes := sha256.Sum256(data)
	hash := hex.EncodeToString(hashBytes[:])
	key := "upload:" + hash
	storedHash, err := h.store.GetImportedFileHash(key)
	if err != nil {
		slog.Error("failed to check import status", "error", err)
		respondError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "InternalError"))
		return
	}
	if storedHash == hash {
		respondJSON(w, http.StatusOK, map[string]any{"imported": 0, "duplicate": true})
		return
	}

	var raws []model.RawSubmission
	if err := json.Unmarshal(data, &raws); err != nil {
		respondError(w, http.StatusBadRequest, appI18n.T(r.Context(), "BadRequest"))
		return
	}

	n, err := h.store.SaveSubmissions(r.Context(), raws, current)
	if err != nil {
		slog.Error("failed to save submissions", "error", err)
		respondError(w, http.StatusBadRequest, appI18n.T(r.Context(), "BadRequest"))
		return
	}
	if err := h.store.SetImportedFileHash(key, hash); err != nil {
		slog.Error("failed to record import", "error", err)
	}

	slog.Info("imported submissions via admin", "count", n, "current", current)
	respondJSON(w, http.StatusOK, map[string]any{"imported": n, "duplicate": false})
}

func (h *Handler) handleRecordRanks(w http.ResponseWriter, r *http.Request) {
	data, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var records []RankRecord
	if err := json.Unmarshal(data, &records); err != nil {
		respondError(w, http.StatusBadRequest, appI18n.T(r.Context(), "BadRequest"))
		return
	}
	for _, rec := range records {
		if rec.UserID == "" || rec.ObservedRank < 1 {
			respondError(w, http.StatusBadRequest, appI18n.T(r.Context(), "BadRequest"))
			return
		}
	}
	for _, rec := range records {
		if err := h.store.UpsertRankSample(r.Context(), rec.UserID, rec.ObservedRank); err != nil {
			slog.Error("failed to record rank", "user_id", rec.UserID, "error", err)
			respondError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "InternalError"))
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"recorded": len(records)})
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		slog.Error("failed to list users", "error", err)
		respondError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "InternalError"))
		return
	}
	if users == nil {
		users = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

func (h *Handler) handleTrain(w http.ResponseWriter, r *http.Request) {
	res, err := pipeline.Train(r.Context(), h.store, h.estimator)
	if errors.Is(err, rank.ErrTooFewSamples) {
		respondError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		slog.Error("training failed", "error", err)
		respondError(w, http.StatusInternalServerError, appI18n.T(r.Context(), "InternalError"))
		return
	}
	respondJSON(w, http.StatusOK, res)
}
