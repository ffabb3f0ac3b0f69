package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/letushack/labs-server/internal/domain"
	"github.com/letushack/labs-server/internal/identity"
	"github.com/letushack/labs-server/internal/shared"
)

// ScoresHandler handles scoring and leaderboard endpoints.
type ScoresHandler struct {
	*Handler
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(base *Handler) *ScoresHandler {
	return &ScoresHandler{Handler: base}
}

// RegisterRoutes registers score and leaderboard routes.
func (h *ScoresHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/leaderboard", h.Leaderboard)

	r.Group(func(r chi.Router) {
		r.Use(identity.RequireAuth)
		r.Get("/api/lab_scores", h.UserScores)
		r.Post("/api/lab_scores/update", h.UpdateScore)
	})
}

// Leaderboard returns all users ranked by total score.
func (h *ScoresHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := h.repo.Leaderboard(r.Context())
	if err != nil {
		slog.Error("Failed to fetch leaderboard", "error", err)
		Error(w, http.StatusInternalServerError, "Failed to fetch leaderboard data")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    entries,
		"count":   len(entries),
	})
}

// UserScores returns the authenticated user's per-lab scores.
func (h *ScoresHandler) UserScores(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	scores, err := h.repo.UserScores(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to fetch user scores", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "Failed to fetch scores")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"scores":  scores,
	})
}

type updateScoreRequest struct {
	LabID  string `json:"lab_id"`
	Score  *int   `json:"score"`
	Solved bool   `json:"solved"`
}

// UpdateScore records a lab score and notifies the user of solves and
// leaderboard rank changes.
func (h *ScoresHandler) UpdateScore(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req updateScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.LabID == "" || req.Score == nil {
		Error(w, http.StatusBadRequest, "Missing required fields: lab_id and score")
		return
	}

	oldRank, err := h.repo.UserRank(r.Context(), userID)
	if err != nil {
		slog.Warn("Failed to compute rank before update", "error", err, "user_id", userID)
	}

	score := domain.LabScore{
		UserID:    userID,
		LabID:     req.LabID,
		Score:     *req.Score,
		Solved:    req.Solved,
		UpdatedAt: time.Now(),
	}
	if err := h.upsertScoreWithRetry(r.Context(), score); err != nil {
		slog.Error("Failed to update lab score", "error", err, "user_id", userID, "lab_id", req.LabID)
		Error(w, http.StatusInternalServerError, "Failed to update score")
		return
	}

	newRank, err := h.repo.UserRank(r.Context(), userID)
	if err != nil {
		slog.Warn("Failed to compute rank after update", "error", err, "user_id", userID)
	}

	if req.Solved {
		h.notifyUser(r.Context(), userID, fmt.Sprintf("You solved %s! +%d points", req.LabID, *req.Score), domain.NotificationSuccess)
	}
	if oldRank > 0 && newRank > 0 && newRank < oldRank {
		h.notifyUser(r.Context(), userID, fmt.Sprintf("You moved up the leaderboard from #%d to #%d", oldRank, newRank), domain.NotificationRank)
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"old_rank": oldRank,
		"new_rank": newRank,
	})
}

// upsertScoreWithRetry retries score writes with exponential backoff to
// handle SQLITE_BUSY errors during concurrent submissions.
func (h *ScoresHandler) upsertScoreWithRetry(ctx context.Context, score domain.LabScore) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = h.repo.UpsertLabScore(ctx, score)
		if err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			return err
		}

		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("Database locked during score update, retrying",
			"user_id", score.UserID,
			"attempt", i+1,
			"delay", delay)
		time.Sleep(delay)
	}
	return err
}

