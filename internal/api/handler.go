// Package api provides HTTP handlers for the letushack API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/letushack/labs-server/internal/config"
	"github.com/letushack/labs-server/internal/domain"
	"github.com/letushack/labs-server/internal/identity"
	"github.com/letushack/labs-server/internal/lab"
	"github.com/letushack/labs-server/internal/notify"
	"github.com/letushack/labs-server/internal/store"
)

// Handler provides common handler dependencies and utilities.
type Handler struct {
	repo store.Repository
	labs *lab.Manager
	hub  *notify.Hub
	auth *identity.Authenticator
	cfg  *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, labs *lab.Manager, hub *notify.Hub, auth *identity.Authenticator, cfg *config.Config) *Handler {
	return &Handler{
		repo: repo,
		labs: labs,
		hub:  hub,
		auth: auth,
		cfg:  cfg,
	}
}

// notifyUser stores a notification and pushes it to the user's live feeds.
func (h *Handler) notifyUser(ctx context.Context, userID, message, kind string) {
	n := &domain.Notification{
		UserID:    userID,
		Message:   message,
		Type:      kind,
		CreatedAt: time.Now(),
	}
	if err := h.repo.AddNotification(ctx, n); err != nil {
		slog.Warn("Failed to store notification", "error", err, "user_id", userID)
		return
	}
	h.hub.Push(userID, *n)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"success":false,"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response in the {success:false, error:…} envelope.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
