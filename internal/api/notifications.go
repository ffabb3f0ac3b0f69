package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	"github.com/letushack/labs-server/internal/identity"
)

// NotificationsHandler handles the notification feed endpoints.
type NotificationsHandler struct {
	*Handler
}

// NewNotificationsHandler creates a new notifications handler.
func NewNotificationsHandler(base *Handler) *NotificationsHandler {
	return &NotificationsHandler{Handler: base}
}

// RegisterRoutes registers notification routes.
func (h *NotificationsHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(identity.RequireAuth)
		r.Get("/api/notifications", h.List)
		r.Post("/api/notifications", h.MarkRead)
		r.Get("/ws/notifications", h.ServeWS)
	})
}

// List returns the user's latest notifications with an unread count.
func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	notifications, err := h.repo.ListNotifications(r.Context(), userID, 50)
	if err != nil {
		slog.Error("Failed to fetch notifications", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "Failed to fetch notifications")
		return
	}

	unread := 0
	for _, n := range notifications {
		if !n.IsRead {
			unread++
		}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success":       true,
		"notifications": notifications,
		"unread_count":  unread,
	})
}

type markReadRequest struct {
	IDs []int64 `json:"ids"`
}

// MarkRead marks notifications as read. An empty ID list marks all.
func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.repo.MarkNotificationsRead(r.Context(), userID, req.IDs); err != nil {
		slog.Error("Failed to mark notifications read", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "Failed to update notifications")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ServeWS upgrades the connection and streams new notifications to the user
// until the client disconnects.
func (h *NotificationsHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "feed ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.hub.Register(userID, ws)
	defer h.hub.Unregister(userID, ws)

	// The feed is push-only; drain client frames until the socket closes.
	ctx := r.Context()
	for {
		if _, _, err := ws.Read(ctx); err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) == -1 {
				slog.Debug("Notification feed read error", "error", err, "user_id", userID)
			}
			return
		}
	}
}
