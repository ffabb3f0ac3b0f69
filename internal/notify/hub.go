// Package notify provides live notification delivery over WebSockets.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/letushack/labs-server/internal/domain"
)

const pushTimeout = 5 * time.Second

// Hub tracks active WebSocket connections per user and pushes new
// notifications to them as they are created.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[string]map[*websocket.Conn]struct{})}
}

// Register adds a connection for a user.
func (h *Hub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[userID]; !ok {
		h.conns[userID] = make(map[*websocket.Conn]struct{})
	}
	h.conns[userID][conn] = struct{}{}
	slog.Info("Notification feed connected", "user_id", userID)
}

// Unregister removes a connection for a user.
func (h *Hub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.conns[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(h.conns, userID)
		}
	}
}

// Push delivers a notification to every active connection of the user.
// Delivery is best-effort; the durable copy lives in the store.
func (h *Hub) Push(userID string, n domain.Notification) {
	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	if len(conns) == 0 {
		return
	}

	payload, err := json.Marshal(n)
	if err != nil {
		slog.Warn("Failed to marshal notification", "error", err)
		return
	}

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		if err := c.Write(ctx, websocket.MessageText, payload); err != nil {
			slog.Debug("Notification push failed", "user_id", userID, "error", err)
		}
		cancel()
	}
}

// CloseUser terminates every connection for a user.
func (h *Hub) CloseUser(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.conns[userID] {
		_ = c.Close(websocket.StatusNormalClosure, "feed closed")
	}
	delete(h.conns, userID)
}
