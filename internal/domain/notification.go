package domain

import (
	"time"
)

// Notification types used by the scoring flow.
const (
	NotificationInfo    = "info"
	NotificationSuccess = "success"
	NotificationRank    = "rank_change"
)

// Notification is a message delivered to a user's notification feed.
type Notification struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	Message   string    `json:"message"`
	Type      string    `json:"type"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
