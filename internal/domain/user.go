package domain

import (
	"time"
)

// User represents a registered platform user.
type User struct {
	UserID       string    `json:"user_id"`
	Name         string    `json:"name,omitempty"`
	PasswordHash string    `json:"-"`
	IPAddress    string    `json:"-"`
	LastActivity time.Time `json:"last_activity"`
	CreatedAt    time.Time `json:"created_at"`
}
