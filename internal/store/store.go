// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/letushack/labs-server/internal/domain"
)

// Repository defines the interface for persisting platform data.
type Repository interface {
	// UpsertSession creates or updates a lab session record keyed by container ID.
	UpsertSession(ctx context.Context, s domain.Session) error

	// DeleteSession removes a session record by container ID.
	DeleteSession(ctx context.Context, containerID string) error

	// DeleteUserSessions removes all session records owned by a user.
	DeleteUserSessions(ctx context.Context, userID string) error

	// ListSessions returns all persisted session records.
	ListSessions(ctx context.Context) ([]domain.Session, error)

	// GetUser retrieves a user by ID. Returns nil, nil when absent.
	GetUser(ctx context.Context, userID string) (*domain.User, error)

	// CreateUser inserts a new user record.
	CreateUser(ctx context.Context, user *domain.User) error

	// UpdateLastActivity records a login/activity timestamp and client IP.
	UpdateLastActivity(ctx context.Context, userID, ip string, at time.Time) error

	// UpsertLabScore creates or updates a user's score for a lab.
	UpsertLabScore(ctx context.Context, score domain.LabScore) error

	// UserScores returns a user's per-lab scores.
	UserScores(ctx context.Context, userID string) ([]domain.LabScore, error)

	// Leaderboard returns all users ranked by total score.
	Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error)

	// UserRank returns the user's current leaderboard rank (1-based),
	// or 0 if the user is unknown.
	UserRank(ctx context.Context, userID string) (int, error)

	// AddNotification inserts a notification and fills in its assigned ID.
	AddNotification(ctx context.Context, n *domain.Notification) error

	// ListNotifications returns a user's latest notifications, newest first.
	ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error)

	// MarkNotificationsRead marks the given notifications read; with no IDs,
	// all of the user's notifications are marked read.
	MarkNotificationsRead(ctx context.Context, userID string, ids []int64) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
