package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/letushack/labs-server/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		container_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		lab_type TEXT NOT NULL,
		port INTEGER NOT NULL,
		status TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		name TEXT,
		password_hash TEXT NOT NULL,
		ip_address TEXT,
		last_activity INTEGER,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lab_scores (
		user_id TEXT NOT NULL,
		lab_id TEXT NOT NULL,
		score INTEGER NOT NULL DEFAULT 0,
		solved INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, lab_id)
	);

	CREATE TABLE IF NOT EXISTS notifications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		message TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'info',
		is_read INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// UpsertSession creates or updates a session record keyed by container ID.
func (s *SQLiteStore) UpsertSession(ctx context.Context, sess domain.Session) error {
	query := `
	INSERT INTO sessions (container_id, user_id, lab_type, port, status, created_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(container_id) DO UPDATE SET
		status = excluded.status,
		port = excluded.port`

	_, err := s.db.ExecContext(ctx, query,
		sess.ContainerID, sess.UserID, string(sess.LabType),
		sess.Port, string(sess.Status), sess.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// DeleteSession removes a session record by container ID.
func (s *SQLiteStore) DeleteSession(ctx context.Context, containerID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE container_id = ?`, containerID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteUserSessions removes all session records owned by a user.
func (s *SQLiteStore) DeleteUserSessions(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("delete user sessions: %w", err)
	}
	return nil
}

// ListSessions returns all persisted session records.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]domain.Session, error) {
	query := `SELECT container_id, user_id, lab_type, port, status, created_at FROM sessions ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer closeRows(rows, "sessions")

	var sessions []domain.Session
	for rows.Next() {
		var sess domain.Session
		var labType, status string
		var createdAt int64

		if err := rows.Scan(&sess.ContainerID, &sess.UserID, &labType, &sess.Port, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sess.LabType = domain.LabType(labType)
		sess.Status = domain.SessionStatus(status)
		sess.CreatedAt = time.Unix(createdAt, 0)
		sessions = append(sessions, sess)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// GetUser retrieves a user by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	query := `SELECT user_id, name, password_hash, ip_address, last_activity, created_at FROM users WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)

	var user domain.User
	var name, ip sql.NullString
	var lastActivity sql.NullInt64
	var createdAt int64

	err := row.Scan(&user.UserID, &name, &user.PasswordHash, &ip, &lastActivity, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.Name = name.String
	user.IPAddress = ip.String
	if lastActivity.Valid {
		user.LastActivity = time.Unix(lastActivity.Int64, 0)
	}
	user.CreatedAt = time.Unix(createdAt, 0)
	return &user, nil
}

// CreateUser inserts a new user record.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (user_id, name, password_hash, ip_address, last_activity, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	var lastActivity interface{}
	if !user.LastActivity.IsZero() {
		lastActivity = user.LastActivity.Unix()
	}

	_, err := s.db.ExecContext(ctx, query,
		user.UserID, user.Name, user.PasswordHash,
		user.IPAddress, lastActivity, user.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateLastActivity records a login/activity timestamp and client IP.
func (s *SQLiteStore) UpdateLastActivity(ctx context.Context, userID, ip string, at time.Time) error {
	query := `UPDATE users SET last_activity = ?, ip_address = ? WHERE user_id = ?`
	result, err := s.db.ExecContext(ctx, query, at.Unix(), ip, userID)
	if err != nil {
		return fmt.Errorf("update last activity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateLastActivity affected 0 rows", "user_id", userID)
	}
	return nil
}

// UpsertLabScore creates or updates a user's score for a lab.
func (s *SQLiteStore) UpsertLabScore(ctx context.Context, score domain.LabScore) error {
	query := `
	INSERT INTO lab_scores (user_id, lab_id, score, solved, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id, lab_id) DO UPDATE SET
		score = excluded.score,
		solved = excluded.solved,
		updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		score.UserID, score.LabID, score.Score, boolToInt(score.Solved), score.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert lab score: %w", err)
	}
	return nil
}

// UserScores returns a user's per-lab scores.
func (s *SQLiteStore) UserScores(ctx context.Context, userID string) ([]domain.LabScore, error) {
	query := `SELECT user_id, lab_id, score, solved, updated_at FROM lab_scores WHERE user_id = ? ORDER BY lab_id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query user scores: %w", err)
	}
	defer closeRows(rows, "user scores")

	var scores []domain.LabScore
	for rows.Next() {
		var sc domain.LabScore
		var solved int
		var updatedAt int64
		if err := rows.Scan(&sc.UserID, &sc.LabID, &sc.Score, &solved, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		sc.Solved = solved != 0
		sc.UpdatedAt = time.Unix(updatedAt, 0)
		scores = append(scores, sc)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user scores: %w", err)
	}
	return scores, nil
}

// Leaderboard returns all users ranked by total score, then solved count,
// then name.
func (s *SQLiteStore) Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	query := `
	SELECT
		u.user_id,
		COALESCE(u.name, ''),
		COALESCE(SUM(ls.score), 0) AS total_score,
		COUNT(CASE WHEN ls.solved = 1 THEN 1 END) AS challenges_solved
	FROM users u
	LEFT JOIN lab_scores ls ON u.user_id = ls.user_id
	GROUP BY u.user_id, u.name
	ORDER BY total_score DESC, challenges_solved DESC, u.name ASC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer closeRows(rows, "leaderboard")

	var entries []domain.LeaderboardEntry
	for rows.Next() {
		var e domain.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.Name, &e.TotalScore, &e.ChallengesSolved); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		if e.Name == "" {
			e.Name = "Anonymous"
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leaderboard: %w", err)
	}
	return entries, nil
}

// UserRank returns the user's current leaderboard rank (1-based).
func (s *SQLiteStore) UserRank(ctx context.Context, userID string) (int, error) {
	entries, err := s.Leaderboard(ctx)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.UserID == userID {
			return e.Rank, nil
		}
	}
	return 0, nil
}

// AddNotification inserts a notification and fills in its assigned ID.
func (s *SQLiteStore) AddNotification(ctx context.Context, n *domain.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	query := `INSERT INTO notifications (user_id, message, type, is_read, created_at) VALUES (?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		n.UserID, n.Message, n.Type, boolToInt(n.IsRead), n.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("add notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("notification id: %w", err)
	}
	n.ID = id
	return nil
}

// ListNotifications returns a user's latest notifications, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, userID string, limit int) ([]domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
	SELECT id, user_id, message, type, is_read, created_at
	FROM notifications
	WHERE user_id = ?
	ORDER BY created_at DESC, id DESC
	LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer closeRows(rows, "notifications")

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var isRead int
		var createdAt int64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &n.Type, &isRead, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification row: %w", err)
		}
		n.IsRead = isRead != 0
		n.CreatedAt = time.Unix(createdAt, 0)
		out = append(out, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return out, nil
}

// MarkNotificationsRead marks the given notifications read; with no IDs, all
// of the user's notifications are marked read.
func (s *SQLiteStore) MarkNotificationsRead(ctx context.Context, userID string, ids []int64) error {
	if len(ids) == 0 {
		if _, err := s.db.ExecContext(ctx, `UPDATE notifications SET is_read = 1 WHERE user_id = ?`, userID); err != nil {
			return fmt.Errorf("mark notifications read: %w", err)
		}
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}

	query := fmt.Sprintf(`UPDATE notifications SET is_read = 1 WHERE user_id = ? AND id IN (%s)`, placeholders)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	return nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
