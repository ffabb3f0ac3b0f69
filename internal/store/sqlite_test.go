package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/letushack/labs-server/internal/domain"
	"github.com/letushack/labs-server/internal/shared"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Failed to close store: %v", err)
		}
	})
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := domain.Session{
		ContainerID: "ctr-1",
		UserID:      "u1",
		LabType:     domain.LabTypeXSS,
		Port:        3001,
		Status:      domain.StatusRunning,
		CreatedAt:   time.Now().Truncate(time.Second),
	}
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("UpsertSession failed: %v", err)
	}

	got, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 session, got %d", len(got))
	}
	if got[0].ContainerID != "ctr-1" || got[0].LabType != domain.LabTypeXSS || got[0].Port != 3001 {
		t.Errorf("Round-tripped session differs: %+v", got[0])
	}
	if !got[0].CreatedAt.Equal(sess.CreatedAt) {
		t.Errorf("CreatedAt differs: %v vs %v", got[0].CreatedAt, sess.CreatedAt)
	}
}

func TestUpsertSessionIsIdempotentOnKey(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sess := domain.Session{ContainerID: "ctr-1", UserID: "u1", LabType: domain.LabTypeXSS, Port: 3001, Status: domain.StatusRunning, CreatedAt: time.Now()}
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("First upsert failed: %v", err)
	}
	sess.Port = 3002
	if err := s.UpsertSession(ctx, sess); err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}

	got, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 session after re-upsert, got %d", len(got))
	}
	if got[0].Port != 3002 {
		t.Errorf("Expected updated port 3002, got %d", got[0].Port)
	}
}

func TestDeleteSessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, user := range []string{"u1", "u1", "u2"} {
		sess := domain.Session{
			ContainerID: "ctr-" + string(rune('a'+i)),
			UserID:      user,
			LabType:     domain.LabTypeCSRF,
			Port:        3001 + i,
			Status:      domain.StatusRunning,
			CreatedAt:   time.Now(),
		}
		if err := s.UpsertSession(ctx, sess); err != nil {
			t.Fatalf("UpsertSession failed: %v", err)
		}
	}

	if err := s.DeleteSession(ctx, "ctr-a"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if err := s.DeleteSession(ctx, "no-such-container"); err != nil {
		t.Fatalf("Deleting a missing session should not fail: %v", err)
	}
	if err := s.DeleteUserSessions(ctx, "u1"); err != nil {
		t.Fatalf("DeleteUserSessions failed: %v", err)
	}

	got, err := s.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(got) != 1 || got[0].UserID != "u2" {
		t.Errorf("Expected only u2's session to remain, got %+v", got)
	}
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetUser(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got != nil {
		t.Fatal("Expected nil for unknown user")
	}

	now := time.Now().Truncate(time.Second)
	user := &domain.User{
		UserID:       "alice",
		Name:         "Alice",
		PasswordHash: "$2a$12$abcdefghijklmnopqrstuv",
		IPAddress:    "10.0.0.1",
		LastActivity: now,
		CreatedAt:    now,
	}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	err = s.CreateUser(ctx, user)
	if err == nil {
		t.Fatal("Expected duplicate user creation to fail")
	}
	if !shared.IsUniqueConstraintError(err) {
		t.Errorf("Expected unique constraint error, got %v", err)
	}

	if err := s.UpdateLastActivity(ctx, "alice", "10.0.0.2", now.Add(time.Hour)); err != nil {
		t.Fatalf("UpdateLastActivity failed: %v", err)
	}

	got, err = s.GetUser(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got == nil || got.Name != "Alice" || got.IPAddress != "10.0.0.2" {
		t.Errorf("Unexpected user: %+v", got)
	}
	if !got.LastActivity.Equal(now.Add(time.Hour)) {
		t.Errorf("Expected updated last activity, got %v", got.LastActivity)
	}
}

func TestLeaderboardRanking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for _, u := range []string{"alice", "bob", "carol"} {
		if err := s.CreateUser(ctx, &domain.User{UserID: u, Name: u, PasswordHash: "x", CreatedAt: now}); err != nil {
			t.Fatalf("CreateUser failed: %v", err)
		}
	}

	scores := []domain.LabScore{
		{UserID: "alice", LabID: "xss-1", Score: 50, Solved: true, UpdatedAt: now},
		{UserID: "alice", LabID: "csrf-1", Score: 30, Solved: true, UpdatedAt: now},
		{UserID: "bob", LabID: "xss-1", Score: 100, Solved: true, UpdatedAt: now},
	}
	for _, sc := range scores {
		if err := s.UpsertLabScore(ctx, sc); err != nil {
			t.Fatalf("UpsertLabScore failed: %v", err)
		}
	}

	entries, err := s.Leaderboard(ctx)
	if err != nil {
		t.Fatalf("Leaderboard failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[0].UserID != "bob" || entries[0].Rank != 1 || entries[0].TotalScore != 100 {
		t.Errorf("Unexpected first entry: %+v", entries[0])
	}
	if entries[1].UserID != "alice" || entries[1].ChallengesSolved != 2 {
		t.Errorf("Unexpected second entry: %+v", entries[1])
	}
	if entries[2].UserID != "carol" || entries[2].TotalScore != 0 {
		t.Errorf("Unexpected third entry: %+v", entries[2])
	}

	rank, err := s.UserRank(ctx, "alice")
	if err != nil {
		t.Fatalf("UserRank failed: %v", err)
	}
	if rank != 2 {
		t.Errorf("Expected alice at rank 2, got %d", rank)
	}
	if rank, _ := s.UserRank(ctx, "nobody"); rank != 0 {
		t.Errorf("Expected 0 for unknown user, got %d", rank)
	}
}

func TestUserScores(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	if err := s.UpsertLabScore(ctx, domain.LabScore{UserID: "u1", LabID: "xss-1", Score: 10, UpdatedAt: now}); err != nil {
		t.Fatalf("UpsertLabScore failed: %v", err)
	}
	if err := s.UpsertLabScore(ctx, domain.LabScore{UserID: "u1", LabID: "xss-1", Score: 40, Solved: true, UpdatedAt: now}); err != nil {
		t.Fatalf("UpsertLabScore failed: %v", err)
	}

	scores, err := s.UserScores(ctx, "u1")
	if err != nil {
		t.Fatalf("UserScores failed: %v", err)
	}
	if len(scores) != 1 {
		t.Fatalf("Expected 1 score row, got %d", len(scores))
	}
	if scores[0].Score != 40 || !scores[0].Solved {
		t.Errorf("Expected upsert to replace score, got %+v", scores[0])
	}
}

func TestNotifications(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n1 := &domain.Notification{UserID: "u1", Message: "first", Type: domain.NotificationInfo, CreatedAt: time.Now().Add(-time.Minute)}
	n2 := &domain.Notification{UserID: "u1", Message: "second", Type: domain.NotificationSuccess, CreatedAt: time.Now()}
	for _, n := range []*domain.Notification{n1, n2} {
		if err := s.AddNotification(ctx, n); err != nil {
			t.Fatalf("AddNotification failed: %v", err)
		}
		if n.ID == 0 {
			t.Error("Expected assigned notification ID")
		}
	}

	got, err := s.ListNotifications(ctx, "u1", 50)
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(got))
	}
	if got[0].Message != "second" {
		t.Errorf("Expected newest-first ordering, got %q first", got[0].Message)
	}

	if err := s.MarkNotificationsRead(ctx, "u1", []int64{n1.ID}); err != nil {
		t.Fatalf("MarkNotificationsRead failed: %v", err)
	}
	got, err = s.ListNotifications(ctx, "u1", 50)
	if err != nil {
		t.Fatalf("ListNotifications failed: %v", err)
	}
	for _, n := range got {
		want := n.ID == n1.ID
		if n.IsRead != want {
			t.Errorf("Notification %d read=%v, want %v", n.ID, n.IsRead, want)
		}
	}

	if err := s.MarkNotificationsRead(ctx, "u1", nil); err != nil {
		t.Fatalf("MarkNotificationsRead(all) failed: %v", err)
	}
	got, _ = s.ListNotifications(ctx, "u1", 50)
	for _, n := range got {
		if !n.IsRead {
			t.Errorf("Expected all notifications read, %d is not", n.ID)
		}
	}
}
