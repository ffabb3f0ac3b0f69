package domain

import (
	"time"
)

// LabScore records a user's best score for a single lab.
type LabScore struct {
	UserID    string    `json:"user_id"`
	LabID     string    `json:"lab_id"`
	Score     int       `json:"score"`
	Solved    bool      `json:"solved"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LeaderboardEntry is one ranked row of the platform leaderboard.
type LeaderboardEntry struct {
	Rank             int    `json:"rank"`
	UserID           string `json:"user_id"`
	Name             string `json:"name"`
	TotalScore       int    `json:"total_score"`
	ChallengesSolved int    `json:"challenges_solved"`
}
