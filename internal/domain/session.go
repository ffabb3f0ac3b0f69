// Package domain contains core domain types for the letushack platform.
package domain

import (
	"fmt"
	"time"
)

// LabType selects which vulnerability-lab image a session runs.
type LabType string

const (
	LabTypeXSS  LabType = "xss"
	LabTypeCSRF LabType = "csrf"
)

// ParseLabType validates a user-supplied lab type string.
func ParseLabType(s string) (LabType, error) {
	switch LabType(s) {
	case LabTypeXSS:
		return LabTypeXSS, nil
	case LabTypeCSRF:
		return LabTypeCSRF, nil
	default:
		return "", fmt.Errorf("invalid lab type %q: must be %q or %q", s, LabTypeXSS, LabTypeCSRF)
	}
}

// Image returns the Docker image backing this lab type.
// The mapping is fixed configuration; user input never reaches an image name.
func (t LabType) Image() (string, bool) {
	switch t {
	case LabTypeXSS:
		return "xss_lab", true
	case LabTypeCSRF:
		return "csrf_lab", true
	default:
		return "", false
	}
}

// SessionStatus describes the lifecycle state of a lab session.
// Only StatusRunning is ever persisted; stopped and errored sessions are
// removed from tracking rather than retained.
type SessionStatus string

const (
	StatusRunning SessionStatus = "running"
	StatusStopped SessionStatus = "stopped"
	StatusError   SessionStatus = "error"
)

// Session is the tracked record of one running lab container for one user.
type Session struct {
	ContainerID string        `json:"containerId"`
	UserID      string        `json:"userId"`
	LabType     LabType       `json:"labType"`
	Port        int           `json:"port"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// URL returns the access URL for the session's bound host port.
func (s Session) URL() string {
	return fmt.Sprintf("http://localhost:%d", s.Port)
}
