package lab

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/letushack/labs-server/internal/domain"
)

var dockerNamePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

func TestSanitizeNamePart(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice", "alice"},
		{"alice@example.com", "alice_example.com"},
		{"-leading-dash", "uleading-dash"},
		{"@@", "u_"},
		{"", "u"},
		{"averyverylongusernamethatexceedsthelimit", "averyverylongusernam"},
	}

	for _, tt := range tests {
		got := sanitizeNamePart(tt.in)
		if got != tt.want {
			t.Errorf("sanitizeNamePart(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestContainerNameIsDockerSafe(t *testing.T) {
	now := time.Now()
	for _, user := range []string{"alice", "bob@example.com", "--", "ünïcode user!"} {
		name := containerName(user, domain.LabTypeXSS, now)
		if !dockerNamePattern.MatchString(name) {
			t.Errorf("Container name %q is not Docker-safe (user %q)", name, user)
		}
		if !strings.HasPrefix(name, "xss_") {
			t.Errorf("Expected lab-type prefix, got %q", name)
		}
	}
}

func TestContainerNameUniqueAcrossStarts(t *testing.T) {
	t1 := time.UnixMilli(1700000000000)
	t2 := time.UnixMilli(1700000000001)
	if containerName("alice", domain.LabTypeCSRF, t1) == containerName("alice", domain.LabTypeCSRF, t2) {
		t.Error("Expected names from different timestamps to differ")
	}
}
