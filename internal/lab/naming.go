package lab

import (
	"fmt"
	"time"

	"github.com/letushack/labs-server/internal/domain"
)

const maxUserNamePart = 20

// containerName builds a Docker-safe container name from a user ID and lab
// type. Docker names must match [a-zA-Z0-9][a-zA-Z0-9_.-]*; the user part is
// sanitized and truncated, and a millisecond timestamp keeps names unique
// across repeated starts by the same user.
func containerName(userID string, labType domain.LabType, now time.Time) string {
	return fmt.Sprintf("%s_%s_%d", labType, sanitizeNamePart(userID), now.UnixMilli())
}

func sanitizeNamePart(s string) string {
	b := []byte(s)
	for i, c := range b {
		if !isNameChar(c) {
			b[i] = '_'
		}
	}
	if len(b) == 0 {
		return "u"
	}
	if !isAlnum(b[0]) {
		b[0] = 'u'
	}
	if len(b) > maxUserNamePart {
		b = b[:maxUserNamePart]
	}
	return string(b)
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

func isNameChar(c byte) bool {
	return isAlnum(c) || c == '_' || c == '.' || c == '-'
}
