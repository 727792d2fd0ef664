package server

import (
	"strings"

	"github.com/google/uuid"
)

// generatePublicPath derives an unguessable public feed path: a URL-safe
// slug of the source name plus a short random suffix. The suffix keeps
// public paths from being guessed or colliding with private feed paths.
func generatePublicPath(name string) string {
	slug := slugify(name)
	if slug == "" {
		slug = "feed"
	}
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return slug + "-" + suffix + ".ics"
}

func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
