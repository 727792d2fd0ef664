package server

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Personal Calendar", "personal-calendar"},
		{"  Team -- Offsite!  ", "team-offsite"},
		{"Работа", ""},
		{"already-slugged", "already-slugged"},
		{"2026 Plans", "2026-plans"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, slugify(tc.in), "slugify(%q)", tc.in)
	}
}

func TestGeneratePublicPath(t *testing.T) {
	path := generatePublicPath("Personal Calendar")
	assert.True(t, strings.HasPrefix(path, "personal-calendar-"), "got %q", path)
	assert.True(t, strings.HasSuffix(path, ".ics"))
	assert.Len(t, path, len("personal-calendar-")+8+len(".ics"))

	// A name with no usable characters still yields a path.
	path = generatePublicPath("!!!")
	assert.True(t, strings.HasPrefix(path, "feed-"), "got %q", path)

	// Two calls never collide.
	assert.NotEqual(t, generatePublicPath("x"), generatePublicPath("x"))
}
