package core

import (
	"strings"
	"time"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// Slugify lowers `s` and joins its ASCII alphanumeric runs with single hyphens.
func Slugify(s string) string {
	var b strings.Builder
	lastDash := true // no leading dash
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if ('a' <= r && r <= 'z') || ('0' <= r && r <= '9') {
			b.WriteRune(r)
			lastDash = false
		} else if !lastDash {
			b.WriteRune('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// Now returns the current UTC time with the precision kept by the databases.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
