package database

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// TimePtr converts a nullable column to a UTC time, nil when NULL.
func TimePtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}

// NullTime is the nullable column value of t.
func NullTime(t *time.Time) null.Time {
	if t == nil {
		return null.Time{}
	}
	return null.TimeFrom(t.UTC())
}
