package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"
)

func TestTimePtr(t *testing.T) {
	assert.Nil(t, TimePtr(null.Time{}))

	kinshasa := time.FixedZone("WAT", 3600)
	got := TimePtr(null.TimeFrom(time.Date(2024, 3, 10, 13, 0, 0, 0, kinshasa)))
	if assert.NotNil(t, got) {
		assert.Equal(t, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC), *got)
	}
}

func TestNullTime(t *testing.T) {
	assert.False(t, NullTime(nil).Valid)

	ts := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	nt := NullTime(&ts)
	assert.True(t, nt.Valid)
	assert.Equal(t, ts, nt.Time)
	assert.Equal(t, &ts, TimePtr(nt))
}
