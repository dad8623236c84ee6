package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDayStart(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	ts := time.Date(2024, 3, 9, 22, 30, 0, 0, loc) // 2024-03-10 03:30 UTC

	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), DayStart(ts))
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), NextDayStart(ts))
}

func TestFixed(t *testing.T) {
	ts := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := Fixed(ts)
	assert.Equal(t, ts, c.Now())
	assert.Equal(t, ts, c.Now())
}
