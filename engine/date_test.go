package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/rotation-engine/engine"
)

func TestDate_ParseAndFormat(t *testing.T) {
	parsed, err := engine.ParseDate("2026-03-02")
	require.NoError(t, err)
	assert.Equal(t, d(2026, time.March, 2), parsed)
	assert.Equal(t, "2026-03-02", parsed.String())

	_, err = engine.ParseDate("03/02/2026")
	assert.Error(t, err)
}

func TestDate_WeekdayOrdinal(t *testing.T) {
	// 2026-03-10 is the second Tuesday of March.
	assert.Equal(t, 2, d(2026, time.March, 10).WeekdayOrdinal())
	assert.Equal(t, 1, d(2026, time.March, 3).WeekdayOrdinal())
}

func TestDate_IsLastWeekdayOfMonth(t *testing.T) {
	// 2026-03-31 is the last Tuesday of March; the 24th is not.
	assert.True(t, d(2026, time.March, 31).IsLastWeekdayOfMonth())
	assert.False(t, d(2026, time.March, 24).IsLastWeekdayOfMonth())
}

func TestDateRange_Days(t *testing.T) {
	r := marchWeek()
	days := r.Days()
	require.Len(t, days, 5)
	assert.Equal(t, d(2026, time.March, 2), days[0])
	assert.Equal(t, d(2026, time.March, 6), days[4])
	assert.Equal(t, 5, r.Len())
}

func TestDateRange_Contains(t *testing.T) {
	r := marchWeek()
	assert.True(t, r.Contains(d(2026, time.March, 2)))
	assert.True(t, r.Contains(d(2026, time.March, 6)))
	assert.False(t, r.Contains(d(2026, time.March, 7)))
}

func TestSortAndDedupDates(t *testing.T) {
	dates := []engine.Date{
		d(2026, time.March, 4),
		d(2026, time.March, 2),
		d(2026, time.March, 4),
	}
	engine.SortDates(dates)
	deduped := engine.DedupDates(dates)
	require.Len(t, deduped, 2)
	assert.Equal(t, d(2026, time.March, 2), deduped[0])
	assert.Equal(t, d(2026, time.March, 4), deduped[1])
}
