package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian/rotation-engine/engine"
	"github.com/meridian/rotation-engine/engine/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newSourceWithPreceptor(id engine.PreceptorID) *store.Memory {
	m := store.NewMemory()
	m.AddPreceptor(engine.Preceptor{ID: id, Name: "Dr. Test"})
	return m
}

func weeklyPattern(id string, preceptorID engine.PreceptorID, days ...time.Weekday) engine.AvailabilityPattern {
	return engine.AvailabilityPattern{
		ID:          id,
		PreceptorID: preceptorID,
		Enabled:     true,
		Kind:        engine.RecurWeekly,
		Weekdays:    days,
	}
}

func d(year int, month time.Month, day int) engine.Date {
	return engine.NewDate(year, month, day)
}

// marchWeek is Monday 2026-03-02 through Friday 2026-03-06.
func marchWeek() engine.DateRange {
	return engine.NewDateRange(d(2026, time.March, 2), d(2026, time.March, 6))
}

// =============================================================================
// PATTERN EXPANSION
// =============================================================================

func TestAvailability_WeeklyPattern(t *testing.T) {
	// GIVEN: A preceptor available Mondays and Wednesdays
	// WHEN: Resolving one week
	// THEN: Exactly the Monday and Wednesday appear, in order

	m := newSourceWithPreceptor("prec-1")
	m.AddPattern(weeklyPattern("pat-1", "prec-1", time.Monday, time.Wednesday))

	resolver := engine.NewAvailabilityResolver(m)
	dates, err := resolver.Resolve(context.Background(), "prec-1", marchWeek())
	require.NoError(t, err)

	require.Len(t, dates, 2)
	assert.Equal(t, d(2026, time.March, 2), dates[0])
	assert.Equal(t, d(2026, time.March, 4), dates[1])
}

func TestAvailability_WeekdayOfMonth(t *testing.T) {
	// Second Tuesday of March 2026 is the 10th.
	m := newSourceWithPreceptor("prec-1")
	m.AddPattern(engine.AvailabilityPattern{
		ID:          "pat-1",
		PreceptorID: "prec-1",
		Enabled:     true,
		Kind:        engine.RecurWeekdayOfMonth,
		Weekday:     time.Tuesday,
		Ordinal:     2,
	})

	resolver := engine.NewAvailabilityResolver(m)
	march := engine.NewDateRange(d(2026, time.March, 1), d(2026, time.March, 31))
	dates, err := resolver.Resolve(context.Background(), "prec-1", march)
	require.NoError(t, err)

	require.Len(t, dates, 1)
	assert.Equal(t, d(2026, time.March, 10), dates[0])
}

func TestAvailability_LastWeekdayOfMonth(t *testing.T) {
	// Last Tuesday of March 2026 is the 31st.
	m := newSourceWithPreceptor("prec-1")
	m.AddPattern(engine.AvailabilityPattern{
		ID:          "pat-1",
		PreceptorID: "prec-1",
		Enabled:     true,
		Kind:        engine.RecurWeekdayOfMonth,
		Weekday:     time.Tuesday,
		Ordinal:     -1,
	})

	resolver := engine.NewAvailabilityResolver(m)
	march := engine.NewDateRange(d(2026, time.March, 1), d(2026, time.March, 31))
	dates, err := resolver.Resolve(context.Background(), "prec-1", march)
	require.NoError(t, err)

	require.Len(t, dates, 1)
	assert.Equal(t, d(2026, time.March, 31), dates[0])
}

func TestAvailability_DisabledPatternIgnored(t *testing.T) {
	m := newSourceWithPreceptor("prec-1")
	pattern := weeklyPattern("pat-1", "prec-1", time.Monday)
	pattern.Enabled = false
	m.AddPattern(pattern)

	resolver := engine.NewAvailabilityResolver(m)
	dates, err := resolver.Resolve(context.Background(), "prec-1", marchWeek())
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestAvailability_SiteScopedPatterns(t *testing.T) {
	// GIVEN: A Monday pattern tied to site-1 and an unscoped Wednesday
	//        pattern
	// WHEN: Resolving with and without a site restriction
	// THEN: The site-tied pattern only counts when its site is asked for;
	//       the unscoped pattern always counts

	m := newSourceWithPreceptor("prec-1")
	monday := weeklyPattern("pat-mon", "prec-1", time.Monday)
	monday.SiteID = "site-1"
	m.AddPattern(monday)
	m.AddPattern(weeklyPattern("pat-wed", "prec-1", time.Wednesday))

	resolver := engine.NewAvailabilityResolver(m)

	all, err := resolver.Resolve(context.Background(), "prec-1", marchWeek())
	require.NoError(t, err)
	assert.Equal(t, []engine.Date{d(2026, time.March, 2), d(2026, time.March, 4)}, all)

	other, err := resolver.ResolveForSites(context.Background(), "prec-1", marchWeek(),
		[]engine.SiteID{"site-2"})
	require.NoError(t, err)
	assert.Equal(t, []engine.Date{d(2026, time.March, 4)}, other)

	matched, err := resolver.ResolveForSites(context.Background(), "prec-1", marchWeek(),
		[]engine.SiteID{"site-1"})
	require.NoError(t, err)
	assert.Equal(t, []engine.Date{d(2026, time.March, 2), d(2026, time.March, 4)}, matched)
}

// =============================================================================
// EXCEPTIONS
// =============================================================================

func TestAvailability_RemoveException(t *testing.T) {
	// GIVEN: Available every Monday, with the Monday carved out
	// THEN: The carved-out date is gone

	m := newSourceWithPreceptor("prec-1")
	pattern := weeklyPattern("pat-1", "prec-1", time.Monday, time.Friday)
	pattern.Exceptions = []engine.AvailabilityException{
		{Date: d(2026, time.March, 2), Add: false},
	}
	m.AddPattern(pattern)

	resolver := engine.NewAvailabilityResolver(m)
	dates, err := resolver.Resolve(context.Background(), "prec-1", marchWeek())
	require.NoError(t, err)

	require.Len(t, dates, 1)
	assert.Equal(t, d(2026, time.March, 6), dates[0])
}

func TestAvailability_AddException(t *testing.T) {
	m := newSourceWithPreceptor("prec-1")
	pattern := weeklyPattern("pat-1", "prec-1", time.Monday)
	pattern.Exceptions = []engine.AvailabilityException{
		{Date: d(2026, time.March, 5), Add: true}, // Thursday
	}
	m.AddPattern(pattern)

	resolver := engine.NewAvailabilityResolver(m)
	dates, err := resolver.Resolve(context.Background(), "prec-1", marchWeek())
	require.NoError(t, err)

	require.Len(t, dates, 2)
	assert.Equal(t, d(2026, time.March, 2), dates[0])
	assert.Equal(t, d(2026, time.March, 5), dates[1])
}

func TestAvailability_AddOutsideRangeIgnored(t *testing.T) {
	m := newSourceWithPreceptor("prec-1")
	pattern := weeklyPattern("pat-1", "prec-1", time.Monday)
	pattern.Exceptions = []engine.AvailabilityException{
		{Date: d(2026, time.April, 6), Add: true},
	}
	m.AddPattern(pattern)

	resolver := engine.NewAvailabilityResolver(m)
	dates, err := resolver.Resolve(context.Background(), "prec-1", marchWeek())
	require.NoError(t, err)

	require.Len(t, dates, 1)
	assert.Equal(t, d(2026, time.March, 2), dates[0])
}

func TestAvailability_RemoveBeatsAdd(t *testing.T) {
	// A date both added and removed stays removed.
	m := newSourceWithPreceptor("prec-1")
	pattern := weeklyPattern("pat-1", "prec-1")
	pattern.Exceptions = []engine.AvailabilityException{
		{Date: d(2026, time.March, 3), Add: true},
		{Date: d(2026, time.March, 3), Add: false},
	}
	m.AddPattern(pattern)

	resolver := engine.NewAvailabilityResolver(m)
	dates, err := resolver.Resolve(context.Background(), "prec-1", marchWeek())
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestAvailability_ExplicitPattern(t *testing.T) {
	// RecurExplicit contributes only its add-exceptions.
	m := newSourceWithPreceptor("prec-1")
	m.AddPattern(engine.AvailabilityPattern{
		ID:          "pat-1",
		PreceptorID: "prec-1",
		Enabled:     true,
		Kind:        engine.RecurExplicit,
		Exceptions: []engine.AvailabilityException{
			{Date: d(2026, time.March, 4), Add: true},
			{Date: d(2026, time.March, 5), Add: true},
		},
	})

	resolver := engine.NewAvailabilityResolver(m)
	dates, err := resolver.Resolve(context.Background(), "prec-1", marchWeek())
	require.NoError(t, err)

	require.Len(t, dates, 2)
	assert.Equal(t, d(2026, time.March, 4), dates[0])
	assert.Equal(t, d(2026, time.March, 5), dates[1])
}

// =============================================================================
// BLACKOUTS AND MERGING
// =============================================================================

func TestAvailability_BlackoutRangeExcluded(t *testing.T) {
	m := newSourceWithPreceptor("prec-1")
	m.AddPattern(weeklyPattern("pat-1", "prec-1",
		time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday))
	m.AddBlackout(engine.BlackoutDate{
		ID:     "holiday",
		Start:  d(2026, time.March, 3),
		End:    d(2026, time.March, 4),
		Reason: "conference",
	})

	resolver := engine.NewAvailabilityResolver(m)
	dates, err := resolver.Resolve(context.Background(), "prec-1", marchWeek())
	require.NoError(t, err)

	require.Len(t, dates, 3)
	assert.Equal(t, d(2026, time.March, 2), dates[0])
	assert.Equal(t, d(2026, time.March, 5), dates[1])
	assert.Equal(t, d(2026, time.March, 6), dates[2])
}

func TestAvailability_SingleDayBlackout(t *testing.T) {
	// Zero End means a one-day blackout.
	m := newSourceWithPreceptor("prec-1")
	m.AddPattern(weeklyPattern("pat-1", "prec-1", time.Monday, time.Friday))
	m.AddBlackout(engine.BlackoutDate{ID: "b1", Start: d(2026, time.March, 2)})

	resolver := engine.NewAvailabilityResolver(m)
	dates, err := resolver.Resolve(context.Background(), "prec-1", marchWeek())
	require.NoError(t, err)

	require.Len(t, dates, 1)
	assert.Equal(t, d(2026, time.March, 6), dates[0])
}

func TestAvailability_OverlappingPatternsDeduplicated(t *testing.T) {
	m := newSourceWithPreceptor("prec-1")
	m.AddPattern(weeklyPattern("pat-1", "prec-1", time.Monday, time.Wednesday))
	m.AddPattern(weeklyPattern("pat-2", "prec-1", time.Wednesday, time.Friday))

	resolver := engine.NewAvailabilityResolver(m)
	dates, err := resolver.Resolve(context.Background(), "prec-1", marchWeek())
	require.NoError(t, err)

	require.Len(t, dates, 3)
	assert.Equal(t, d(2026, time.March, 2), dates[0])
	assert.Equal(t, d(2026, time.March, 4), dates[1])
	assert.Equal(t, d(2026, time.March, 6), dates[2])
}

// =============================================================================
// ERRORS AND CACHING
// =============================================================================

func TestAvailability_UnknownPreceptor(t *testing.T) {
	m := store.NewMemory()
	resolver := engine.NewAvailabilityResolver(m)

	_, err := resolver.Resolve(context.Background(), "ghost", marchWeek())
	assert.True(t, engine.IsNotFound(err))
}

func TestAvailability_InvalidRange(t *testing.T) {
	m := newSourceWithPreceptor("prec-1")
	resolver := engine.NewAvailabilityResolver(m)

	backwards := engine.DateRange{Start: d(2026, time.March, 6), End: d(2026, time.March, 2)}
	_, err := resolver.Resolve(context.Background(), "prec-1", backwards)
	assert.True(t, engine.IsValidation(err))
}

func TestAvailability_MemoReturnsCopies(t *testing.T) {
	// Mutating a returned slice must not corrupt the memo.
	m := newSourceWithPreceptor("prec-1")
	m.AddPattern(weeklyPattern("pat-1", "prec-1", time.Monday, time.Friday))

	resolver := engine.NewAvailabilityResolver(m)
	first, err := resolver.Resolve(context.Background(), "prec-1", marchWeek())
	require.NoError(t, err)

	first[0] = d(1999, time.January, 1)

	second, err := resolver.Resolve(context.Background(), "prec-1", marchWeek())
	require.NoError(t, err)
	assert.Equal(t, d(2026, time.March, 2), second[0])
}
