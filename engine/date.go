package engine

import (
	"encoding/json"
	"sort"
	"time"
)

// =============================================================================
// DATE - Day-granularity calendar point (all scheduling is day-level)
// =============================================================================

// Date is a calendar day in UTC. Clerkship assignments are always whole
// days, so the engine never deals in hours or minutes.
type Date struct {
	t time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an arbitrary time to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date {
	return DateOf(time.Now().UTC())
}

// ParseDate parses "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.t.After(other.t) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.t.Before(other.t) }

// Arithmetic
func (d Date) AddDays(n int) Date   { return DateOf(d.t.AddDate(0, 0, n)) }
func (d Date) AddMonths(n int) Date { return DateOf(d.t.AddDate(0, n, 0)) }

// Properties
func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) Time() time.Time       { return d.t }

func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Date) String() string { return d.t.Format("2006-01-02") }

// MarshalJSON encodes as "2006-01-02"; the zero Date encodes as null.
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" || string(b) == `""` {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// WeekdayOrdinal returns which occurrence of its weekday this date is
// within its month (1 = first Monday, 2 = second Monday, ...).
func (d Date) WeekdayOrdinal() int {
	return (d.Day()-1)/7 + 1
}

// IsLastWeekdayOfMonth reports whether this date is the final occurrence
// of its weekday in its month.
func (d Date) IsLastWeekdayOfMonth() bool {
	return d.AddDays(7).Month() != d.Month()
}

// =============================================================================
// DATE RANGE - Inclusive [Start, End] span
// =============================================================================

// DateRange is an inclusive span of calendar days. A scheduling run always
// operates inside exactly one range.
type DateRange struct {
	Start Date
	End   Date
}

func NewDateRange(start, end Date) DateRange {
	return DateRange{Start: start, End: end}
}

// Valid reports whether the range is non-empty and correctly ordered.
func (r DateRange) Valid() bool {
	return !r.Start.IsZero() && !r.End.IsZero() && r.Start.BeforeOrEqual(r.End)
}

// Contains returns true if the date falls within [Start, End].
func (r DateRange) Contains(d Date) bool {
	return d.AfterOrEqual(r.Start) && d.BeforeOrEqual(r.End)
}

// Days enumerates every day in the range, ascending.
func (r DateRange) Days() []Date {
	var days []Date
	for cur := r.Start; cur.BeforeOrEqual(r.End); cur = cur.AddDays(1) {
		days = append(days, cur)
	}
	return days
}

// Len returns the number of days in the range. Zero for invalid ranges.
func (r DateRange) Len() int {
	if !r.Valid() {
		return 0
	}
	return DaysBetween(r.Start, r.End) + 1
}

func (r DateRange) String() string {
	return "[" + r.Start.String() + ", " + r.End.String() + "]"
}

// =============================================================================
// CALENDAR UTILITIES
// =============================================================================

func DaysBetween(from, to Date) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

func StartOfYear(year int) Date { return NewDate(year, time.January, 1) }
func EndOfYear(year int) Date   { return NewDate(year, time.December, 31) }

// YearRange is the calendar year containing d, used for per-year capacity
// accounting.
func YearRange(d Date) DateRange {
	return DateRange{Start: StartOfYear(d.Year()), End: EndOfYear(d.Year())}
}

// SortDates sorts in place, ascending.
func SortDates(dates []Date) {
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
}

// DedupDates removes consecutive duplicates from a sorted slice.
func DedupDates(dates []Date) []Date {
	if len(dates) < 2 {
		return dates
	}
	out := dates[:1]
	for _, d := range dates[1:] {
		if !d.Equal(out[len(out)-1]) {
			out = append(out, d)
		}
	}
	return out
}
