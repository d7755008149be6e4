package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - ISO calendar day, ordered lexicographically
// =============================================================================

// Date is an ISO-8601 calendar day ("2006-01-02"). Because the layout is
// fixed width, string comparison is chronological comparison.
type Date string

const isoLayout = "2006-01-02"

// NewDate builds a Date. Out-of-range days normalize like time.Date.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return Date(t.Format(isoLayout))
}

// ParseDate validates an ISO day string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(isoLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) Time() time.Time {
	t, _ := time.Parse(isoLayout, string(d))
	return t
}

func (d Date) Before(o Date) bool        { return d < o }
func (d Date) After(o Date) bool         { return d > o }
func (d Date) BeforeOrEqual(o Date) bool { return d <= o }
func (d Date) AfterOrEqual(o Date) bool  { return d >= o }
func (d Date) IsZero() bool              { return d == "" }
func (d Date) String() string            { return string(d) }

// DaysIn returns the number of days in month (28-31).
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func EndOfMonth(year int, month time.Month) Date {
	return NewDate(year, month, DaysIn(year, month))
}

// =============================================================================
// PERIOD - Inclusive date range
// =============================================================================

// Period is an inclusive [Start, End] range of days.
type Period struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// Contains reports whether d falls inside [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Covers reports whether o lies entirely within p.
func (p Period) Covers(o Period) bool {
	return p.Contains(o.Start) && p.Contains(o.End)
}

func (p Period) Valid() bool {
	return !p.Start.IsZero() && !p.End.IsZero() && p.Start.BeforeOrEqual(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// HalfMonth returns day 1-15 or day 16-end of month.
func HalfMonth(year int, month time.Month, half Half) Period {
	if half == SecondHalf {
		return Period{Start: NewDate(year, month, 16), End: EndOfMonth(year, month)}
	}
	return Period{Start: NewDate(year, month, 1), End: NewDate(year, month, 15)}
}

// SeasonStartMonth opens the agricultural season; it closes on April 30.
const SeasonStartMonth = time.May

// Season returns May 1 of startYear through April 30 of the next year.
func Season(startYear int) Period {
	return Period{
		Start: NewDate(startYear, SeasonStartMonth, 1),
		End:   NewDate(startYear+1, time.April, 30),
	}
}

// SeasonYearFor returns the start year of the season containing ref.
func SeasonYearFor(ref time.Time) int {
	if ref.Month() >= SeasonStartMonth {
		return ref.Year()
	}
	return ref.Year() - 1
}
