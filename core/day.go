package core

import (
	"fmt"
	"time"
)

// DayLayout is the text form of a Day.
const DayLayout = "2006-01-02"

// Day is a calendar date with no time-of-day component. The zero value means
// "no day" and is used for absent dates.
type Day struct {
	Year  int
	Month time.Month
	Dom   int
}

// DayOf truncates t to its calendar day in t's own location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Dom: d}
}

// DayIn returns the calendar day of t as seen from loc.
func DayIn(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.Local
	}
	return DayOf(t.In(loc))
}

// ParseDay parses the YYYY-MM-DD form.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return DayOf(t), nil
}

// MustParseDay is ParseDay for literals in tests and fixtures.
func MustParseDay(s string) Day {
	d, err := ParseDay(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Day) IsZero() bool { return d == Day{} }

// Time returns midnight UTC of d. UTC has no DST, so day arithmetic on the
// result is exact.
func (d Day) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Dom, 0, 0, 0, 0, time.UTC)
}

// AddDays moves d by n calendar days.
func (d Day) AddDays(n int) Day {
	return DayOf(d.Time().AddDate(0, 0, n))
}

func (d Day) Before(o Day) bool { return d.Time().Before(o.Time()) }

func (d Day) After(o Day) bool { return d.Time().After(o.Time()) }

func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time().Format(DayLayout)
}

func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Day) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysBetween returns the number of calendar days from a to b; negative when
// b is before a.
func DaysBetween(a, b Day) int {
	return int(b.Time().Sub(a.Time()).Hours() / 24)
}
