package debt

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day (no time-of-day semantics)
// =============================================================================

// DateLayout is the canonical text form of a Date.
const DateLayout = "2006-01-02"

// Date is a calendar day normalized to UTC midnight.
// The zero value means "unset".
type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf takes the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	if t.IsZero() {
		return Date{}
	}
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses the canonical YYYY-MM-DD form.
func ParseDate(s string) (Date, error) {
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// MustParseDate panics on malformed input. Intended for fixtures.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(other Date) bool        { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool         { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool         { return d.Time.Equal(other.Time) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic
func (d Date) AddDays(n int) Date  { return DateOf(d.Time.AddDate(0, 0, n)) }
func (d Date) AddYears(n int) Date { return DateOf(d.Time.AddDate(n, 0, 0)) }

func (d Date) IsZero() bool { return d.Time.IsZero() }

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Time.Format(DateLayout)
}

// MarshalText renders the canonical form; the zero Date renders empty.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DaysBetween returns the whole-day difference to - from.
func DaysBetween(from, to Date) int {
	return int(to.Time.Sub(from.Time).Hours() / 24)
}

// MaxDate returns the later of two dates.
func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock supplies the current instant. Tests inject a fixed clock.
type Clock func() time.Time

// Today returns the current calendar day according to the clock.
func (c Clock) Today() Date {
	if c == nil {
		return DateOf(time.Now())
	}
	return DateOf(c())
}

// Now returns the current instant according to the clock.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// FixedClock always reports t.
func FixedClock(t time.Time) Clock {
	return func() time.Time { return t }
}
