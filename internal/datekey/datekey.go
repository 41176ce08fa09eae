package datekey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Layout is the canonical key format. Zero padded, so string order == date order.
const Layout = "2006-01-02"

// ErrInvalidDate is returned when a string is not a real Gregorian date
var ErrInvalidDate = errors.New("invalid date")

// Date is a validated calendar day (no time, no zone)
// ⭐ SSOT: 날짜 키는 이 타입으로만 표현
type Date struct {
	year  int
	month time.Month
	day   int
}

// New builds a Date from a y/m/d triple.
// The triple must round-trip through time.Date exactly (no Feb 30).
func New(year int, month time.Month, day int) (Date, error) {
	if year < 1 || year > 9999 {
		return Date{}, fmt.Errorf("%w: year %d out of range", ErrInvalidDate, year)
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || t.Month() != month || t.Day() != day {
		return Date{}, fmt.Errorf("%w: %04d-%02d-%02d does not exist", ErrInvalidDate, year, int(month), day)
	}
	return Date{year: year, month: month, day: day}, nil
}

// MustNew is New for literals in tests and fixtures
func MustNew(year int, month time.Month, day int) Date {
	d, err := New(year, month, day)
	if err != nil {
		panic(err)
	}
	return d
}

// FromTime truncates t to its calendar day in t's own location
func FromTime(t time.Time) Date {
	return Date{year: t.Year(), month: t.Month(), day: t.Day()}
}

// Parse accepts DD-MM-YYYY (primary) or YYYY-MM-DD.
// It never panics; any failure wraps ErrInvalidDate.
func Parse(s string) (Date, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}

	var y, m, d string
	switch {
	case len(parts[0]) == 4: // YYYY-MM-DD
		y, m, d = parts[0], parts[1], parts[2]
	case len(parts[2]) == 4: // DD-MM-YYYY
		d, m, y = parts[0], parts[1], parts[2]
	default:
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}

	year, err1 := atoiDigits(y, 4, 4)
	month, err2 := atoiDigits(m, 1, 2)
	day, err3 := atoiDigits(d, 1, 2)
	if err1 != nil || err2 != nil || err3 != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	if month < 1 || month > 12 {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}

	date, err := New(year, time.Month(month), day)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return date, nil
}

// Normalize returns the canonical YYYY-MM-DD key for s
func Normalize(s string) (string, bool) {
	d, err := Parse(s)
	if err != nil {
		return "", false
	}
	return d.String(), true
}

// atoiDigits parses an all-digit string of bounded width (no signs, no spaces)
func atoiDigits(s string, minLen, maxLen int) (int, error) {
	if len(s) < minLen || len(s) > maxLen {
		return 0, strconv.ErrSyntax
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.Atoi(s)
}

// Year returns the year
func (d Date) Year() int { return d.year }

// Month returns the month
func (d Date) Month() time.Month { return d.month }

// Day returns the day of month
func (d Date) Day() int { return d.day }

// IsZero reports whether d is the zero Date
func (d Date) IsZero() bool { return d.year == 0 }

// Time returns midnight UTC of d
func (d Date) Time() time.Time {
	return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC)
}

// Weekday returns the day of week
func (d Date) Weekday() time.Weekday { return d.Time().Weekday() }

// String returns the canonical key (YYYY-MM-DD)
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.year, int(d.month), d.day)
}

// Compare returns -1, 0 or +1
func (d Date) Compare(o Date) int {
	switch {
	case d.year != o.year:
		return cmpInt(d.year, o.year)
	case d.month != o.month:
		return cmpInt(int(d.month), int(o.month))
	default:
		return cmpInt(d.day, o.day)
	}
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Before reports whether d is strictly earlier than o
func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }

// After reports whether d is strictly later than o
func (d Date) After(o Date) bool { return d.Compare(o) > 0 }

// AddDays shifts d by n calendar days (n may be negative)
func (d Date) AddDays(n int) Date {
	return FromTime(d.Time().AddDate(0, 0, n))
}

// DaysBetween returns the number of days from d to o (o - d)
func (d Date) DaysBetween(o Date) int {
	return int(o.Time().Sub(d.Time()).Hours() / 24)
}

// DaysInMonth returns the length of d's month
func (d Date) DaysInMonth() int {
	return daysIn(d.year, d.month)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonths shifts d by n months, clamping to the last valid day of the target month.
// 2024-03-31 -1 month → 2024-02-29
func (d Date) AddMonths(n int) Date {
	y, m := shiftMonth(d.year, d.month, n)
	day := d.day
	if last := daysIn(y, m); day > last {
		day = last
	}
	return Date{year: y, month: m, day: day}
}

// AddMonthsExact shifts d by n months without clamping.
// ok is false when the same day-of-month does not exist in the target month.
func (d Date) AddMonthsExact(n int) (Date, bool) {
	y, m := shiftMonth(d.year, d.month, n)
	if d.day > daysIn(y, m) {
		return Date{}, false
	}
	return Date{year: y, month: m, day: d.day}, true
}

// AddYears shifts d by n years with the same clamp as AddMonths (Feb 29 → Feb 28)
func (d Date) AddYears(n int) Date {
	return d.AddMonths(12 * n)
}

func shiftMonth(year int, month time.Month, n int) (int, time.Month) {
	idx := year*12 + int(month-1) + n
	y := idx / 12
	m := idx % 12
	if m < 0 {
		m += 12
		y--
	}
	return y, time.Month(m + 1)
}

// StartOfISOWeek returns the Monday of d's ISO week
func (d Date) StartOfISOWeek() Date {
	offset := (int(d.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return d.AddDays(-offset)
}

// ISOWeekday returns 0 for Monday through 6 for Sunday
func (d Date) ISOWeekday() int {
	return (int(d.Weekday()) + 6) % 7
}

// ISOWeek returns the ISO week-year and week number
func (d Date) ISOWeek() (int, int) {
	return d.Time().ISOWeek()
}

// StartOfMonth returns the 1st of d's month
func (d Date) StartOfMonth() Date {
	return Date{year: d.year, month: d.month, day: 1}
}

// WithDay returns d's month at the given day, clamped to the month length
func (d Date) WithDay(day int) Date {
	if last := d.DaysInMonth(); day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return Date{year: d.year, month: d.month, day: day}
}

// MarshalText implements encoding.TextMarshaler
func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Min returns the earlier of a and b
func Min(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

// Max returns the later of a and b
func Max(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

// Ordered returns (from, to) with from <= to regardless of argument order
func Ordered(from, to Date) (Date, Date) {
	if from.After(to) {
		return to, from
	}
	return from, to
}
