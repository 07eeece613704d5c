package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAY - Calendar day, the grouping unit for all session/category logic
// =============================================================================

// Day is a calendar date normalized to UTC midnight. Movement events and
// production records are always keyed by worker + Day.
type Day struct {
	Time time.Time
}

func NewDay(year int, month time.Month, day int) Day {
	return Day{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDay parses "2006-01-02" and the compact "20060102" form that some
// warehouse exports use.
func ParseDay(s string) (Day, error) {
	for _, layout := range []string{"2006-01-02", "20060102"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewDay(t.Year(), t.Month(), t.Day()), nil
		}
	}
	return Day{}, fmt.Errorf("%w: %q", ErrInvalidDay, s)
}

func (d Day) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Comparison
func (d Day) Before(other Day) bool { return d.normalize().Before(other.normalize()) }
func (d Day) After(other Day) bool  { return d.normalize().After(other.normalize()) }
func (d Day) Equal(other Day) bool  { return d.normalize().Equal(other.normalize()) }
func (d Day) IsZero() bool          { return d.Time.IsZero() }

func (d Day) AddDays(n int) Day { return Day{Time: d.Time.AddDate(0, 0, n)} }

func (d Day) Year() int         { return d.Time.Year() }
func (d Day) Month() time.Month { return d.Time.Month() }

func (d Day) String() string { return d.Time.Format("2006-01-02") }

func Today() Day {
	now := time.Now()
	return NewDay(now.Year(), now.Month(), now.Day())
}

// =============================================================================
// CLOCK TIME - Time of day, independent of date
// =============================================================================

// ClockTime is a wall-clock time within a day. Movement events carry start
// and end ClockTimes; an end earlier than its start means the movement
// crossed midnight and interval arithmetic adds 24h before subtracting.
type ClockTime struct {
	Hour   int
	Minute int
	Second int
}

func NewClock(hour, minute int) ClockTime {
	return ClockTime{Hour: hour, Minute: minute}
}

// ParseClock accepts "15:04" and "15:04:05".
func ParseClock(s string) (ClockTime, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		sec = 0
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return ClockTime{Hour: h, Minute: m, Second: sec}, nil
}

// SecondsOfDay returns seconds since midnight.
func (c ClockTime) SecondsOfDay() int {
	return c.Hour*3600 + c.Minute*60 + c.Second
}

func (c ClockTime) Before(other ClockTime) bool {
	return c.SecondsOfDay() < other.SecondsOfDay()
}

func (c ClockTime) Equal(other ClockTime) bool {
	return c.SecondsOfDay() == other.SecondsOfDay()
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

const secondsPerDay = 24 * 3600

// SpanSeconds returns end-start in seconds, adding a day when the end
// precedes the start (overnight movement).
func SpanSeconds(start, end ClockTime) int {
	s := end.SecondsOfDay() - start.SecondsOfDay()
	if s < 0 {
		s += secondsPerDay
	}
	return s
}

// =============================================================================
// DURATION HELPERS - decimal-backed, no float drift
// =============================================================================

var (
	sixty        = decimal.NewFromInt(60)
	secondsPerHr = decimal.NewFromInt(3600)
)

func MinutesFromSeconds(sec int) decimal.Decimal {
	return decimal.NewFromInt(int64(sec)).Div(sixty)
}

func HoursFromSeconds(sec int) decimal.Decimal {
	return decimal.NewFromInt(int64(sec)).Div(secondsPerHr)
}

// MinutesToHours converts external duration minutes into hours.
func MinutesToHours(minutes decimal.Decimal) decimal.Decimal {
	return minutes.Div(sixty)
}
