package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a 24h wall-clock time of day
type Clock struct {
	Hour   int `json:"hour" yaml:"hour"`
	Minute int `json:"minute" yaml:"minute"`
}

// String renders the clock as HH:MM
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock parses a strict two-digit HH:MM value
func ParseClock(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' || !allDigits(s[:2]) || !allDigits(s[3:]) {
		return Clock{}, fmt.Errorf("invalid time format: %q", s)
	}
	hour, _ := strconv.Atoi(s[:2])
	minute, _ := strconv.Atoi(s[3:])
	if hour > 23 || minute > 59 {
		return Clock{}, fmt.Errorf("invalid time: %q", s)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// Date is a calendar date without a time of day
type Date struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
	Day   int        `json:"day"`
}

// String renders the date as YYYY-MM-DD
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Start returns midnight of the date in loc
func (d Date) Start(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// ParseDate parses YYYY/M/D where month and day have one or two digits.
// The result must be a real calendar date.
func ParseDate(s string) (Date, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return Date{}, fmt.Errorf("invalid date format: %q", s)
	}
	if len(parts[0]) != 4 || !allDigits(parts[0]) {
		return Date{}, fmt.Errorf("invalid year: %q", s)
	}
	for _, p := range parts[1:] {
		if len(p) < 1 || len(p) > 2 || !allDigits(p) {
			return Date{}, fmt.Errorf("invalid date format: %q", s)
		}
	}

	year, _ := strconv.Atoi(parts[0])
	month, _ := strconv.Atoi(parts[1])
	day, _ := strconv.Atoi(parts[2])

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return Date{}, fmt.Errorf("invalid date: %q", s)
	}
	return Date{Year: year, Month: time.Month(month), Day: day}, nil
}

// DateOf returns the calendar date of t in its own location
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseWeekday accepts the full English day name or any prefix of it at
// least three letters long, case-insensitively.
func ParseWeekday(s string) (time.Weekday, error) {
	lower := strings.ToLower(s)
	if len(lower) >= 3 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			if strings.HasPrefix(strings.ToLower(d.String()), lower) {
				return d, nil
			}
		}
	}
	return time.Sunday, fmt.Errorf("invalid weekday: %q", s)
}

// Schedule is the weekly digest trigger plus the notify flag
type Schedule struct {
	Weekday time.Weekday `json:"weekday"`
	At      Clock        `json:"at"`
	Notify  bool         `json:"notify"`
}

// String renders the schedule for replies and logs
func (s Schedule) String() string {
	return fmt.Sprintf("%s at %s", s.Weekday, s.At)
}

// DefaultSchedule is used when nothing has been persisted yet
func DefaultSchedule() Schedule {
	return Schedule{Weekday: time.Sunday}
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
