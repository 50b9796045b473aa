package worker

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/codewars-bot/internal/domain"
)

var weeklyParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// NextOccurrence returns the first instant strictly after now that falls on
// the schedule's weekday and time in loc. When now is exactly on the
// boundary the occurrence counts as consumed and the result is a week later.
//
// Days are counted on the calendar, so a daylight saving change never adds
// or drops an occurrence. A wall time repeated when clocks go back resolves
// to its first instant; a wall time skipped when clocks go forward moves
// forward by the size of the gap.
func NextOccurrence(s domain.Schedule, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if _, err := weeklyParser.Parse(cronSpec(s)); err != nil {
		return time.Time{}, fmt.Errorf("invalid schedule %s: %w", s, err)
	}

	local := now.In(loc)
	y, m, d := local.Date()
	offset := (int(s.Weekday) - int(local.Weekday()) + 7) % 7

	for _, days := range []int{offset, offset + 7} {
		candidate := wallClock(y, m, d+days, s.At, loc)
		if candidate.After(now) {
			return candidate, nil
		}
	}
	return time.Time{}, fmt.Errorf("no occurrence for schedule %s", s)
}

// wallClock builds the instant for a local date and clock. time.Date places
// a skipped wall time before the gap, so it is shifted past it here.
func wallClock(y int, m time.Month, d int, at domain.Clock, loc *time.Location) time.Time {
	t := time.Date(y, m, d, at.Hour, at.Minute, 0, 0, loc)
	if t.Hour() == at.Hour && t.Minute() == at.Minute {
		return t
	}
	_, before := t.Zone()
	naive := time.Date(y, m, d, at.Hour, at.Minute, 0, 0, time.UTC)
	return naive.Add(-time.Duration(before) * time.Second).In(loc)
}

// dayAfter returns midnight of the calendar day following t in loc
func dayAfter(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

func cronSpec(s domain.Schedule) string {
	return fmt.Sprintf("%d %d * * %d", s.At.Minute, s.At.Hour, int(s.Weekday))
}
