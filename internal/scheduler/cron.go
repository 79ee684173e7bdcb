package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// dailySchedule wraps a parsed "minute hour * * *" cron expression for the
// daily wall-clock engines (ranking, name-refresh). Using robfig/cron's
// schedule arithmetic instead of hand-rolled time.Date math gets calendar
// edge cases (month/year rollover, leap days) for free.
type dailySchedule struct {
	schedule cron.Schedule
	hour     int
	minute   int
}

// newDailySchedule parses an hour:minute pair into a standard 5-field cron
// expression fixed to fire every day.
func newDailySchedule(hour, minute int) (dailySchedule, error) {
	expr := fmt.Sprintf("%d %d * * *", minute, hour)
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return dailySchedule{}, fmt.Errorf("scheduler: parse daily schedule %q: %w", expr, err)
	}
	return dailySchedule{schedule: sched, hour: hour, minute: minute}, nil
}

// next returns the next firing time after now. If the computed instant's
// local wall-clock hour/minute don't match what was requested, a DST
// transition skipped or repeated that instant; the caller should back off
// an hour and ask again rather than fire at the wrong local time.
func (d dailySchedule) next(now time.Time) (t time.Time, dstAmbiguous bool) {
	next := d.schedule.Next(now)
	if next.Hour() != d.hour || next.Minute() != d.minute {
		return next, true
	}
	return next, false
}
