package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// WeeklySchedule fires once a week at the top of Hour on Weekday in Location.
type WeeklySchedule struct {
	Weekday  time.Weekday
	Hour     int
	Location *time.Location
}

// Next returns the first firing time strictly after after.
func (w WeeklySchedule) Next(after time.Time) time.Time {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	local := after.In(loc)

	days := (int(w.Weekday) - int(local.Weekday()) + 7) % 7
	next := time.Date(local.Year(), local.Month(), local.Day()+days, w.Hour, 0, 0, 0, loc)
	if !next.After(after) {
		next = time.Date(local.Year(), local.Month(), local.Day()+days+7, w.Hour, 0, 0, 0, loc)
	}
	return next
}

// ParseWeekday parses an English weekday name such as "monday" or "Mon".
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

// RunWeekly calls run at every firing of schedule until ctx is cancelled.
// A failed run is logged and the next firing proceeds as usual.
func RunWeekly(ctx context.Context, schedule WeeklySchedule, run func(context.Context) error, logger *slog.Logger) {
	for {
		next := schedule.Next(time.Now())
		logger.InfoContext(ctx, "next scheduled report", slog.Time("at", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := run(ctx); err != nil {
			logger.ErrorContext(ctx, "scheduled report failed", slog.String("error", err.Error()))
		}
	}
}
