package orchestrator

import "time"

// Holiday reports whether the given UTC calendar date should be skipped
// during day generation.
type Holiday interface {
	IsHoliday(date time.Time) bool
}

// DefaultHolidayCalendar recognizes only the two fixed dates the
// specification requires at minimum: New Year's Day and Christmas.
type DefaultHolidayCalendar struct{}

// IsHoliday reports true for January 1 and December 25, any year.
func (DefaultHolidayCalendar) IsHoliday(date time.Time) bool {
	m, d := date.Month(), date.Day()
	return (m == time.January && d == 1) || (m == time.December && d == 25)
}
