package calendar

import (
	"fmt"
	"time"

	"github.com/vitos/options_alert_bot/internal/domain"
)

const exchangeTimezone = "America/New_York"

// Full-day closures, by exchange-local date.
var holidays = map[string]bool{
	// 2025
	"2025-01-01": true, // New Year's Day
	"2025-01-20": true, // Martin Luther King Jr. Day
	"2025-02-17": true, // Presidents' Day
	"2025-04-18": true, // Good Friday
	"2025-05-26": true, // Memorial Day
	"2025-06-19": true, // Juneteenth
	"2025-07-04": true, // Independence Day
	"2025-09-01": true, // Labor Day
	"2025-11-27": true, // Thanksgiving
	"2025-12-25": true, // Christmas
	// 2026
	"2026-01-01": true,
	"2026-01-19": true,
	"2026-02-16": true,
	"2026-04-03": true,
	"2026-05-25": true,
	"2026-06-19": true,
	"2026-07-03": true, // Independence Day observed
	"2026-09-07": true,
	"2026-11-26": true,
	"2026-12-25": true,
}

// Sessions that close at 13:00 instead of 16:00.
var earlyCloses = map[string]bool{
	"2025-07-03": true, // day before Independence Day
	"2025-11-28": true, // day after Thanksgiving
	"2025-12-24": true, // Christmas Eve
	"2026-11-27": true,
	"2026-12-24": true,
}

// NYSECalendar answers market-hours questions on the exchange clock:
// 9:30 to 16:00 Eastern on weekdays, 13:00 close on shortened sessions,
// closed on listed holidays.
type NYSECalendar struct {
	loc *time.Location
}

func NewNYSE() (*NYSECalendar, error) {
	loc, err := time.LoadLocation(exchangeTimezone)
	if err != nil {
		return nil, fmt.Errorf("load exchange timezone: %w", err)
	}
	return &NYSECalendar{loc: loc}, nil
}

// NewNYSEInLocation pins the exchange clock to a given zone. Tests use
// this to run the session rules without a tz database.
func NewNYSEInLocation(loc *time.Location) *NYSECalendar {
	return &NYSECalendar{loc: loc}
}

func (c *NYSECalendar) Location() *time.Location {
	return c.loc
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}

func (c *NYSECalendar) IsOpen(now time.Time) bool {
	et := now.In(c.loc)
	if isWeekend(et) {
		return false
	}
	key := et.Format("2006-01-02")
	if holidays[key] {
		return false
	}

	open := time.Date(et.Year(), et.Month(), et.Day(), 9, 30, 0, 0, c.loc)
	closeAt := time.Date(et.Year(), et.Month(), et.Day(), 16, 0, 0, 0, c.loc)
	if earlyCloses[key] {
		closeAt = time.Date(et.Year(), et.Month(), et.Day(), 13, 0, 0, 0, c.loc)
	}
	return !et.Before(open) && et.Before(closeAt)
}

// NextOpen returns the first 9:30 session start after now.
func (c *NYSECalendar) NextOpen(now time.Time) time.Time {
	et := now.In(c.loc)
	day := time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, c.loc)
	if c.IsOpen(now) {
		day = day.AddDate(0, 0, 1)
	}

	for i := 0; i < 366; i++ {
		openAt := time.Date(day.Year(), day.Month(), day.Day(), 9, 30, 0, 0, c.loc)
		if !isWeekend(day) && !holidays[day.Format("2006-01-02")] && openAt.After(et) {
			return openAt
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}
}

func (c *NYSECalendar) Status(now time.Time) domain.MarketStatus {
	et := now.In(c.loc)
	key := et.Format("2006-01-02")

	status := domain.MarketStatus{
		IsOpen:       c.IsOpen(now),
		CurrentTime:  et,
		NextOpen:     c.NextOpen(now),
		IsWeekend:    isWeekend(et),
		IsHoliday:    holidays[key],
		IsEarlyClose: earlyCloses[key],
	}
	if status.IsOpen {
		return status
	}

	minuteOfDay := et.Hour()*60 + et.Minute()
	switch {
	case status.IsWeekend:
		status.Reason = "Weekend"
	case status.IsHoliday:
		status.Reason = "Holiday"
	case status.IsEarlyClose && minuteOfDay >= 13*60:
		status.Reason = "Early close day (market closed at 1:00 PM)"
	case minuteOfDay < 9*60+30:
		status.Reason = "Before market hours (opens at 9:30 AM)"
	case minuteOfDay >= 16*60:
		status.Reason = "After market hours (closed at 4:00 PM)"
	default:
		status.Reason = "Market closed"
	}
	return status
}
