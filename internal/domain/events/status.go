package events

import (
	"fmt"
	"time"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// loadLocation resolves an IANA zone name, falling back to UTC when the
// name is empty or unknown to the host zone database.
func loadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// parseClock parses an HH:MM string, falling back to the given hour and
// minute when the value is malformed. Stored rows may carry bad values
// from imports; derivation must still produce an instant.
func parseClock(value string, fallbackHour, fallbackMinute int) (int, int) {
	parsed, err := time.Parse(timeLayout, value)
	if err != nil {
		return fallbackHour, fallbackMinute
	}
	return parsed.Hour(), parsed.Minute()
}

// StartsAt resolves the event's absolute start instant: date at start_time
// in the event's zone. A malformed start_time counts as midnight. The only
// unrecoverable input is a malformed date.
func StartsAt(e *Event) (time.Time, error) {
	loc := loadLocation(e.TimeZone)
	day, err := time.ParseInLocation(dateLayout, e.Date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse event date %q: %w", e.Date, err)
	}
	hour, minute := parseClock(e.StartTime, 0, 0)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc), nil
}

// EndsAt resolves the event's absolute end instant: end_date (or date) at
// end_time (or 23:59) in the event's zone. Ends before the start are
// clamped to the start so a bad row cannot produce a negative duration.
func EndsAt(e *Event) (time.Time, error) {
	start, err := StartsAt(e)
	if err != nil {
		return time.Time{}, err
	}

	loc := loadLocation(e.TimeZone)
	day := start
	if e.EndDate != nil && *e.EndDate != "" {
		parsed, err := time.ParseInLocation(dateLayout, *e.EndDate, loc)
		if err == nil {
			day = parsed
		}
	}

	endValue := ""
	if e.EndTime != nil {
		endValue = *e.EndTime
	}
	hour, minute := parseClock(endValue, 23, 59)

	end := time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
	if end.Before(start) {
		return start, nil
	}
	return end, nil
}

// ComputeStatus derives the event's status at the given instant. The
// stored status column is a cache of this function; it is never trusted
// from clients. An event whose date cannot be parsed sorts as upcoming so
// it stays visible for repair instead of silently completing.
func ComputeStatus(e *Event, now time.Time) string {
	start, err := StartsAt(e)
	if err != nil {
		return StatusUpcoming
	}
	end, err := EndsAt(e)
	if err != nil {
		return StatusUpcoming
	}

	switch {
	case now.Before(start):
		return StatusUpcoming
	case now.After(end):
		return StatusCompleted
	default:
		return StatusOngoing
	}
}
