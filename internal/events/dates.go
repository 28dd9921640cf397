package events

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// localLayouts are date-time forms without a UTC offset; they are read in
// the display location.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

var errEmptyTimestamp = errors.New("empty timestamp")

// parseTimestamp reads an ISO-8601 feed timestamp. Date-only values are
// midnight in loc and reported with dateOnly set.
func parseTimestamp(s string, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false, errEmptyTimestamp
	}
	if loc == nil {
		loc = time.Local
	}

	if len(s) == len(dateLayout) {
		t, err = time.ParseInLocation(dateLayout, s, loc)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parse date %q: %w", s, err)
		}
		return t, true, nil
	}

	if t, err = time.Parse(time.RFC3339Nano, s); err == nil {
		return t, false, nil
	}
	for _, layout := range localLayouts {
		if t, err = time.ParseInLocation(layout, s, loc); err == nil {
			return t, false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("parse timestamp %q: unsupported format", s)
}

// calendarDate returns the YYYY-MM-DD prefix of a feed timestamp after
// checking it is a real date.
func calendarDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(dateLayout) {
		return time.Time{}, fmt.Errorf("calendar date %q: too short", s)
	}
	d, err := time.Parse(dateLayout, s[:len(dateLayout)])
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar date %q: %w", s, err)
	}
	return d, nil
}

// StartOfDay returns midnight of t's calendar date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// endOfDay is the last representable millisecond of d's date in loc.
func endOfDay(d time.Time, loc *time.Location) time.Time {
	d = d.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
}
