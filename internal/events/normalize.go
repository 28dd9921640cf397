// Package events turns feed records into what the calendar widget and the
// upcoming list consume. Everything here is pure: no I/O and no logging.
package events

import (
	"calfeed/internal/model"
)

// PlaceholderTitle is shown for events without a title.
const PlaceholderTitle = "(no title)"

// Normalize converts one feed record into the widget's shape.
//
// recurring tells whether a recurrence engine is available; when it is, a
// recurring event is handed to the widget as {rrule, dtstart} and the widget
// expands it. All-day end dates are inclusive in the feed and exclusive for
// the widget, so they move forward by one calendar day.
func Normalize(ev model.RawEvent, recurring bool) (model.DisplayEvent, error) {
	out := model.DisplayEvent{
		Title:         ev.Title,
		AllDay:        ev.AllDay,
		ExtendedProps: model.ExtendedProps{Original: ev},
	}
	if out.Title == "" {
		out.Title = PlaceholderTitle
	}
	if ev.ID.Valid() {
		out.ID = ev.ID.String()
	}

	switch {
	case ev.Recurring() && recurring:
		out.RRule = ev.RRule
		out.DTStart = ev.Start

	case ev.AllDay && ev.Start != "":
		start, err := calendarDate(ev.Start)
		if err != nil {
			return model.DisplayEvent{}, err
		}
		out.Start = start.Format(dateLayout)
		if ev.End != "" {
			end, err := calendarDate(ev.End)
			if err != nil {
				return model.DisplayEvent{}, err
			}
			out.End = end.AddDate(0, 0, 1).Format(dateLayout)
		}

	default:
		out.Start = ev.Start
		out.End = ev.End
	}

	return out, nil
}

// NormalizeAll normalizes a feed, dropping records that cannot be
// represented. The order of the feed is kept.
func NormalizeAll(evs []model.RawEvent, recurring bool) []model.DisplayEvent {
	out := make([]model.DisplayEvent, 0, len(evs))
	for _, ev := range evs {
		d, err := Normalize(ev, recurring)
		if err != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}
