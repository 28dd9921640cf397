package events

import (
	"sort"
	"strings"
	"time"

	"calfeed/internal/model"
	"calfeed/internal/recurrence"
)

// DefaultUpcomingLimit is the display cap for the upcoming list.
const DefaultUpcomingLimit = 50

// IsUpcoming reports whether a non-recurring event is still relevant on or
// after startOfToday. Unparseable dates make the event not upcoming.
func IsUpcoming(ev model.RawEvent, now, startOfToday time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	if ev.Start == "" && ev.End == "" {
		return false
	}

	start, _, startErr := parseTimestamp(ev.Start, loc)
	end, endDateOnly, endErr := parseTimestamp(ev.End, loc)
	hasStart := startErr == nil
	hasEnd := endErr == nil

	if ev.AllDay {
		if ev.End != "" {
			if !hasEnd {
				return false
			}
			if endDateOnly {
				end = endOfDay(end, loc)
			}
			return !end.Before(startOfToday)
		}
		return hasStart && !start.Before(startOfToday)
	}

	if hasStart && !start.Before(startOfToday) {
		return true
	}
	// In progress.
	if hasStart && hasEnd && start.Before(now) && !end.Before(now) {
		return true
	}
	return false
}

// NextEntry materializes the next occurrence of a recurring event at or
// after startOfToday. ok is false when the adapter yields nothing or the
// event's start cannot be read.
func NextEntry(ev model.RawEvent, startOfToday time.Time, loc *time.Location, rec *recurrence.Adapter) (model.UpcomingEntry, bool) {
	var anchor time.Time
	if ev.Start != "" {
		t, _, err := parseTimestamp(ev.Start, loc)
		if err != nil {
			return model.UpcomingEntry{}, false
		}
		anchor = t
	}

	next, ok := rec.NextOccurrence(ev.RRule, anchor, startOfToday)
	if !ok {
		return model.UpcomingEntry{}, false
	}

	entry := model.UpcomingEntry{RawEvent: ev, NextOccurrence: true}
	entry.Start = next.UTC().Format(time.RFC3339)
	return entry, true
}

// SelectUpcoming builds the ordered upcoming list from the whole feed:
// non-recurring events still relevant today, plus the next occurrence of
// each recurring event. The result is not truncated; see Truncate.
func SelectUpcoming(evs []model.RawEvent, now time.Time, loc *time.Location, rec *recurrence.Adapter) []model.UpcomingEntry {
	if loc == nil {
		loc = time.Local
	}
	sod := StartOfDay(now, loc)

	single := make([]model.UpcomingEntry, 0, len(evs))
	repeating := make([]model.UpcomingEntry, 0)

	for _, ev := range evs {
		if ev.Recurring() {
			if entry, ok := NextEntry(ev, sod, loc, rec); ok {
				repeating = append(repeating, entry)
			}
			continue
		}
		if IsUpcoming(ev, now, sod, loc) {
			single = append(single, model.UpcomingEntry{RawEvent: ev})
		}
	}

	out := append(single, repeating...)
	SortEntries(out)
	return out
}

// SortEntries orders entries by start string, then by numeric id. Equal
// keys keep their relative order.
func SortEntries(entries []model.UpcomingEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entryLess(entries[i].RawEvent, entries[j].RawEvent)
	})
}

// SortRaw applies the same ordering to feed records.
func SortRaw(evs []model.RawEvent) {
	sort.SliceStable(evs, func(i, j int) bool {
		return entryLess(evs[i], evs[j])
	})
}

func entryLess(a, b model.RawEvent) bool {
	if c := strings.Compare(a.Start, b.Start); c != 0 {
		return c < 0
	}
	return a.ID.Numeric() < b.ID.Numeric()
}

// Truncate applies a display cap. A limit <= 0 keeps everything.
func Truncate(entries []model.UpcomingEntry, limit int) []model.UpcomingEntry {
	if limit <= 0 || len(entries) <= limit {
		return entries
	}
	return entries[:limit]
}
