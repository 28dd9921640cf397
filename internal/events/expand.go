package events

import (
	"errors"
	"sort"
	"time"

	"calfeed/internal/model"
	"calfeed/internal/recurrence"
)

// ExpandConfig controls window expansion.
type ExpandConfig struct {
	// DisplayLocation is the zone occurrences are converted to and in which
	// date-only values are read. If nil, time.Local is used.
	DisplayLocation *time.Location

	// RangeStart / RangeEnd define the inclusive window.
	RangeStart time.Time
	RangeEnd   time.Time
}

// ExpandResult wraps the expanded occurrences.
type ExpandResult struct {
	Occurrences []model.Occurrence
	// TruncatedIDs lists recurring events whose expansion hit the cap.
	TruncatedIDs []string
}

// ExpandOccurrences lists every concrete occurrence that intersects the
// window: single events as they are, recurring events through the adapter.
// Events with unreadable dates are skipped. Recurring events produce
// nothing when the adapter has no engine.
func ExpandOccurrences(evs []model.RawEvent, rec *recurrence.Adapter, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if cfg.RangeEnd.Before(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is before RangeStart")
	}
	if cfg.DisplayLocation == nil {
		cfg.DisplayLocation = time.Local
	}

	all := make([]model.Occurrence, 0, len(evs))
	for _, ev := range evs {
		start, end, ok := eventSpan(ev, cfg.DisplayLocation)
		if !ok {
			continue
		}

		if !ev.Recurring() {
			if timeRangesOverlap(start, end, cfg.RangeStart, cfg.RangeEnd) {
				all = append(all, makeOccurrence(ev, start, end, cfg.DisplayLocation))
			}
			continue
		}

		// Widen the window by the event length so occurrences that started
		// before RangeStart but are still running are kept.
		dur := end.Sub(start)
		days := int((dur + 12*time.Hour) / (24 * time.Hour))
		times, truncated := rec.ExpandWindow(ev.RRule, start, cfg.RangeStart.Add(-dur), cfg.RangeEnd)
		if truncated {
			result.TruncatedIDs = append(result.TruncatedIDs, ev.ID.String())
		}
		for _, occStart := range times {
			occEnd := occStart.Add(dur)
			if ev.AllDay {
				occStart = StartOfDay(occStart, cfg.DisplayLocation)
				occEnd = occStart.AddDate(0, 0, days)
			}
			if !timeRangesOverlap(occStart, occEnd, cfg.RangeStart, cfg.RangeEnd) {
				continue
			}
			all = append(all, makeOccurrence(ev, occStart, occEnd, cfg.DisplayLocation))
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if !all[i].Start.Equal(all[j].Start) {
			return all[i].Start.Before(all[j].Start)
		}
		return all[i].ID.Numeric() < all[j].ID.Numeric()
	})

	result.Occurrences = all
	return result, nil
}

// eventSpan resolves the concrete [start, end) of a single event or of a
// recurring event's template occurrence. All-day spans cover whole days with
// an exclusive end; timed events without end are instants.
func eventSpan(ev model.RawEvent, loc *time.Location) (time.Time, time.Time, bool) {
	start, _, err := parseTimestamp(ev.Start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}

	if ev.AllDay {
		first := StartOfDay(start, loc)
		last := first
		if ev.End != "" {
			end, _, err := parseTimestamp(ev.End, loc)
			if err != nil {
				return time.Time{}, time.Time{}, false
			}
			last = StartOfDay(end, loc)
			if last.Before(first) {
				last = first
			}
		}
		return first, last.AddDate(0, 0, 1), true
	}

	end := start
	if ev.End != "" {
		e, _, err := parseTimestamp(ev.End, loc)
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		if !e.Before(start) {
			end = e
		}
	}
	return start, end, true
}

func makeOccurrence(ev model.RawEvent, start, end time.Time, loc *time.Location) model.Occurrence {
	startLocal := start.In(loc)
	title := ev.Title
	if title == "" {
		title = PlaceholderTitle
	}
	return model.Occurrence{
		ID:          ev.ID,
		InstanceKey: ev.ID.String() + "@" + startLocal.Format(time.RFC3339),
		Title:       title,
		Description: ev.Description,
		Location:    ev.Location,
		AllDay:      ev.AllDay,
		Start:       startLocal,
		End:         end.In(loc),
	}
}

func timeRangesOverlap(aStart, aEnd, bStart, bEnd time.Time) bool {
	if aEnd.Before(bStart) {
		return false
	}
	if bEnd.Before(aStart) {
		return false
	}
	return true
}
