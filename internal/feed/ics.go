package feed

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"calfeed/internal/model"
)

const (
	icsDateLayout = "20060102"
	feedDate      = "2006-01-02"
)

// ParseICS converts an iCalendar payload into feed records, so ICS
// subscriptions can be served next to JSON feeds.
//
//   - All-day events (VALUE=DATE or a value without 'T') become date-only
//     records; the exclusive DTEND is turned into the feed's inclusive end.
//   - Timed events are written in RFC 3339, UTC.
//   - RRULE is kept verbatim; overrides (RECURRENCE-ID) are skipped.
//
// VEVENTs that cannot be read are skipped and counted.
func ParseICS(body []byte) ([]model.RawEvent, int, error) {
	if len(body) == 0 {
		return nil, 0, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}

	evs := make([]model.RawEvent, 0)
	skipped := 0
	for _, ve := range cal.Events() {
		ev, ok := fromVEvent(ve)
		if !ok {
			skipped++
			continue
		}
		evs = append(evs, ev)
	}
	return evs, skipped, nil
}

func fromVEvent(ve *ical.VEvent) (model.RawEvent, bool) {
	var out model.RawEvent

	if p := ve.GetProperty(ical.ComponentProperty("RECURRENCE-ID")); p != nil {
		return out, false
	}

	if p := ve.GetProperty(ical.ComponentPropertyUniqueId); p != nil && p.Value != "" {
		out.ID = model.NewEventID(p.Value)
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Title = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RRule = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, false
	}
	out.AllDay = isDateValue(dtStart)

	if out.AllDay {
		start, err := time.Parse(icsDateLayout, strings.TrimSpace(dtStart.Value))
		if err != nil {
			return out, false
		}
		out.Start = start.Format(feedDate)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			end, err := time.Parse(icsDateLayout, strings.TrimSpace(dtEnd.Value))
			if err != nil {
				return out, false
			}
			// Exclusive in ICS, inclusive in the feed.
			last := end.AddDate(0, 0, -1)
			if last.Before(start) {
				last = start
			}
			out.End = last.Format(feedDate)
		}
		return out, true
	}

	start, err := ve.GetStartAt()
	if err != nil {
		return out, false
	}
	out.Start = start.UTC().Format(time.RFC3339)
	if end, err := ve.GetEndAt(); err == nil && !end.IsZero() {
		out.End = end.UTC().Format(time.RFC3339)
	}
	return out, true
}

func isDateValue(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// ExportICS renders feed records as an iCalendar document. Records without
// an id get a positional UID; records without a readable start are left out.
func ExportICS(evs []model.RawEvent, loc *time.Location, now time.Time) string {
	if loc == nil {
		loc = time.Local
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId("-//calfeed//events//EN")

	for i, ev := range evs {
		uid := ev.ID.String()
		if uid == "" {
			uid = "calfeed-" + now.UTC().Format("20060102") + "-" + strconv.Itoa(i)
		}

		if ev.AllDay {
			start, err := time.ParseInLocation(feedDate, prefix(ev.Start, len(feedDate)), loc)
			if err != nil {
				continue
			}
			ve := newVEvent(cal, uid, ev, now)
			ve.SetAllDayStartAt(start)
			last := start
			if ev.End != "" {
				if end, err := time.ParseInLocation(feedDate, prefix(ev.End, len(feedDate)), loc); err == nil && !end.Before(start) {
					last = end
				}
			}
			ve.SetAllDayEndAt(last.AddDate(0, 0, 1))
			continue
		}

		start, err := parseFeedTime(ev.Start, loc)
		if err != nil {
			continue
		}
		ve := newVEvent(cal, uid, ev, now)
		ve.SetStartAt(start)
		if end, err := parseFeedTime(ev.End, loc); err == nil {
			ve.SetEndAt(end)
		}
	}

	return cal.Serialize()
}

func newVEvent(cal *ical.Calendar, uid string, ev model.RawEvent, now time.Time) *ical.VEvent {
	ve := cal.AddEvent(uid)
	ve.SetDtStampTime(now)
	title := ev.Title
	if title == "" {
		title = "(no title)"
	}
	ve.SetSummary(title)
	if ev.Location != "" {
		ve.SetLocation(ev.Location)
	}
	if ev.Description != "" {
		ve.SetDescription(ev.Description)
	}
	if rule := ruleLine(ev.RRule); rule != "" {
		ve.AddRrule(rule)
	}
	return ve
}

// ruleLine extracts the RRULE value from either a bare rule or a
// multi-line DTSTART/RRULE block.
func ruleLine(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(strings.ToUpper(line), "RRULE:") {
			return line[len("RRULE:"):]
		}
	}
	if strings.Contains(text, "\n") || strings.HasPrefix(strings.ToUpper(text), "DTSTART") {
		return ""
	}
	return text
}

func parseFeedTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02T15:04", feedDate} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New("unsupported time value " + s)
}

func prefix(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) < n {
		return s
	}
	return s[:n]
}
