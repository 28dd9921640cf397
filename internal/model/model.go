package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// EventID is the opaque feed identifier. Feeds carry it either as a JSON
// number or a JSON string; the raw text is kept so it round-trips.
type EventID struct {
	raw   string
	valid bool
}

// NewEventID wraps an identifier given as text.
func NewEventID(s string) EventID {
	return EventID{raw: s, valid: true}
}

// Valid reports whether the event carried an id at all.
func (id EventID) Valid() bool { return id.valid }

func (id EventID) String() string { return id.raw }

// Numeric returns the id as a number for tie-breaking. Absent and
// non-numeric ids are 0.
func (id EventID) Numeric() float64 {
	if !id.valid {
		return 0
	}
	s := strings.TrimSpace(id.raw)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return n
}

func (id *EventID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = EventID{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = NewEventID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = NewEventID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers and everything else as strings.
func (id EventID) MarshalJSON() ([]byte, error) {
	if !id.valid {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseFloat(id.raw, 64); err == nil && json.Valid([]byte(id.raw)) {
		return []byte(id.raw), nil
	}
	return json.Marshal(id.raw)
}

// RawEvent is one record of the JSON feed. Timestamps are kept as the feed
// sent them (ISO-8601 date or date-time); parsing happens where needed.
type RawEvent struct {
	ID          EventID `json:"id"`
	Title       string  `json:"title,omitempty"`
	Start       string  `json:"start,omitempty"`
	End         string  `json:"end,omitempty"`
	AllDay      bool    `json:"allDay,omitempty"`
	Location    string  `json:"location,omitempty"`
	Description string  `json:"description,omitempty"`
	RRule       string  `json:"rrule,omitempty"`
}

// Recurring reports whether the event is a repeating series.
func (e RawEvent) Recurring() bool {
	return strings.TrimSpace(e.RRule) != ""
}

// ExtendedProps carries the original feed record so a click in the widget
// can be mapped back to it.
type ExtendedProps struct {
	Original RawEvent `json:"original"`
}

// DisplayEvent is a RawEvent reshaped for the calendar widget. Exactly one
// of the temporal shapes is populated: Start/End (date-time or, for all-day
// events, calendar dates with an exclusive End) or RRule/DTStart.
type DisplayEvent struct {
	ID            string        `json:"id,omitempty"`
	Title         string        `json:"title"`
	AllDay        bool          `json:"allDay"`
	Start         string        `json:"start,omitempty"`
	End           string        `json:"end,omitempty"`
	RRule         string        `json:"rrule,omitempty"`
	DTStart       string        `json:"dtstart,omitempty"`
	ExtendedProps ExtendedProps `json:"extendedProps"`
}

// UpcomingEntry is a feed record on the upcoming list. For a recurring
// event Start holds the materialized next occurrence and NextOccurrence is
// set; RRule stays for display and must not be expanded again.
type UpcomingEntry struct {
	RawEvent
	NextOccurrence bool `json:"nextOccurrence,omitempty"`
}

// Occurrence is a single concrete instance of an event inside a window,
// after recurrence expansion and timezone normalization.
type Occurrence struct {
	ID EventID `json:"id"`

	// InstanceKey uniquely identifies one occurrence of a recurring event.
	InstanceKey string `json:"instance_key"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`

	AllDay bool `json:"all_day"`

	// Start / End are in the configured display timezone.
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
