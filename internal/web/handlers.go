package web

import (
	"net/http"
	"strings"
	"time"

	"calfeed/internal/events"
	"calfeed/internal/feed"
	"calfeed/internal/geo"
	appLog "calfeed/internal/log"
	"calfeed/internal/model"
)

// handleEvents returns the whole feed shaped for the calendar widget.
//
// GET /api/events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r) {
		return
	}
	evs := s.events.Events(r.Context())
	writeJSON(w, http.StatusOK, events.NormalizeAll(evs, s.rec.Available()))
}

// toolbar mirrors the widget's headerToolbar option.
type toolbar struct {
	Left   string `json:"left"`
	Center string `json:"center"`
	Right  string `json:"right"`
}

// calendarResponse bundles the widget options with the display events.
type calendarResponse struct {
	InitialView   string               `json:"initialView"`
	Height        any                  `json:"height"`
	HeaderToolbar toolbar              `json:"headerToolbar"`
	TimeZone      string               `json:"timeZone"`
	Mobile        bool                 `json:"mobile"`
	Events        []model.DisplayEvent `json:"events"`
}

// handleCalendar returns the widget configuration for the requesting client.
// Phones get a list view when the mobile view is enabled.
//
// GET /api/calendar
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r) {
		return
	}

	resp := calendarResponse{
		InitialView: "timeGridWeek",
		Height:      700,
		HeaderToolbar: toolbar{
			Left:   "prev,next today",
			Center: "title",
			Right:  "dayGridMonth,timeGridWeek,timeGridDay",
		},
		TimeZone: s.loc.String(),
	}
	if s.cfg.Features.MobileView && isMobileAgent(r.UserAgent()) {
		resp.Mobile = true
		resp.InitialView = "listWeek"
		resp.Height = "auto"
		resp.HeaderToolbar = toolbar{Left: "prev,next", Center: "title", Right: "today"}
	}

	evs := s.events.Events(r.Context())
	resp.Events = events.NormalizeAll(evs, s.rec.Available())
	writeJSON(w, http.StatusOK, resp)
}

// upcomingResponse is the JSON response shape for /api/upcoming.
type upcomingResponse struct {
	Upcoming    []model.UpcomingEntry `json:"upcoming"`
	Total       int                   `json:"total"`
	GeneratedAt time.Time             `json:"generated_at"`
}

// handleUpcoming returns events that have not finished yet, recurring
// events at their next occurrence.
//
// GET /api/upcoming?limit=50&all=1
//   - limit: display cap (default from config)
//   - all:   1 disables the cap
func (s *Server) handleUpcoming(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r) {
		return
	}

	q := r.URL.Query()
	limit := parseIntDefault(q.Get("limit"), s.cfg.UpcomingLimit)
	if limit <= 0 {
		limit = s.cfg.UpcomingLimit
	}
	if q.Get("all") == "1" || strings.EqualFold(q.Get("all"), "true") {
		limit = 0
	}

	now := s.now().In(s.loc)
	evs := s.events.Events(r.Context())
	list := events.SelectUpcoming(evs, now, s.loc, s.rec)

	writeJSON(w, http.StatusOK, upcomingResponse{
		Upcoming:    events.Truncate(list, limit),
		Total:       len(list),
		GeneratedAt: now,
	})
}

// occurrencesResponse is the JSON response shape for /api/occurrences.
type occurrencesResponse struct {
	Occurrences     []model.Occurrence `json:"occurrences"`
	TruncatedIDs    []string           `json:"truncated_ids,omitempty"`
	RangeStart      time.Time          `json:"range_start"`
	RangeEnd        time.Time          `json:"range_end"`
	DisplayTimeZone string             `json:"display_timezone"`
}

// handleOccurrences returns concrete occurrences within a window around now.
//
// GET /api/occurrences?days=7&backfill=1
//   - days:     days ahead to include (default 7)
//   - backfill: days back to include (default 1)
func (s *Server) handleOccurrences(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r) {
		return
	}

	q := r.URL.Query()
	days := parseIntDefault(q.Get("days"), 7)
	if days <= 0 {
		days = 7
	}
	backfill := parseIntDefault(q.Get("backfill"), 1)
	if backfill < 0 {
		backfill = 0
	}

	now := s.now().In(s.loc)
	rangeStart := now.AddDate(0, 0, -backfill)
	rangeEnd := now.AddDate(0, 0, days)

	appLog.Debug("api occurrences request",
		"days", days,
		"backfill", backfill,
		"range_start", rangeStart.Format(time.RFC3339),
		"range_end", rangeEnd.Format(time.RFC3339),
	)

	res, err := events.ExpandOccurrences(s.events.Events(r.Context()), s.rec, events.ExpandConfig{
		DisplayLocation: s.loc,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
	})
	if err != nil {
		appLog.Error("expand occurrences failed", err)
		writeError(w, http.StatusInternalServerError, "failed to expand events")
		return
	}
	if len(res.TruncatedIDs) > 0 {
		appLog.Warn("recurrence expansion truncated", "ids", strings.Join(res.TruncatedIDs, ","))
	}

	occ := res.Occurrences
	if occ == nil {
		occ = []model.Occurrence{}
	}
	writeJSON(w, http.StatusOK, occurrencesResponse{
		Occurrences:     occ,
		TruncatedIDs:    res.TruncatedIDs,
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
		DisplayTimeZone: s.loc.String(),
	})
}

// handleEventsICS exports the feed as an iCalendar file for subscription.
//
// GET /api/events.ics
func (s *Server) handleEventsICS(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r) {
		return
	}
	body := feed.ExportICS(s.events.Events(r.Context()), s.loc, s.now())

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="events.ics"`)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// locationResponse is what the event detail view shows below the location.
type locationResponse struct {
	geo.MapView
	Platform     geo.Platform `json:"platform,omitempty"`
	PlatformLink string       `json:"platform_link,omitempty"`
}

// handleLocation places an event location on a map.
//
// GET /api/location?q=Town+Hall
func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	if !methodAllowed(w, r) {
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing q")
		return
	}

	var resp locationResponse
	if s.cfg.Features.MapEmbed && s.resolver != nil {
		resp.MapView = s.resolver.Resolve(r.Context(), query)
	} else {
		resp.MapView = geo.MapView{Query: query, SearchURL: geo.SearchURL(query)}
	}
	if s.cfg.Features.PlatformLinks {
		resp.Platform = platformFor(r.UserAgent())
		resp.PlatformLink = geo.PlatformLink(resp.Platform, query)
	}
	writeJSON(w, http.StatusOK, resp)
}

func isMobileAgent(ua string) bool {
	for _, marker := range []string{"Mobi", "Android", "iPhone", "iPad", "iPod"} {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}

// platformFor picks Apple Maps for Apple devices and Google Maps otherwise.
func platformFor(ua string) geo.Platform {
	for _, marker := range []string{"iPhone", "iPad", "iPod", "Macintosh"} {
		if strings.Contains(ua, marker) {
			return geo.PlatformApple
		}
	}
	return geo.PlatformGoogle
}
