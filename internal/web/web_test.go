package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"calfeed/internal/config"
	"calfeed/internal/feed"
	"calfeed/internal/geo"
	"calfeed/internal/model"
	"calfeed/internal/recurrence"
	"calfeed/internal/storage/memory"
)

const testFeed = `[
  {"id": 4, "title": "Later", "start": "2024-06-20T09:00:00Z", "end": "2024-06-20T10:00:00Z"},
  {"id": 1, "title": "Offsite", "start": "2024-06-05", "end": "2024-06-07", "allDay": true, "location": "Town Hall"},
  {"id": 2, "title": "Past", "start": "2024-06-01T09:00:00Z", "end": "2024-06-01T10:00:00Z"},
  {"id": 3, "title": "Standup", "start": "2024-06-03T10:00:00Z", "end": "2024-06-03T10:15:00Z", "rrule": "FREQ=WEEKLY;BYDAY=MO"}
]`

type staticSource struct {
	evs []model.RawEvent
}

func (s staticSource) Events(context.Context) []model.RawEvent { return s.evs }
func (s staticSource) LoadedAt() time.Time                      { return time.Time{} }

type fixedGeocoder struct{ p geo.Point }

func (g fixedGeocoder) Geocode(context.Context, string) (geo.Point, bool, error) {
	return g.p, true, nil
}

func newTestServer(t *testing.T, mutate func(*config.Config, *Deps)) *Server {
	t.Helper()

	evs, skipped, err := feed.DecodeJSON([]byte(testFeed))
	if err != nil || skipped != 0 {
		t.Fatalf("DecodeJSON: skipped=%d err=%v", skipped, err)
	}

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	deps := Deps{
		Events:     staticSource{evs: evs},
		Recurrence: recurrence.New(recurrence.NewRRuleEngine()),
		Resolver:   geo.NewResolver(geo.NewCache(memory.NewStore(), 0), fixedGeocoder{p: geo.Point{Lat: 52.52, Lon: 13.405}}),
		Now:        func() time.Time { return time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC) },
	}
	if mutate != nil {
		mutate(cfg, &deps)
	}
	return NewServer(cfg, deps)
}

func get(t *testing.T, h http.Handler, target, ua string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body: %v\n%s", err, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(t, nil).Handler(), "/health", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("health = %d %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestRequestIDIsKept(t *testing.T) {
	h := newTestServer(t, nil).Handler()
	const id = "0b9f2a6e-3c1d-4a57-9d1e-5f6a7b8c9d0e"
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", id)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != id {
		t.Fatalf("X-Request-ID = %q, want %q", got, id)
	}
}

func TestEvents(t *testing.T) {
	var got []model.DisplayEvent
	decode(t, get(t, newTestServer(t, nil).Handler(), "/api/events", ""), &got)

	if len(got) != 4 {
		t.Fatalf("got %d events, want 4", len(got))
	}
	byTitle := map[string]model.DisplayEvent{}
	for _, d := range got {
		byTitle[d.Title] = d
	}
	if off := byTitle["Offsite"]; off.Start != "2024-06-05" || off.End != "2024-06-08" {
		t.Errorf("offsite = %+v", off)
	}
	if su := byTitle["Standup"]; su.RRule != "FREQ=WEEKLY;BYDAY=MO" || su.DTStart != "2024-06-03T10:00:00Z" || su.Start != "" {
		t.Errorf("standup = %+v", su)
	}
	if byTitle["Later"].ExtendedProps.Original.Title != "Later" {
		t.Error("original record must be attached")
	}
}

func TestEvents_WithoutRecurrence(t *testing.T) {
	s := newTestServer(t, func(_ *config.Config, d *Deps) { d.Recurrence = recurrence.Disabled() })

	var got []model.DisplayEvent
	decode(t, get(t, s.Handler(), "/api/events", ""), &got)
	for _, d := range got {
		if d.Title == "Standup" && (d.RRule != "" || d.Start != "2024-06-03T10:00:00Z") {
			t.Errorf("standup without engine = %+v", d)
		}
	}
}

func TestCalendar_MobileView(t *testing.T) {
	const iphone = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148"

	var desktop calendarResponse
	decode(t, get(t, newTestServer(t, nil).Handler(), "/api/calendar", iphone), &desktop)
	if desktop.InitialView != "timeGridWeek" || desktop.Mobile {
		t.Errorf("mobile view disabled: got %q mobile=%v", desktop.InitialView, desktop.Mobile)
	}
	if len(desktop.Events) != 4 {
		t.Errorf("events = %d", len(desktop.Events))
	}

	s := newTestServer(t, func(c *config.Config, _ *Deps) { c.Features.MobileView = true })
	var mobile calendarResponse
	decode(t, get(t, s.Handler(), "/api/calendar", iphone), &mobile)
	if mobile.InitialView != "listWeek" || !mobile.Mobile || mobile.Height != "auto" {
		t.Errorf("mobile = %+v", mobile)
	}

	var wide calendarResponse
	decode(t, get(t, s.Handler(), "/api/calendar", "Mozilla/5.0 (X11; Linux x86_64)"), &wide)
	if wide.InitialView != "timeGridWeek" {
		t.Errorf("desktop agent got %q", wide.InitialView)
	}
}

type upcomingBody struct {
	Upcoming []struct {
		Title          string `json:"title"`
		Start          string `json:"start"`
		NextOccurrence bool   `json:"nextOccurrence"`
	} `json:"upcoming"`
	Total int `json:"total"`
}

func TestUpcoming(t *testing.T) {
	h := newTestServer(t, nil).Handler()

	var body upcomingBody
	decode(t, get(t, h, "/api/upcoming", ""), &body)

	var titles []string
	for _, u := range body.Upcoming {
		titles = append(titles, u.Title)
	}
	if strings.Join(titles, ",") != "Offsite,Standup,Later" || body.Total != 3 {
		t.Fatalf("upcoming = %v (total %d)", titles, body.Total)
	}
	su := body.Upcoming[1]
	if su.Start != "2024-06-10T10:00:00Z" || !su.NextOccurrence {
		t.Errorf("standup entry = %+v", su)
	}
	if body.Upcoming[0].NextOccurrence {
		t.Error("single events must not be flagged")
	}

	decode(t, get(t, h, "/api/upcoming?limit=2", ""), &body)
	if len(body.Upcoming) != 2 || body.Total != 3 {
		t.Errorf("limit=2: %d entries, total %d", len(body.Upcoming), body.Total)
	}
}

func TestUpcoming_Cap(t *testing.T) {
	s := newTestServer(t, func(c *config.Config, _ *Deps) { c.UpcomingLimit = 1 })
	h := s.Handler()

	var body upcomingBody
	decode(t, get(t, h, "/api/upcoming", ""), &body)
	if len(body.Upcoming) != 1 {
		t.Errorf("configured cap: %d entries", len(body.Upcoming))
	}
	decode(t, get(t, h, "/api/upcoming?all=1", ""), &body)
	if len(body.Upcoming) != 3 {
		t.Errorf("all=1: %d entries", len(body.Upcoming))
	}
}

func TestOccurrences(t *testing.T) {
	var body occurrencesResponse
	decode(t, get(t, newTestServer(t, nil).Handler(), "/api/occurrences?days=7&backfill=1", ""), &body)

	if len(body.Occurrences) != 2 {
		t.Fatalf("got %d occurrences: %+v", len(body.Occurrences), body.Occurrences)
	}
	off, su := body.Occurrences[0], body.Occurrences[1]
	if off.Title != "Offsite" || !off.End.Equal(time.Date(2024, 6, 8, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("offsite = %+v", off)
	}
	if su.Title != "Standup" || !su.Start.Equal(time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("standup = %+v", su)
	}
	if body.DisplayTimeZone != "UTC" {
		t.Errorf("timezone = %q", body.DisplayTimeZone)
	}
}

func TestEventsICS(t *testing.T) {
	rec := get(t, newTestServer(t, nil).Handler(), "/api/events.ics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/calendar") {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"BEGIN:VCALENDAR", "SUMMARY:Offsite", "RRULE:FREQ=WEEKLY;BYDAY=MO"} {
		if !strings.Contains(body, want) {
			t.Errorf("ics missing %q", want)
		}
	}
}

func TestLocation(t *testing.T) {
	const mac = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0)"
	s := newTestServer(t, func(c *config.Config, _ *Deps) { c.Features.PlatformLinks = true })
	h := s.Handler()

	var body locationResponse
	decode(t, get(t, h, "/api/location?q=Town+Hall", mac), &body)
	if !body.Found || body.EmbedURL == "" {
		t.Errorf("expected embed: %+v", body)
	}
	if body.Platform != geo.PlatformApple || body.PlatformLink != "https://maps.apple.com/?q=Town+Hall" {
		t.Errorf("platform = %q %q", body.Platform, body.PlatformLink)
	}

	body = locationResponse{}
	decode(t, get(t, h, "/api/location?q=Town+Hall", "Mozilla/5.0 (Linux; Android 14)"), &body)
	if body.Platform != geo.PlatformGoogle {
		t.Errorf("android platform = %q", body.Platform)
	}

	if rec := get(t, h, "/api/location", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing q: status %d", rec.Code)
	}
}

func TestLocation_MapEmbedDisabled(t *testing.T) {
	s := newTestServer(t, func(c *config.Config, _ *Deps) { c.Features.MapEmbed = false })

	var body locationResponse
	decode(t, get(t, s.Handler(), "/api/location?q=Town+Hall", ""), &body)
	if body.Found || body.EmbedURL != "" || body.SearchURL == "" {
		t.Errorf("expected search link only: %+v", body)
	}
	if body.PlatformLink != "" {
		t.Error("platform links are off by default")
	}
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	for name, pw := range map[string]string{"plain": "s3cret", "bcrypt": string(hash)} {
		t.Run(name, func(t *testing.T) {
			s := newTestServer(t, func(c *config.Config, _ *Deps) {
				c.BasicAuth = &config.BasicAuthConfig{Username: "admin", Password: pw}
			})
			h := s.Handler()

			if rec := get(t, h, "/health", ""); rec.Code != http.StatusOK {
				t.Errorf("/health must stay open, got %d", rec.Code)
			}
			if rec := get(t, h, "/api/events", ""); rec.Code != http.StatusUnauthorized {
				t.Errorf("no credentials: %d", rec.Code)
			}

			for user, want := range map[string]int{"admin": http.StatusOK, "guest": http.StatusUnauthorized} {
				req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
				req.SetBasicAuth(user, "s3cret")
				rec := httptest.NewRecorder()
				h.ServeHTTP(rec, req)
				if rec.Code != want {
					t.Errorf("user %s: status %d, want %d", user, rec.Code, want)
				}
			}
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/events", nil)
	rec := httptest.NewRecorder()
	newTestServer(t, nil).Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", rec.Code)
	}
}
