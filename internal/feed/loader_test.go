package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func serve(t *testing.T, status int, body string) (*httptest.Server, func() http.Header) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = r.Header.Clone()
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, func() http.Header {
		mu.Lock()
		defer mu.Unlock()
		return seen
	}
}

func TestLoad_JSONFeed(t *testing.T) {
	srv, seen := serve(t, http.StatusOK, `[
		{"id": 1, "title": "Standup", "start": "2024-06-03T09:00:00Z", "end": "2024-06-03T09:15:00Z"},
		{"id": "2", "allDay": true, "start": "2024-06-10", "end": "2024-06-10"},
		{"id": 3, "allDay": "yes"},
		null
	]`)

	evs := NewLoader(srv.Client()).Load(context.Background(), Source{ID: "main", URL: srv.URL + "/data/events-all.json"})
	if len(evs) != 2 {
		t.Fatalf("got %d events, want 2: %+v", len(evs), evs)
	}
	if evs[0].Title != "Standup" || evs[1].ID.String() != "2" || !evs[1].AllDay {
		t.Fatalf("decoded wrong: %+v", evs)
	}
	if got := seen().Get("Cache-Control"); !strings.Contains(got, "no-cache") {
		t.Errorf("Cache-Control = %q, want cache bypass", got)
	}
}

func TestLoad_FailuresAreEmpty(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `[]`},
		{name: "not found", status: http.StatusNotFound, body: `[{"id":1}]`},
		{name: "invalid json", status: http.StatusOK, body: `[{"id":`},
		{name: "object instead of array", status: http.StatusOK, body: `{"events": []}`},
		{name: "empty body", status: http.StatusOK, body: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := serve(t, tt.status, tt.body)
			evs := NewLoader(srv.Client()).Load(context.Background(), Source{ID: "x", URL: srv.URL})
			if evs == nil || len(evs) != 0 {
				t.Fatalf("want empty non-nil list, got %#v", evs)
			}
		})
	}
}

func TestLoad_NetworkError(t *testing.T) {
	srv, _ := serve(t, http.StatusOK, `[]`)
	url := srv.URL
	srv.Close()

	evs := NewLoader(nil).Load(context.Background(), Source{ID: "gone", URL: url})
	if len(evs) != 0 {
		t.Fatalf("want empty list, got %+v", evs)
	}
}

func TestLoad_LocalFileAndICS(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "events.json")
	if err := os.WriteFile(jsonPath, []byte(`[{"id": 7, "title": "Local"}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	icsPath := filepath.Join(dir, "events.ics")
	if err := os.WriteFile(icsPath, []byte(sampleICS), 0o600); err != nil {
		t.Fatal(err)
	}

	l := NewLoader(nil)
	evs := l.LoadAll(context.Background(), []Source{
		{ID: "json", URL: jsonPath},
		{ID: "ics", URL: "file://" + icsPath, Format: FormatICS},
		{ID: "missing", URL: filepath.Join(dir, "nope.json")},
	})
	if len(evs) != 3 {
		t.Fatalf("got %d events, want 3: %+v", len(evs), evs)
	}
	if evs[0].Title != "Local" {
		t.Errorf("first event = %+v", evs[0])
	}
}

func TestDecodeJSON_CountsSkipped(t *testing.T) {
	evs, skipped, err := DecodeJSON([]byte(`[{"id":1}, 5, {"title": 3}]`))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if len(evs) != 1 || skipped != 2 {
		t.Fatalf("got %d events, %d skipped", len(evs), skipped)
	}
}

func TestSnapshot_LoadsOnceAndSorts(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`[
			{"id": 5, "start": "2024-06-05T10:00:00Z"},
			{"id": 2, "start": "2024-06-05T10:00:00Z"},
			{"id": 9, "start": "2024-06-01T10:00:00Z"}
		]`))
	}))
	defer srv.Close()

	snap := NewSnapshot(NewLoader(srv.Client()), []Source{{ID: "main", URL: srv.URL}})
	if !snap.LoadedAt().IsZero() {
		t.Fatal("fresh snapshot reports a load time")
	}

	first := snap.Events(context.Background())
	second := snap.Events(context.Background())
	if hits.Load() != 1 {
		t.Fatalf("feed fetched %d times, want 1", hits.Load())
	}
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("unexpected sizes %d %d", len(first), len(second))
	}
	ids := first[0].ID.String() + first[1].ID.String() + first[2].ID.String()
	if ids != "925" {
		t.Fatalf("order = %s, want 925", ids)
	}

	first[0].Title = "mutated"
	if snap.Events(context.Background())[0].Title == "mutated" {
		t.Fatal("Events must return a copy")
	}

	snap.Refresh(context.Background())
	if hits.Load() != 2 {
		t.Fatalf("refresh did not refetch, hits=%d", hits.Load())
	}
}

func TestRedactURL(t *testing.T) {
	tests := map[string]string{
		"https://example.com/private/feed.json?token=abc": "https://example.com/...(redacted)",
		"https://example.com":                             "https://example.com",
		"/var/lib/calfeed/events.json":                    "/var/lib/calfeed/events.json",
	}
	for in, want := range tests {
		if got := redactURL(in); got != want {
			t.Errorf("redactURL(%q) = %q, want %q", in, got, want)
		}
	}
}
