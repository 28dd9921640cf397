package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	appLog "calfeed/internal/log"
	"calfeed/internal/model"
)

// Feed formats.
const (
	FormatJSON = "json"
	FormatICS  = "ics"
)

// maxFeedBytes bounds how much of a feed body is read.
const maxFeedBytes = 32 << 20

// Source is one configured feed.
type Source struct {
	// ID is an internal identifier used for logging.
	ID string
	// URL is an http(s) URL, a file:// URL or a plain filesystem path.
	URL string
	// Format is FormatJSON (default) or FormatICS.
	Format string
}

// Loader fetches feeds. Every failure degrades to "no events"; callers
// never see loader errors.
type Loader struct {
	client *http.Client
}

// NewLoader creates a Loader. A nil client uses a plain http.Client with
// the platform default (no) timeout.
func NewLoader(client *http.Client) *Loader {
	if client == nil {
		client = &http.Client{}
	}
	return &Loader{client: client}
}

// LoadAll loads every source in order and concatenates the results.
func (l *Loader) LoadAll(ctx context.Context, sources []Source) []model.RawEvent {
	out := make([]model.RawEvent, 0)
	for _, src := range sources {
		out = append(out, l.Load(ctx, src)...)
	}
	return out
}

// Load fetches and decodes a single source.
func (l *Loader) Load(ctx context.Context, src Source) []model.RawEvent {
	body, err := l.fetch(ctx, src)
	if err != nil {
		appLog.Error("feed fetch failed", err, "id", src.ID, "url", redactURL(src.URL))
		return []model.RawEvent{}
	}

	var (
		evs     []model.RawEvent
		skipped int
	)
	switch strings.ToLower(src.Format) {
	case FormatICS:
		evs, skipped, err = ParseICS(body)
	case "", FormatJSON:
		evs, skipped, err = DecodeJSON(body)
	default:
		err = fmt.Errorf("unknown feed format %q", src.Format)
	}
	if err != nil {
		appLog.Error("feed decode failed", err, "id", src.ID, "url", redactURL(src.URL))
		return []model.RawEvent{}
	}
	if skipped > 0 {
		appLog.Warn("feed records skipped", "id", src.ID, "skipped", skipped)
	}

	appLog.Info("feed loaded", "id", src.ID, "url", redactURL(src.URL), "event_count", len(evs))
	return evs
}

func (l *Loader) fetch(ctx context.Context, src Source) ([]byte, error) {
	if src.URL == "" {
		return nil, errors.New("source URL is empty")
	}

	u, err := url.Parse(src.URL)
	if err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		return l.fetchHTTP(ctx, src.URL)
	}
	path := src.URL
	if err == nil && u.Scheme == "file" {
		path = u.Path
	}
	return readFileLimited(path)
}

func (l *Loader) fetchHTTP(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	// Always fetch a fresh copy.
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Accept", "application/json, text/calendar;q=0.9, */*;q=0.1")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status: %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
}

func readFileLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, maxFeedBytes))
}

// DecodeJSON decodes a JSON feed. The top-level value must be an array;
// array elements that do not decode as events are skipped and counted.
func DecodeJSON(body []byte) ([]model.RawEvent, int, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || body[0] != '[' {
		return nil, 0, errors.New("feed is not a JSON array")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, 0, fmt.Errorf("decode feed: %w", err)
	}

	evs := make([]model.RawEvent, 0, len(items))
	skipped := 0
	for _, item := range items {
		var ev model.RawEvent
		if bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
			skipped++
			continue
		}
		if err := json.Unmarshal(item, &ev); err != nil {
			skipped++
			continue
		}
		evs = append(evs, ev)
	}
	return evs, skipped, nil
}

// redactURL hides paths and query strings of feed URLs in logs. Local
// paths are logged as-is.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	if u.Path == "" && u.RawQuery == "" {
		return u.Scheme + "://" + u.Host
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
