package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultEndpoint is the public Nominatim search endpoint.
const DefaultEndpoint = "https://nominatim.openstreetmap.org/search"

// Geocoder resolves free-form place text to at most one point.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (Point, bool, error)
}

// Nominatim is a Geocoder backed by an OpenStreetMap Nominatim server.
type Nominatim struct {
	client    *http.Client
	endpoint  string
	userAgent string
}

// NewNominatim creates a client. Nominatim's usage policy requires an
// identifying User-Agent.
func NewNominatim(client *http.Client, endpoint, userAgent string) *Nominatim {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if userAgent == "" {
		userAgent = "calfeed"
	}
	return &Nominatim{client: client, endpoint: endpoint, userAgent: userAgent}
}

type nominatimPlace struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

func (n *Nominatim) Geocode(ctx context.Context, query string) (Point, bool, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Point{}, false, nil
	}

	params := url.Values{}
	params.Set("format", "jsonv2")
	params.Set("q", query)
	params.Set("limit", "1")
	params.Set("addressdetails", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return Point{}, false, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := n.client.Do(req)
	if err != nil {
		return Point{}, false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Point{}, false, fmt.Errorf("geocode: unexpected status %s", resp.Status)
	}

	var places []nominatimPlace
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&places); err != nil {
		return Point{}, false, fmt.Errorf("geocode: decode: %w", err)
	}
	if len(places) == 0 || places[0].Lat == "" || places[0].Lon == "" {
		return Point{}, false, nil
	}

	lat, err := strconv.ParseFloat(places[0].Lat, 64)
	if err != nil {
		return Point{}, false, fmt.Errorf("geocode: lat: %w", err)
	}
	lon, err := strconv.ParseFloat(places[0].Lon, 64)
	if err != nil {
		return Point{}, false, fmt.Errorf("geocode: lon: %w", err)
	}
	return Point{Lat: lat, Lon: lon}, true, nil
}
