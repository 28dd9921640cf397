package geo

import (
	"context"
	"strings"

	appLog "calfeed/internal/log"
)

// MapView is what the detail view needs to show a location: an embed when
// the place was found, otherwise only the search link.
type MapView struct {
	Query     string  `json:"query"`
	Found     bool    `json:"found"`
	Cached    bool    `json:"cached,omitempty"`
	Lat       float64 `json:"lat,omitempty"`
	Lon       float64 `json:"lon,omitempty"`
	EmbedURL  string  `json:"embed_url,omitempty"`
	ViewURL   string  `json:"view_url,omitempty"`
	SearchURL string  `json:"search_url,omitempty"`
}

// Resolver combines the cache and a geocoder. Lookup failures fall back to
// the search link; nothing is retried.
type Resolver struct {
	cache    *Cache
	geocoder Geocoder
}

// NewResolver creates a Resolver. A nil geocoder only serves cache hits.
func NewResolver(cache *Cache, geocoder Geocoder) *Resolver {
	return &Resolver{cache: cache, geocoder: geocoder}
}

// Resolve places a location text. Blank text yields an empty view.
func (r *Resolver) Resolve(ctx context.Context, location string) MapView {
	query := strings.TrimSpace(location)
	if query == "" {
		return MapView{}
	}

	if p, ok := r.cache.Lookup(ctx, query); ok {
		v := found(query, p)
		v.Cached = true
		return v
	}

	if r.geocoder == nil {
		return fallback(query)
	}

	p, ok, err := r.geocoder.Geocode(ctx, query)
	if err != nil {
		appLog.Warn("geocode failed", "query", query, "err", err)
		return fallback(query)
	}
	if !ok {
		return fallback(query)
	}

	if err := r.cache.Save(ctx, query, p); err != nil {
		appLog.Error("geocode cache save failed", err, "query", query)
	}
	return found(query, p)
}

func found(query string, p Point) MapView {
	return MapView{
		Query:     query,
		Found:     true,
		Lat:       p.Lat,
		Lon:       p.Lon,
		EmbedURL:  EmbedURL(p),
		ViewURL:   ViewURL(p),
		SearchURL: SearchURL(query),
	}
}

func fallback(query string) MapView {
	return MapView{Query: query, SearchURL: SearchURL(query)}
}
