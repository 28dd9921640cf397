package geo

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"calfeed/internal/storage"
)

// DefaultMaxAge is how long a cached geocode stays valid.
const DefaultMaxAge = 30 * 24 * time.Hour

const keyPrefix = "geo:"

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// cacheEntry is the persisted value: {lat, lon, ts} with ts in epoch ms.
type cacheEntry struct {
	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`
	TS  int64    `json:"ts"`
}

// Cache stores geocoding results keyed by trimmed location text.
type Cache struct {
	store  storage.Store
	maxAge time.Duration
	now    func() time.Time
}

// NewCache wraps a store. maxAge <= 0 uses DefaultMaxAge.
func NewCache(store storage.Store, maxAge time.Duration) *Cache {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Cache{store: store, maxAge: maxAge, now: time.Now}
}

// CacheKey returns the store key for a location text.
func CacheKey(location string) string {
	return keyPrefix + strings.TrimSpace(location)
}

// Lookup returns a fresh cached point. Unreadable, expired or partial
// entries are reported as absent. An entry without ts never expires.
func (c *Cache) Lookup(ctx context.Context, location string) (Point, bool) {
	if c == nil || c.store == nil || strings.TrimSpace(location) == "" {
		return Point{}, false
	}

	raw, ok, err := c.store.Get(ctx, CacheKey(location))
	if err != nil || !ok {
		return Point{}, false
	}

	var e cacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Point{}, false
	}
	if e.Lat == nil || e.Lon == nil {
		return Point{}, false
	}
	if e.TS != 0 && c.now().Sub(time.UnixMilli(e.TS)) > c.maxAge {
		return Point{}, false
	}
	return Point{Lat: *e.Lat, Lon: *e.Lon}, true
}

// Save records a point for a location, overwriting any previous entry.
func (c *Cache) Save(ctx context.Context, location string, p Point) error {
	if c == nil || c.store == nil || strings.TrimSpace(location) == "" {
		return nil
	}
	data, err := json.Marshal(cacheEntry{Lat: &p.Lat, Lon: &p.Lon, TS: c.now().UnixMilli()})
	if err != nil {
		return err
	}
	return c.store.Put(ctx, CacheKey(location), data)
}
