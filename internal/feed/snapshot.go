package feed

import (
	"context"
	"slices"
	"sync"
	"time"

	"calfeed/internal/events"
	"calfeed/internal/model"
)

// Snapshot keeps the most recently loaded feed in memory. Refreshes are
// serialized so only one fetch is outstanding at a time.
type Snapshot struct {
	loader  *Loader
	sources []Source

	refreshMu sync.Mutex

	mu       sync.RWMutex
	events   []model.RawEvent
	loadedAt time.Time
}

// NewSnapshot creates an empty snapshot over the given sources.
func NewSnapshot(loader *Loader, sources []Source) *Snapshot {
	return &Snapshot{
		loader:  loader,
		sources: slices.Clone(sources),
	}
}

// Refresh reloads all sources and replaces the snapshot. The feed is kept
// ordered by start, then numeric id.
func (s *Snapshot) Refresh(ctx context.Context) []model.RawEvent {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	evs := s.loader.LoadAll(ctx, s.sources)
	events.SortRaw(evs)

	s.mu.Lock()
	s.events = evs
	s.loadedAt = time.Now()
	s.mu.Unlock()

	return slices.Clone(evs)
}

// Events returns a copy of the current feed, loading it first if it was
// never loaded.
func (s *Snapshot) Events(ctx context.Context) []model.RawEvent {
	s.mu.RLock()
	loaded := !s.loadedAt.IsZero()
	evs := slices.Clone(s.events)
	s.mu.RUnlock()

	if loaded {
		return evs
	}
	return s.Refresh(ctx)
}

// LoadedAt reports when the snapshot was last refreshed (zero if never).
func (s *Snapshot) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}
