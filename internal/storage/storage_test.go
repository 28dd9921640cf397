package storage_test

import (
	"context"
	"path/filepath"
	"testing"

	"calfeed/internal/storage"
	"calfeed/internal/storage/memory"
	"calfeed/internal/storage/sqlite"
)

func exerciseStore(t *testing.T, s storage.Store) {
	t.Helper()
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "geo:nowhere"); ok || err != nil {
		t.Fatalf("absent key: ok=%v err=%v", ok, err)
	}

	if err := s.Put(ctx, "geo:Berlin", []byte(`{"lat":1}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put(ctx, "geo:Berlin", []byte(`{"lat":2}`)); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}

	v, ok, err := s.Get(ctx, "geo:Berlin")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if string(v) != `{"lat":2}` {
		t.Fatalf("last write should win, got %s", v)
	}
}

func TestMemoryStore(t *testing.T) {
	s := memory.NewStore()
	exerciseStore(t, s)
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "geo.db")

	s, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	exerciseStore(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Data and schema survive a reopen.
	s, err = sqlite.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	v, ok, err := s.Get(context.Background(), "geo:Berlin")
	if err != nil || !ok || string(v) != `{"lat":2}` {
		t.Fatalf("after reopen: %s ok=%v err=%v", v, ok, err)
	}
}
