package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"forge/internal/config"
)

func TestOpenSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forge.db")
	s, err := Open(context.Background(), config.StoreConfig{Driver: config.StoreSQLite, SQLitePath: path}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	n, err := s.PruneIdempotencyKeys(context.Background(), time.Now())
	if err != nil || n != 0 {
		t.Fatalf("prune on empty store: n=%d err=%v", n, err)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), config.StoreConfig{Driver: "mongo"}, nil); err == nil {
		t.Fatal("expected error")
	}
}
