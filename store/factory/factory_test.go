package factory

import (
	"context"
	"path/filepath"
	"testing"
)

func TestFromEnv_SQLite(t *testing.T) {
	t.Setenv("SYNC_STATE_BACKEND", "sqlite")
	t.Setenv("SYNC_SQLITE_PATH", filepath.Join(t.TempDir(), "state.db"))

	s, err := FromEnv(context.Background())
	if err != nil {
		t.Fatalf("FromEnv sqlite failed: %v", err)
	}
	if s == nil {
		t.Fatalf("expected sqlite store")
	}
	defer s.Close()
}

func TestFromEnv_DefaultsToSQLite(t *testing.T) {
	t.Setenv("SYNC_STATE_BACKEND", "")
	t.Setenv("SYNC_SQLITE_PATH", filepath.Join(t.TempDir(), "state.db"))

	s, err := FromEnv(context.Background())
	if err != nil {
		t.Fatalf("FromEnv default failed: %v", err)
	}
	defer s.Close()
}

func TestFromEnv_HybridFallsBackWhenRedisUnavailable(t *testing.T) {
	t.Setenv("SYNC_STATE_BACKEND", "hybrid")
	t.Setenv("SYNC_SQLITE_PATH", filepath.Join(t.TempDir(), "state.db"))
	t.Setenv("SYNC_REDIS_ADDR", "127.0.0.1:1")

	s, err := FromEnv(context.Background())
	if err != nil {
		t.Fatalf("FromEnv hybrid failed unexpectedly: %v", err)
	}
	if s == nil {
		t.Fatalf("expected hybrid store")
	}
	defer s.Close()
}

func TestFromEnv_InvalidBackend(t *testing.T) {
	t.Setenv("SYNC_STATE_BACKEND", "nope")
	if _, err := FromEnv(context.Background()); err == nil {
		t.Fatalf("expected error for invalid backend")
	}
}
