package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/carebridgehq/assistant-sync-go/store"
	"github.com/carebridgehq/assistant-sync-go/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sync.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestSQLiteStore_SaveLoadThread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	thread := types.Thread{
		ID:        "thread_1",
		UserID:    "user_1",
		Status:    types.ThreadStatusActive,
		Title:     "intake questions",
		Messages:  []types.Message{},
		Metadata:  map[string]any{"source": "test"},
		CreatedAt: &now,
		UpdatedAt: &now,
	}
	if err := s.SaveThread(ctx, thread); err != nil {
		t.Fatalf("SaveThread failed: %v", err)
	}

	got, err := s.LoadThread(ctx, "thread_1")
	if err != nil {
		t.Fatalf("LoadThread failed: %v", err)
	}
	if got.ID != "thread_1" || got.UserID != "user_1" || got.Title != "intake questions" {
		t.Fatalf("unexpected thread: %#v", got)
	}

	threads, err := s.ListThreads(ctx, store.ListThreadsQuery{UserID: "user_1"})
	if err != nil {
		t.Fatalf("ListThreads failed: %v", err)
	}
	if len(threads) != 1 {
		t.Fatalf("expected 1 thread, got %d", len(threads))
	}
}

func TestSQLiteStore_LoadThreadNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.LoadThread(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteStore_SaveRunUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	tokens := 12
	run := types.Run{
		ID:           "run_1",
		RunID:        "run_1",
		ThreadID:     "thread_1",
		UserID:       "user_1",
		Status:       types.RunStatusInProgress,
		CreatedAt:    &now,
		UpdatedAt:    &now,
		PromptTokens: &tokens,
	}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	later := now.Add(time.Second)
	run.Status = types.RunStatusCompleted
	run.UpdatedAt = &later
	run.CompletedAt = &later
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun upsert failed: %v", err)
	}

	got, err := s.LoadRun(ctx, "run_1")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if got.Status != types.RunStatusCompleted {
		t.Fatalf("upsert did not update status: %q", got.Status)
	}
	if got.PromptTokens == nil || *got.PromptTokens != 12 {
		t.Fatalf("prompt tokens lost in round trip: %v", got.PromptTokens)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(later) {
		t.Fatalf("completed_at lost in round trip: %v", got.CompletedAt)
	}
}

func TestSQLiteStore_ListRunsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	for i, threadID := range []string{"thread_a", "thread_a", "thread_b"} {
		created := now.Add(time.Duration(i) * time.Second)
		run := types.Run{
			ID:        "run_" + threadID + "_" + string(rune('0'+i)),
			ThreadID:  threadID,
			UserID:    "user_1",
			Status:    types.RunStatusCompleted,
			CreatedAt: &created,
			UpdatedAt: &created,
		}
		if err := s.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	byThread, err := s.ListRuns(ctx, store.ListRunsQuery{ThreadID: "thread_a"})
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(byThread) != 2 {
		t.Fatalf("expected 2 runs for thread_a, got %d", len(byThread))
	}

	byUser, err := s.ListRuns(ctx, store.ListRunsQuery{UserID: "user_1"})
	if err != nil {
		t.Fatalf("ListRuns by user failed: %v", err)
	}
	if len(byUser) != 3 {
		t.Fatalf("expected 3 runs for user_1, got %d", len(byUser))
	}

	if _, err := s.LoadRun(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
