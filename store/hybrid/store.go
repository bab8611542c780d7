package hybrid

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/carebridgehq/assistant-sync-go/store"
	"github.com/carebridgehq/assistant-sync-go/types"
)

// Store layers a best-effort cache over a durable backend. Cache failures
// are logged and swallowed; the durable store is the system of record and
// serves all list queries.
type Store struct {
	durable store.Store
	cache   store.Store
}

func New(durable store.Store, cache store.Store) (*Store, error) {
	if durable == nil {
		return nil, fmt.Errorf("durable store is required")
	}
	return &Store{
		durable: durable,
		cache:   cache,
	}, nil
}

func (h *Store) SaveThread(ctx context.Context, thread types.Thread) error {
	if err := h.durable.SaveThread(ctx, thread); err != nil {
		return err
	}
	if h.cache != nil {
		if err := h.cache.SaveThread(ctx, thread); err != nil {
			log.Printf("hybrid store cache SaveThread failed: %v", err)
		}
	}
	return nil
}

func (h *Store) LoadThread(ctx context.Context, threadID string) (types.Thread, error) {
	if h.cache != nil {
		thread, err := h.cache.LoadThread(ctx, threadID)
		if err == nil {
			return thread, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("hybrid store cache LoadThread failed: %v", err)
		}
	}

	thread, err := h.durable.LoadThread(ctx, threadID)
	if err != nil {
		return types.Thread{}, err
	}
	if h.cache != nil {
		if err := h.cache.SaveThread(ctx, thread); err != nil {
			log.Printf("hybrid store cache backfill SaveThread failed: %v", err)
		}
	}
	return thread, nil
}

func (h *Store) ListThreads(ctx context.Context, query store.ListThreadsQuery) ([]types.Thread, error) {
	return h.durable.ListThreads(ctx, query)
}

func (h *Store) SaveRun(ctx context.Context, run types.Run) error {
	if err := h.durable.SaveRun(ctx, run); err != nil {
		return err
	}
	if h.cache != nil {
		if err := h.cache.SaveRun(ctx, run); err != nil {
			log.Printf("hybrid store cache SaveRun failed: %v", err)
		}
	}
	return nil
}

func (h *Store) LoadRun(ctx context.Context, runID string) (types.Run, error) {
	if h.cache != nil {
		run, err := h.cache.LoadRun(ctx, runID)
		if err == nil {
			return run, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("hybrid store cache LoadRun failed: %v", err)
		}
	}

	run, err := h.durable.LoadRun(ctx, runID)
	if err != nil {
		return types.Run{}, err
	}
	if h.cache != nil {
		if err := h.cache.SaveRun(ctx, run); err != nil {
			log.Printf("hybrid store cache backfill SaveRun failed: %v", err)
		}
	}
	return run, nil
}

func (h *Store) ListRuns(ctx context.Context, query store.ListRunsQuery) ([]types.Run, error) {
	return h.durable.ListRuns(ctx, query)
}

func (h *Store) Close() error {
	var firstErr error
	if h.cache != nil {
		if err := h.cache.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if h.durable != nil {
		if err := h.durable.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
