// Package store is the durable local cache of synced threads and runs,
// so the dashboard can render between syncs with the remote API.
package store

import (
	"context"
	"errors"

	"github.com/carebridgehq/assistant-sync-go/types"
)

var ErrNotFound = errors.New("store: not found")

type ListThreadsQuery struct {
	UserID string
	Status string
	Limit  int
	Offset int
}

type ListRunsQuery struct {
	ThreadID string
	UserID   string
	Status   string
	Limit    int
	Offset   int
}

type Store interface {
	SaveThread(ctx context.Context, thread types.Thread) error
	LoadThread(ctx context.Context, threadID string) (types.Thread, error)
	ListThreads(ctx context.Context, query ListThreadsQuery) ([]types.Thread, error)

	SaveRun(ctx context.Context, run types.Run) error
	LoadRun(ctx context.Context, runID string) (types.Run, error)
	ListRuns(ctx context.Context, query ListRunsQuery) ([]types.Run, error)

	Close() error
}
