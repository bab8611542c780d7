// Package sync reconciles local thread/run state with the remote
// assistant API: bulk per-user pulls, run origination, and terminal-state
// polling. Remote payloads enter through the project package so coercion
// never leaks in here.
package sync

import (
	"context"
	"fmt"
	"sort"
	stdsync "sync"
	"time"

	"github.com/carebridgehq/assistant-sync-go/observe"
	"github.com/carebridgehq/assistant-sync-go/project"
	"github.com/carebridgehq/assistant-sync-go/remote"
	"github.com/carebridgehq/assistant-sync-go/store"
	"github.com/carebridgehq/assistant-sync-go/types"
)

// RemoteAPI is the slice of the remote client the sync layer needs.
// Implemented by remote.Client.
type RemoteAPI interface {
	ListThreads(ctx context.Context, userID string) ([]remote.ThreadShape, error)
	CreateThread(ctx context.Context) (remote.CreatedThread, error)
	ListRuns(ctx context.Context, threadID string) ([]remote.RunShape, error)
	CreateRun(ctx context.Context, threadID string, req remote.CreateRunRequest) (remote.RunShape, error)
}

// Repository reads and originates threads against the remote API,
// writing normalized records through to the local store when one is
// configured.
type Repository struct {
	api      RemoteAPI
	store    store.Store
	observer observe.Sink
}

type RepositoryOption func(*Repository)

func WithRepositoryStore(s store.Store) RepositoryOption {
	return func(r *Repository) { r.store = s }
}

func WithRepositoryObserver(sink observe.Sink) RepositoryOption {
	return func(r *Repository) {
		if sink != nil {
			r.observer = sink
		}
	}
}

func NewRepository(api RemoteAPI, opts ...RepositoryOption) (*Repository, error) {
	if api == nil {
		return nil, fmt.Errorf("remote API is required")
	}
	r := &Repository{
		api:      api,
		observer: observe.NoopSink{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// CreateThread originates a thread remotely and returns the local
// projection. The remote id is authoritative.
func (r *Repository) CreateThread(ctx context.Context, userID string) (types.Thread, error) {
	created, err := r.api.CreateThread(ctx)
	if err != nil {
		return types.Thread{}, err
	}

	thread := project.Thread(created.Thread, userID)
	if thread.ID == "" {
		thread.ID = created.ThreadID
	}
	r.persistThread(ctx, thread)
	r.emit(ctx, types.Event{
		Type:     types.EventThreadCreated,
		ThreadID: thread.ID,
		UserID:   userID,
	})
	return thread, nil
}

// UserThreadData pulls every thread the user owns, then fans out one
// goroutine per thread to fetch its runs. A failed thread contributes an
// empty run list and a partial-sync warning; it never aborts the bulk
// sync. Results are merged only after every fetch settles.
func (r *Repository) UserThreadData(ctx context.Context, userID string) (types.UserThreadData, error) {
	started := time.Now()
	r.emit(ctx, types.Event{Type: types.EventSyncStarted, UserID: userID})

	rawThreads, err := r.api.ListThreads(ctx, userID)
	if err != nil {
		return types.UserThreadData{}, err
	}

	threads := make([]types.Thread, 0, len(rawThreads))
	for _, raw := range rawThreads {
		threads = append(threads, project.Thread(raw, userID))
	}

	runsPerThread := make([][]types.Run, len(threads))
	partial := false

	var wg stdsync.WaitGroup
	var mu stdsync.Mutex
	for i, thread := range threads {
		wg.Add(1)
		go func(i int, threadID string) {
			defer wg.Done()
			raws, err := r.api.ListRuns(ctx, threadID)
			if err != nil {
				mu.Lock()
				partial = true
				runsPerThread[i] = []types.Run{}
				mu.Unlock()
				r.emit(ctx, types.Event{
					Type:     types.EventSyncPartial,
					ThreadID: threadID,
					UserID:   userID,
					Error:    err.Error(),
				})
				return
			}
			mu.Lock()
			runsPerThread[i] = project.Runs(raws, threadID, userID)
			mu.Unlock()
		}(i, thread.ID)
	}
	wg.Wait()

	runs := make([]types.Run, 0)
	for _, threadRuns := range runsPerThread {
		runs = append(runs, threadRuns...)
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return timeOrZero(runs[i].CreatedAt).After(timeOrZero(runs[j].CreatedAt))
	})

	for _, thread := range threads {
		r.persistThread(ctx, thread)
	}
	for _, run := range runs {
		r.persistRun(ctx, run)
	}

	eventType := types.EventSyncCompleted
	if partial {
		eventType = types.EventSyncPartial
	}
	r.emit(ctx, types.Event{
		Type:    eventType,
		UserID:  userID,
		Message: fmt.Sprintf("synced %d threads, %d runs in %s", len(threads), len(runs), time.Since(started).Round(time.Millisecond)),
	})

	return types.UserThreadData{
		UserID:  userID,
		Threads: threads,
		Runs:    runs,
	}, nil
}

// ThreadRuns fetches and projects the runs of a single thread.
func (r *Repository) ThreadRuns(ctx context.Context, threadID string) ([]types.Run, error) {
	raws, err := r.api.ListRuns(ctx, threadID)
	if err != nil {
		return nil, err
	}
	return project.Runs(raws, threadID, ""), nil
}

// MarkInactive retires a thread locally. Threads are never deleted from
// the remote; inactive is the terminal local state.
func (r *Repository) MarkInactive(ctx context.Context, threadID string) (types.Thread, error) {
	if r.store == nil {
		return types.Thread{}, fmt.Errorf("a local store is required to mark threads inactive")
	}
	thread, err := r.store.LoadThread(ctx, threadID)
	if err != nil {
		return types.Thread{}, err
	}
	if thread.Status == types.ThreadStatusInactive {
		return thread, nil
	}
	thread.Status = types.ThreadStatusInactive
	now := time.Now().UTC()
	thread.UpdatedAt = &now
	if err := r.store.SaveThread(ctx, thread); err != nil {
		return types.Thread{}, err
	}
	return thread, nil
}

func (r *Repository) persistThread(ctx context.Context, thread types.Thread) {
	if r.store == nil || thread.ID == "" {
		return
	}
	if err := r.store.SaveThread(ctx, thread); err != nil {
		r.emit(ctx, types.Event{
			Type:     types.EventSyncPartial,
			ThreadID: thread.ID,
			Error:    fmt.Sprintf("local thread write failed: %v", err),
		})
	}
}

func (r *Repository) persistRun(ctx context.Context, run types.Run) {
	if r.store == nil || run.ID == "" {
		return
	}
	if err := r.store.SaveRun(ctx, run); err != nil {
		r.emit(ctx, types.Event{
			Type:     types.EventSyncPartial,
			ThreadID: run.ThreadID,
			RunID:    run.ID,
			Error:    fmt.Sprintf("local run write failed: %v", err),
		})
	}
}

func (r *Repository) emit(ctx context.Context, event types.Event) {
	if r.observer == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_ = r.observer.Emit(ctx, observe.FromSyncEvent(event))
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
