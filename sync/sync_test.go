package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"testing"
	"time"

	"github.com/carebridgehq/assistant-sync-go/observe"
	"github.com/carebridgehq/assistant-sync-go/remote"
	"github.com/carebridgehq/assistant-sync-go/store"
	"github.com/carebridgehq/assistant-sync-go/stream"
	"github.com/carebridgehq/assistant-sync-go/types"
)

type fakeAPI struct {
	mu stdsync.Mutex

	threads      []remote.ThreadShape
	created      remote.CreatedThread
	createErr    error
	runsByThread map[string][]remote.RunShape
	runsErrFor   map[string]error
	createdRun   remote.RunShape
	createRunErr error

	// runsSequence, when set, overrides runsByThread and is consumed one
	// response per ListRuns call; the last entry repeats.
	runsSequence [][]remote.RunShape

	listRunsCalls int
}

func (f *fakeAPI) ListThreads(_ context.Context, _ string) ([]remote.ThreadShape, error) {
	return f.threads, nil
}

func (f *fakeAPI) CreateThread(_ context.Context) (remote.CreatedThread, error) {
	if f.createErr != nil {
		return remote.CreatedThread{}, f.createErr
	}
	return f.created, nil
}

func (f *fakeAPI) ListRuns(_ context.Context, threadID string) ([]remote.RunShape, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listRunsCalls++
	if err, ok := f.runsErrFor[threadID]; ok && err != nil {
		return nil, err
	}
	if len(f.runsSequence) > 0 {
		next := f.runsSequence[0]
		if len(f.runsSequence) > 1 {
			f.runsSequence = f.runsSequence[1:]
		}
		return next, nil
	}
	return f.runsByThread[threadID], nil
}

func (f *fakeAPI) CreateRun(_ context.Context, _ string, _ remote.CreateRunRequest) (remote.RunShape, error) {
	if f.createRunErr != nil {
		return remote.RunShape{}, f.createRunErr
	}
	return f.createdRun, nil
}

type fakeStore struct {
	mu      stdsync.Mutex
	threads map[string]types.Thread
	runs    map[string]types.Run
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		threads: map[string]types.Thread{},
		runs:    map[string]types.Run{},
	}
}

func (s *fakeStore) SaveThread(_ context.Context, thread types.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[thread.ID] = thread
	return nil
}

func (s *fakeStore) LoadThread(_ context.Context, threadID string) (types.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread, ok := s.threads[threadID]
	if !ok {
		return types.Thread{}, store.ErrNotFound
	}
	return thread, nil
}

func (s *fakeStore) ListThreads(_ context.Context, _ store.ListThreadsQuery) ([]types.Thread, error) {
	return nil, nil
}

func (s *fakeStore) SaveRun(_ context.Context, run types.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

func (s *fakeStore) LoadRun(_ context.Context, runID string) (types.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return types.Run{}, store.ErrNotFound
	}
	return run, nil
}

func (s *fakeStore) ListRuns(_ context.Context, _ store.ListRunsQuery) ([]types.Run, error) {
	return nil, nil
}

func (s *fakeStore) Close() error { return nil }

type fakeStream struct {
	startErr    error
	handshakeID string
	runID       string
	started     int
	resets      int
}

func (f *fakeStream) Start(_ context.Context, _, _, _ string) error {
	f.started++
	if f.startErr != nil {
		return f.startErr
	}
	f.runID = f.handshakeID
	return nil
}

func (f *fakeStream) RunID() string { return f.runID }

func (f *fakeStream) Reset() {
	f.resets++
	f.runID = ""
}

// observerCounting counts partial-sync warnings delivered to the sink.
func observerCounting(mu *stdsync.Mutex, warnings *int) observe.Sink {
	return observe.SinkFunc(func(_ context.Context, event observe.Event) error {
		if event.Status == observe.StatusWarning {
			mu.Lock()
			*warnings++
			mu.Unlock()
		}
		return nil
	})
}

func TestRepository_CreateThread(t *testing.T) {
	api := &fakeAPI{
		created: remote.CreatedThread{
			ThreadID: "thread_new",
			Thread:   remote.ThreadShape{ID: "thread_new", Title: "fresh"},
		},
	}
	st := newFakeStore()
	repo, err := NewRepository(api, WithRepositoryStore(st))
	if err != nil {
		t.Fatalf("NewRepository failed: %v", err)
	}

	thread, err := repo.CreateThread(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("CreateThread failed: %v", err)
	}
	if thread.ID != "thread_new" {
		t.Fatalf("expected remote-assigned id, got %q", thread.ID)
	}
	if thread.UserID != "user_1" {
		t.Fatalf("expected fallback user id, got %q", thread.UserID)
	}
	if _, ok := st.threads["thread_new"]; !ok {
		t.Fatal("created thread not written through to store")
	}
}

func TestRepository_CreateThreadPropagatesError(t *testing.T) {
	api := &fakeAPI{
		createErr: &remote.CreateError{StatusCode: 503, Message: "overloaded"},
	}
	repo, err := NewRepository(api)
	if err != nil {
		t.Fatalf("NewRepository failed: %v", err)
	}

	_, err = repo.CreateThread(context.Background(), "user_1")
	var createErr *remote.CreateError
	if !errors.As(err, &createErr) {
		t.Fatalf("expected CreateError, got %v", err)
	}
	if createErr.StatusCode != 503 {
		t.Fatalf("expected status 503, got %d", createErr.StatusCode)
	}
}

func TestRepository_UserThreadDataMergesAllThreads(t *testing.T) {
	api := &fakeAPI{
		threads: []remote.ThreadShape{
			{ID: "thread_a", UserID: "user_1"},
			{ID: "thread_b", UserID: "user_1"},
		},
		runsByThread: map[string][]remote.RunShape{
			"thread_a": {{ID: "run_a1", Status: "completed"}, {ID: "run_a2", Status: "completed"}},
			"thread_b": {{ID: "run_b1", Status: "in_progress"}},
		},
	}
	repo, err := NewRepository(api)
	if err != nil {
		t.Fatalf("NewRepository failed: %v", err)
	}

	data, err := repo.UserThreadData(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("UserThreadData failed: %v", err)
	}
	if len(data.Threads) != 2 {
		t.Fatalf("expected 2 threads, got %d", len(data.Threads))
	}
	if len(data.Runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(data.Runs))
	}
	for _, run := range data.Runs {
		if run.ThreadID == "" {
			t.Fatalf("run %s lost its thread id", run.ID)
		}
	}
}

func TestRepository_UserThreadDataToleratesPartialFailure(t *testing.T) {
	api := &fakeAPI{
		threads: []remote.ThreadShape{
			{ID: "thread_good", UserID: "user_1"},
			{ID: "thread_bad", UserID: "user_1"},
		},
		runsByThread: map[string][]remote.RunShape{
			"thread_good": {{ID: "run_1", Status: "completed"}},
		},
		runsErrFor: map[string]error{
			"thread_bad": &remote.FetchError{StatusCode: 500, Message: "boom"},
		},
	}

	var mu stdsync.Mutex
	warnings := 0
	repo, err := NewRepository(api, WithRepositoryObserver(observerCounting(&mu, &warnings)))
	if err != nil {
		t.Fatalf("NewRepository failed: %v", err)
	}

	data, err := repo.UserThreadData(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("a single thread failure must not abort the sync: %v", err)
	}
	if len(data.Threads) != 2 {
		t.Fatalf("expected both threads despite failure, got %d", len(data.Threads))
	}
	if len(data.Runs) != 1 {
		t.Fatalf("expected runs from the healthy thread only, got %d", len(data.Runs))
	}
	mu.Lock()
	defer mu.Unlock()
	if warnings == 0 {
		t.Fatal("expected a partial-sync warning event")
	}
}

func TestRepository_MarkInactive(t *testing.T) {
	st := newFakeStore()
	now := time.Now().UTC()
	st.threads["thread_1"] = types.Thread{
		ID: "thread_1", UserID: "user_1", Status: types.ThreadStatusActive, CreatedAt: &now,
	}
	repo, err := NewRepository(&fakeAPI{}, WithRepositoryStore(st))
	if err != nil {
		t.Fatalf("NewRepository failed: %v", err)
	}

	thread, err := repo.MarkInactive(context.Background(), "thread_1")
	if err != nil {
		t.Fatalf("MarkInactive failed: %v", err)
	}
	if thread.Status != types.ThreadStatusInactive {
		t.Fatalf("expected inactive status, got %q", thread.Status)
	}
	if st.threads["thread_1"].Status != types.ThreadStatusInactive {
		t.Fatal("inactive status not persisted")
	}

	if _, err := repo.MarkInactive(context.Background(), "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown thread, got %v", err)
	}
}

func TestSynchronizer_BlockingCreate(t *testing.T) {
	api := &fakeAPI{
		createdRun: remote.RunShape{
			ID:     "run_9",
			Status: "queued",
		},
	}
	st := newFakeStore()
	ctrl := &fakeStream{}
	syncer, err := NewSynchronizer(api, WithStream(ctrl), WithStore(st))
	if err != nil {
		t.Fatalf("NewSynchronizer failed: %v", err)
	}

	run, err := syncer.CreateRun(context.Background(), "thread_1", "asst_1", types.RunSettings{}, []types.Message{
		{Role: types.RoleUser, Content: "hello"},
	})
	if err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if run.ID != "run_9" || run.Status != types.RunStatusQueued {
		t.Fatalf("unexpected run: %#v", run)
	}
	if ctrl.resets != 1 {
		t.Fatalf("expected exactly one stream reset before originating, got %d", ctrl.resets)
	}
	if ctrl.started != 0 {
		t.Fatal("blocking path must not start a stream")
	}
	if _, ok := st.runs["run_9"]; !ok {
		t.Fatal("run not written through to store")
	}
}

func TestSynchronizer_BlockingCreatePropagatesError(t *testing.T) {
	api := &fakeAPI{
		createRunErr: &remote.CreateError{StatusCode: 422, Message: "bad settings"},
	}
	syncer, err := NewSynchronizer(api)
	if err != nil {
		t.Fatalf("NewSynchronizer failed: %v", err)
	}

	_, err = syncer.CreateRun(context.Background(), "thread_1", "asst_1", types.RunSettings{}, nil)
	var createErr *remote.CreateError
	if !errors.As(err, &createErr) {
		t.Fatalf("expected CreateError, got %v", err)
	}
}

func TestSynchronizer_StreamedCreate(t *testing.T) {
	// The controller carries a stale id from a previous lifecycle; the
	// synchronizer must reset it before the new handshake repopulates it.
	ctrl := &fakeStream{runID: "run_stale", handshakeID: "run_live"}
	syncer, err := NewSynchronizer(&fakeAPI{}, WithStream(ctrl), WithStore(newFakeStore()))
	if err != nil {
		t.Fatalf("NewSynchronizer failed: %v", err)
	}

	run, err := syncer.CreateRun(context.Background(), "thread_1", "asst_1", types.RunSettings{Stream: true}, nil)
	if err != nil {
		t.Fatalf("streamed CreateRun failed: %v", err)
	}
	if run.ID != "run_live" {
		t.Fatalf("expected handshake run id, got %q", run.ID)
	}
	if run.Status != types.RunStatusInProgress {
		t.Fatalf("provisional run should be in progress, got %q", run.Status)
	}
	if run.StartedAt == nil {
		t.Fatal("provisional run should carry a start time")
	}
	if ctrl.started != 1 {
		t.Fatalf("expected one stream start, got %d", ctrl.started)
	}
}

func TestSynchronizer_StreamedCreateWithoutRunIDFails(t *testing.T) {
	ctrl := &fakeStream{}
	syncer, err := NewSynchronizer(&fakeAPI{}, WithStream(ctrl))
	if err != nil {
		t.Fatalf("NewSynchronizer failed: %v", err)
	}

	_, err = syncer.CreateRun(context.Background(), "thread_1", "asst_1", types.RunSettings{Stream: true}, nil)
	var handshakeErr *stream.HandshakeError
	if !errors.As(err, &handshakeErr) {
		t.Fatalf("expected HandshakeError, got %v", err)
	}
}

func TestSynchronizer_StreamWithoutControllerFails(t *testing.T) {
	api := &fakeAPI{
		createdRun: remote.RunShape{ID: "run_blocking", Status: "queued"},
	}
	syncer, err := NewSynchronizer(api)
	if err != nil {
		t.Fatalf("NewSynchronizer failed: %v", err)
	}

	// A stream request must be rejected outright, never executed as a
	// blocking create behind the caller's back.
	run, err := syncer.CreateRun(context.Background(), "thread_1", "asst_1", types.RunSettings{Stream: true}, nil)
	if err == nil {
		t.Fatalf("expected error for stream request without a controller, got run %#v", run)
	}
	if run.ID != "" {
		t.Fatalf("rejected stream request must not produce a run, got %q", run.ID)
	}

	// The blocking path stays available on the same synchronizer.
	run, err = syncer.CreateRun(context.Background(), "thread_1", "asst_1", types.RunSettings{}, nil)
	if err != nil {
		t.Fatalf("blocking CreateRun failed: %v", err)
	}
	if run.ID != "run_blocking" {
		t.Fatalf("unexpected run: %#v", run)
	}
}

func TestSynchronizer_StreamStartFailureSurfacesHandshakeError(t *testing.T) {
	ctrl := &fakeStream{startErr: &stream.HandshakeError{ThreadID: "thread_1", Cause: fmt.Errorf("connection refused")}}
	syncer, err := NewSynchronizer(&fakeAPI{}, WithStream(ctrl))
	if err != nil {
		t.Fatalf("NewSynchronizer failed: %v", err)
	}

	_, err = syncer.CreateRun(context.Background(), "thread_1", "asst_1", types.RunSettings{Stream: true}, nil)
	var handshakeErr *stream.HandshakeError
	if !errors.As(err, &handshakeErr) {
		t.Fatalf("expected HandshakeError, got %v", err)
	}
}

func TestSynchronizer_InProgressGuard(t *testing.T) {
	api := &fakeAPI{
		runsByThread: map[string][]remote.RunShape{
			"thread_busy": {{ID: "run_1", Status: "in_progress"}},
			"thread_idle": {{ID: "run_2", Status: "completed"}},
		},
		createdRun: remote.RunShape{ID: "run_3", Status: "queued"},
	}
	syncer, err := NewSynchronizer(api, WithInProgressGuard(true))
	if err != nil {
		t.Fatalf("NewSynchronizer failed: %v", err)
	}

	if _, err := syncer.CreateRun(context.Background(), "thread_busy", "asst_1", types.RunSettings{}, nil); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}
	if _, err := syncer.CreateRun(context.Background(), "thread_idle", "asst_1", types.RunSettings{}, nil); err != nil {
		t.Fatalf("idle thread should originate: %v", err)
	}
}

func TestPoller_WaitForTerminal(t *testing.T) {
	api := &fakeAPI{
		runsSequence: [][]remote.RunShape{
			{{ID: "run_1", Status: "in_progress"}},
			{{ID: "run_1", Status: "in_progress"}},
			{{ID: "run_1", Status: "completed"}},
		},
	}
	poller, err := NewPoller(api, PollPolicy{BaseInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewPoller failed: %v", err)
	}

	run, err := poller.WaitForTerminal(context.Background(), "thread_1", "run_1")
	if err != nil {
		t.Fatalf("WaitForTerminal failed: %v", err)
	}
	if run.Status != types.RunStatusCompleted {
		t.Fatalf("expected completed run, got %q", run.Status)
	}
	if api.listRunsCalls < 3 {
		t.Fatalf("expected at least 3 polls, got %d", api.listRunsCalls)
	}
}

func TestPoller_AttemptBudget(t *testing.T) {
	api := &fakeAPI{
		runsSequence: [][]remote.RunShape{
			{{ID: "run_1", Status: "in_progress"}},
		},
	}
	poller, err := NewPoller(api, PollPolicy{MaxAttempts: 2, BaseInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("NewPoller failed: %v", err)
	}

	if _, err := poller.WaitForTerminal(context.Background(), "thread_1", "run_1"); err == nil {
		t.Fatal("expected error when the attempt budget runs out")
	}
}

func TestPoller_ContextCancellation(t *testing.T) {
	api := &fakeAPI{
		runsSequence: [][]remote.RunShape{
			{{ID: "run_1", Status: "in_progress"}},
		},
	}
	poller, err := NewPoller(api, PollPolicy{BaseInterval: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewPoller failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := poller.WaitForTerminal(ctx, "thread_1", "run_1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}
