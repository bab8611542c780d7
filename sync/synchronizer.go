package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carebridgehq/assistant-sync-go/observe"
	"github.com/carebridgehq/assistant-sync-go/project"
	"github.com/carebridgehq/assistant-sync-go/remote"
	"github.com/carebridgehq/assistant-sync-go/store"
	"github.com/carebridgehq/assistant-sync-go/stream"
	"github.com/carebridgehq/assistant-sync-go/types"
)

// ErrRunInProgress is returned by CreateRun when the in-progress guard
// is enabled and the thread already has a live run.
var ErrRunInProgress = errors.New("sync: thread already has a run in progress")

// StreamController is the slice of the stream session the synchronizer
// drives. Implemented by stream.Session.
type StreamController interface {
	Start(ctx context.Context, threadID, assistantID, additionalInstructions string) error
	RunID() string
	Reset()
}

// Synchronizer originates runs against the remote API, choosing the
// streamed or blocking path from the run settings. Stream session state
// is always reset before a new run so nothing from a previous lifecycle
// leaks into the next one.
type Synchronizer struct {
	api             RemoteAPI
	stream          StreamController
	store           store.Store
	observer        observe.Sink
	guardInProgress bool
}

type SynchronizerOption func(*Synchronizer)

func WithStream(controller StreamController) SynchronizerOption {
	return func(s *Synchronizer) { s.stream = controller }
}

func WithStore(st store.Store) SynchronizerOption {
	return func(s *Synchronizer) { s.store = st }
}

func WithObserver(sink observe.Sink) SynchronizerOption {
	return func(s *Synchronizer) {
		if sink != nil {
			s.observer = sink
		}
	}
}

// WithInProgressGuard makes CreateRun refuse to originate while the
// thread's latest run is still live. Off by default: the remote API
// already enforces one live run per thread, and a stale local view must
// not block the user.
func WithInProgressGuard(enabled bool) SynchronizerOption {
	return func(s *Synchronizer) { s.guardInProgress = enabled }
}

func NewSynchronizer(api RemoteAPI, opts ...SynchronizerOption) (*Synchronizer, error) {
	if api == nil {
		return nil, fmt.Errorf("remote API is required")
	}
	s := &Synchronizer{
		api:      api,
		observer: observe.NoopSink{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateRun originates a run on the thread. With settings.Stream set and
// a stream controller configured it opens the live stream and returns a
// provisional in-progress run carrying the handshake run id; otherwise
// it issues the blocking create and returns the projected remote run.
func (s *Synchronizer) CreateRun(ctx context.Context, threadID, assistantID string, settings types.RunSettings, messages []types.Message) (types.Run, error) {
	if threadID == "" {
		return types.Run{}, fmt.Errorf("thread id is required")
	}

	if s.guardInProgress {
		if err := s.checkNoLiveRun(ctx, threadID); err != nil {
			return types.Run{}, err
		}
	}

	// Stale chunks or a previous run id must never survive into a new
	// origination, success or failure.
	if s.stream != nil {
		s.stream.Reset()
	}

	// A stream request delegates entirely to the controller; it never
	// degrades into a blocking create.
	if settings.Stream {
		if s.stream == nil {
			return types.Run{}, fmt.Errorf("streaming requested but no stream controller is configured")
		}
		return s.createStreamed(ctx, threadID, assistantID, settings)
	}
	return s.createBlocking(ctx, threadID, assistantID, settings, messages)
}

func (s *Synchronizer) createStreamed(ctx context.Context, threadID, assistantID string, settings types.RunSettings) (types.Run, error) {
	if err := s.stream.Start(ctx, threadID, assistantID, settings.AdditionalInstructions); err != nil {
		s.emit(ctx, types.Event{
			Type:     types.EventRunFailed,
			ThreadID: threadID,
			Error:    err.Error(),
		})
		return types.Run{}, err
	}

	runID := s.stream.RunID()
	if runID == "" {
		return types.Run{}, &stream.HandshakeError{ThreadID: threadID}
	}

	now := time.Now().UTC()
	run := types.Run{
		ID:                     runID,
		RunID:                  runID,
		ThreadID:               threadID,
		AssistantID:            assistantID,
		Status:                 types.RunStatusInProgress,
		CreatedAt:              &now,
		UpdatedAt:              &now,
		StartedAt:              &now,
		Model:                  settings.Model,
		Instructions:           settings.Instructions,
		AdditionalInstructions: settings.AdditionalInstructions,
		Temperature:            settings.Temperature,
		TopP:                   settings.TopP,
		Metadata:               settings.Metadata,
	}
	s.persistRun(ctx, run)
	s.emit(ctx, types.Event{
		Type:     types.EventRunCreated,
		ThreadID: threadID,
		RunID:    runID,
		Message:  "streamed run originated",
	})
	return run, nil
}

func (s *Synchronizer) createBlocking(ctx context.Context, threadID, assistantID string, settings types.RunSettings, messages []types.Message) (types.Run, error) {
	settings.Stream = false
	raw, err := s.api.CreateRun(ctx, threadID, remote.NewCreateRunRequest(assistantID, settings, messages))
	if err != nil {
		s.emit(ctx, types.Event{
			Type:     types.EventRunFailed,
			ThreadID: threadID,
			Error:    err.Error(),
		})
		return types.Run{}, err
	}

	run := project.Run(raw, threadID, "")
	if run.AssistantID == "" {
		run.AssistantID = assistantID
	}
	s.persistRun(ctx, run)
	s.emit(ctx, types.Event{
		Type:     types.EventRunCreated,
		ThreadID: threadID,
		RunID:    run.ID,
		Message:  "run originated",
	})
	return run, nil
}

func (s *Synchronizer) checkNoLiveRun(ctx context.Context, threadID string) error {
	raws, err := s.api.ListRuns(ctx, threadID)
	if err != nil {
		// A stale or unreachable view never blocks origination.
		return nil
	}
	for _, run := range project.Runs(raws, threadID, "") {
		if run.Status == types.RunStatusQueued || run.Status == types.RunStatusInProgress {
			return ErrRunInProgress
		}
	}
	return nil
}

func (s *Synchronizer) persistRun(ctx context.Context, run types.Run) {
	if s.store == nil || run.ID == "" {
		return
	}
	if err := s.store.SaveRun(ctx, run); err != nil {
		s.emit(ctx, types.Event{
			Type:     types.EventSyncPartial,
			ThreadID: run.ThreadID,
			RunID:    run.ID,
			Error:    fmt.Sprintf("local run write failed: %v", err),
		})
	}
}

func (s *Synchronizer) emit(ctx context.Context, event types.Event) {
	if s.observer == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_ = s.observer.Emit(ctx, observe.FromSyncEvent(event))
}
