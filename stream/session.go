// Package stream owns the live run stream: one concurrently-active
// session per controller, the run id handshake, and cancellation.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/carebridgehq/assistant-sync-go/observe"
	"github.com/carebridgehq/assistant-sync-go/remote"
	"github.com/carebridgehq/assistant-sync-go/types"
)

const (
	defaultHandshakeTimeout = 30 * time.Second
	defaultChunkBuffer      = 64
)

// ErrSessionActive is returned by Start while a previous stream on this
// session has not yet resolved or been reset.
var ErrSessionActive = errors.New("stream: session already active")

// HandshakeError reports that streaming was requested but the remote
// never acknowledged with a run id. Callers must treat this as a hard
// failure of the run origination, not a retryable no-op.
type HandshakeError struct {
	ThreadID string
	Cause    error
}

func (e *HandshakeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("stream handshake failed for thread %s: %v", e.ThreadID, e.Cause)
	}
	return fmt.Sprintf("stream handshake failed for thread %s: no run id received", e.ThreadID)
}

func (e *HandshakeError) Unwrap() error { return e.Cause }

// Chunk is one unit of incremental run output.
type Chunk struct {
	RunID string `json:"runId,omitempty"`
	Text  string `json:"text,omitempty"`
	Done  bool   `json:"done,omitempty"`
}

// Opener opens the raw streamed connection; implemented by
// remote.Client.
type Opener interface {
	OpenStream(ctx context.Context, threadID string, req remote.CreateRunRequest) (io.ReadCloser, error)
}

type Session struct {
	opener           Opener
	observer         observe.Sink
	handshakeTimeout time.Duration
	chunkBuffer      int

	mu     sync.Mutex
	active bool
	runID  string
	cancel context.CancelFunc
	chunks chan Chunk
}

type Option func(*Session)

func WithHandshakeTimeout(timeout time.Duration) Option {
	return func(s *Session) {
		if timeout > 0 {
			s.handshakeTimeout = timeout
		}
	}
}

func WithChunkBuffer(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.chunkBuffer = n
		}
	}
}

func WithObserver(observer observe.Sink) Option {
	return func(s *Session) {
		if observer != nil {
			s.observer = observer
		}
	}
}

func NewSession(opener Opener, opts ...Option) (*Session, error) {
	if opener == nil {
		return nil, errors.New("stream opener is required")
	}
	s := &Session{
		opener:           opener,
		observer:         observe.NoopSink{},
		handshakeTimeout: defaultHandshakeTimeout,
		chunkBuffer:      defaultChunkBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start opens the live connection and blocks until the remote
// acknowledges with a run id, the handshake times out, or the stream
// dies. On success the run id is recorded and chunks flow on Chunks()
// until the stream resolves. Safe to call again once a prior stream has
// fully resolved, errored, or been reset.
func (s *Session) Start(ctx context.Context, threadID, assistantID, additionalInstructions string) error {
	s.mu.Lock()
	if s.active {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.active = true
	s.runID = ""
	chunks := make(chan Chunk, s.chunkBuffer)
	s.chunks = chunks
	s.mu.Unlock()

	req := remote.NewCreateRunRequest(assistantID, types.RunSettings{
		Stream:                 true,
		AdditionalInstructions: additionalInstructions,
	}, nil)

	streamCtx, cancel := context.WithCancel(ctx)
	body, err := s.opener.OpenStream(streamCtx, threadID, req)
	if err != nil {
		cancel()
		s.deactivate(chunks)
		close(chunks)
		return &HandshakeError{ThreadID: threadID, Cause: err}
	}

	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	runIDCh := make(chan string, 1)
	readErrCh := make(chan error, 1)
	go s.consume(body, chunks, runIDCh, readErrCh)

	timer := time.NewTimer(s.handshakeTimeout)
	defer timer.Stop()

	select {
	case runID := <-runIDCh:
		s.mu.Lock()
		s.runID = runID
		s.mu.Unlock()
		s.emit(observe.Event{
			Kind:     observe.KindStream,
			Status:   observe.StatusStarted,
			ThreadID: threadID,
			RunID:    runID,
			Message:  "stream acknowledged",
		})
		return nil
	case err := <-readErrCh:
		cancel()
		_ = body.Close()
		return &HandshakeError{ThreadID: threadID, Cause: err}
	case <-timer.C:
		cancel()
		_ = body.Close()
		return &HandshakeError{ThreadID: threadID, Cause: errors.New("handshake timed out")}
	case <-ctx.Done():
		cancel()
		_ = body.Close()
		return &HandshakeError{ThreadID: threadID, Cause: ctx.Err()}
	}
}

// consume reads server-sent events until the stream resolves. The first
// event carrying a run id completes the handshake; everything after is
// delivered as chunks. It is the sole writer and closer of its channel.
func (s *Session) consume(body io.ReadCloser, chunks chan Chunk, runIDCh chan<- string, readErrCh chan<- error) {
	defer func() {
		_ = body.Close()
		s.deactivate(chunks)
		close(chunks)
	}()

	handshakeDone := false
	reader := newEventReader(body)
	for {
		event, err := reader.Next()
		if err != nil {
			if !handshakeDone {
				if errors.Is(err, io.EOF) {
					err = errors.New("stream ended before a run id was received")
				}
				readErrCh <- err
			}
			return
		}

		if !handshakeDone {
			if runID := event.runID(); runID != "" {
				handshakeDone = true
				runIDCh <- runID
			} else {
				// Pre-handshake events without a run id carry nothing
				// a consumer can attribute; skip them.
				continue
			}
		}

		if text := event.text(); text != "" {
			select {
			case chunks <- Chunk{RunID: s.RunID(), Text: text}:
			default:
				// Drop on pressure rather than stall the read loop.
			}
		}
		if event.done() {
			select {
			case chunks <- Chunk{RunID: s.RunID(), Done: true}:
			default:
			}
			return
		}
	}
}

// deactivate marks the session resolved if chunks still belongs to it.
// The run id survives until Reset so late observers can still read it.
func (s *Session) deactivate(chunks chan Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chunks == chunks {
		s.active = false
	}
}

// RunID returns the run id produced by the current or most recent
// stream, or "" when none was ever obtained.
func (s *Session) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Active reports whether a stream is currently in flight.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Chunks returns the partial-output channel of the current session. The
// channel is closed when the stream resolves; nil after a Reset with no
// new Start.
func (s *Session) Chunks() <-chan Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

// Cancel requests cancellation of the in-flight stream. Best effort:
// the remote run may already be terminal when the cancellation lands.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Reset clears all session state without a network call. Must be called
// before originating a brand-new run so stale partial output and the
// previous run id cannot leak into the new lifecycle.
func (s *Session) Reset() {
	s.mu.Lock()
	cancel := s.cancel
	chunks := s.chunks
	s.runID = ""
	s.cancel = nil
	s.chunks = nil
	s.active = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if chunks != nil {
		// The reader goroutine still owns and will close the orphaned
		// channel once the cancel above terminates it; drain so its
		// final sends never linger.
		go func() {
			for range chunks {
			}
		}()
	}
	s.emit(observe.Event{
		Kind:    observe.KindStream,
		Status:  observe.StatusCompleted,
		Message: "session reset",
	})
}

func (s *Session) emit(event observe.Event) {
	if s.observer == nil {
		return
	}
	_ = s.observer.Emit(context.Background(), event)
}
