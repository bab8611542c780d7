package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/carebridgehq/assistant-sync-go/remote"
)

type fakeOpener struct {
	body io.ReadCloser
	err  error
}

func (f *fakeOpener) OpenStream(_ context.Context, _ string, _ remote.CreateRunRequest) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

func sseBody(events ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(strings.Join(events, "")))
}

func TestSession_StartHandshakeAndChunks(t *testing.T) {
	opener := &fakeOpener{
		body: sseBody(
			"event: run.created\ndata: {\"run\":{\"id\":\"run_1\"}}\n\n",
			"data: {\"delta\":\"Hel\"}\n\n",
			"data: {\"delta\":\"lo\"}\n\n",
			"data: [DONE]\n\n",
		),
	}
	session, err := NewSession(opener)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	if err := session.Start(context.Background(), "thread_1", "asst_1", ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := session.RunID(); got != "run_1" {
		t.Fatalf("expected handshake run id run_1, got %q", got)
	}

	var text strings.Builder
	sawDone := false
	for chunk := range session.Chunks() {
		if chunk.Done {
			sawDone = true
			continue
		}
		text.WriteString(chunk.Text)
	}
	if text.String() != "Hello" {
		t.Fatalf("expected accumulated text Hello, got %q", text.String())
	}
	if !sawDone {
		t.Fatal("expected a terminal done chunk")
	}
	if session.Active() {
		t.Fatal("session should resolve once the stream ends")
	}
}

func TestSession_StartWithoutRunIDFails(t *testing.T) {
	opener := &fakeOpener{
		body: sseBody("data: {\"delta\":\"orphan\"}\n\n"),
	}
	session, err := NewSession(opener)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	err = session.Start(context.Background(), "thread_1", "asst_1", "")
	var handshakeErr *HandshakeError
	if !errors.As(err, &handshakeErr) {
		t.Fatalf("expected HandshakeError, got %v", err)
	}
	if session.RunID() != "" {
		t.Fatalf("failed handshake must not record a run id, got %q", session.RunID())
	}
	if session.Active() {
		t.Fatal("failed session must not stay active")
	}
}

func TestSession_OpenerErrorWrapsIntoHandshakeError(t *testing.T) {
	opener := &fakeOpener{
		err: &remote.CreateError{StatusCode: 503, Message: "stream refused"},
	}
	session, err := NewSession(opener)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	err = session.Start(context.Background(), "thread_1", "asst_1", "")
	var handshakeErr *HandshakeError
	if !errors.As(err, &handshakeErr) {
		t.Fatalf("expected HandshakeError, got %v", err)
	}
	var createErr *remote.CreateError
	if !errors.As(err, &createErr) {
		t.Fatalf("expected wrapped CreateError, got %v", err)
	}
}

func TestSession_HandshakeTimeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	opener := &fakeOpener{body: pr}
	session, err := NewSession(opener, WithHandshakeTimeout(30*time.Millisecond))
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	err = session.Start(context.Background(), "thread_1", "asst_1", "")
	var handshakeErr *HandshakeError
	if !errors.As(err, &handshakeErr) {
		t.Fatalf("expected HandshakeError on timeout, got %v", err)
	}
}

func TestSession_SecondStartWhileActiveFails(t *testing.T) {
	pr, pw := io.Pipe()
	opener := &fakeOpener{body: pr}
	session, err := NewSession(opener)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	go func() {
		_, _ = fmt.Fprint(pw, "data: {\"run_id\":\"run_live\"}\n\n")
	}()
	if err := session.Start(context.Background(), "thread_1", "asst_1", ""); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	if !session.Active() {
		t.Fatal("expected session active while the stream is open")
	}

	if err := session.Start(context.Background(), "thread_1", "asst_1", ""); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}

	session.Reset()
	_ = pw.Close()
}

func TestSession_ResetClearsStaleRunID(t *testing.T) {
	opener := &fakeOpener{
		body: sseBody(
			"data: {\"run_id\":\"run_old\"}\n\n",
			"data: [DONE]\n\n",
		),
	}
	session, err := NewSession(opener)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	if err := session.Start(context.Background(), "thread_1", "asst_1", ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for range session.Chunks() {
	}
	if session.RunID() != "run_old" {
		t.Fatalf("expected run id to survive stream end, got %q", session.RunID())
	}

	session.Reset()
	if session.RunID() != "" {
		t.Fatalf("reset must clear the run id, got %q", session.RunID())
	}
	if session.Chunks() != nil {
		t.Fatal("reset must detach the chunk channel")
	}
	if session.Active() {
		t.Fatal("reset session must be inactive")
	}

	// A fresh stream after reset starts from a clean slate.
	opener.body = sseBody(
		"data: {\"run_id\":\"run_new\"}\n\n",
		"data: [DONE]\n\n",
	)
	if err := session.Start(context.Background(), "thread_1", "asst_1", ""); err != nil {
		t.Fatalf("restart after reset failed: %v", err)
	}
	if session.RunID() != "run_new" {
		t.Fatalf("expected new handshake id, got %q", session.RunID())
	}
	for range session.Chunks() {
	}
}

func TestSession_CancelStopsStream(t *testing.T) {
	pr, pw := io.Pipe()
	opener := &fakeOpener{body: pr}
	session, err := NewSession(opener)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	go func() {
		_, _ = fmt.Fprint(pw, "data: {\"run_id\":\"run_cancel\"}\n\n")
	}()
	if err := session.Start(context.Background(), "thread_1", "asst_1", ""); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	session.Cancel()
	_ = pw.CloseWithError(context.Canceled)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, open := <-session.Chunks():
			if !open {
				if session.Active() {
					t.Fatal("cancelled session must deactivate")
				}
				return
			}
		case <-deadline:
			t.Fatal("chunk channel never closed after cancel")
		}
	}
}
