package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"
)

// sseEvent is one server-sent event: an optional event name and the
// concatenated data lines.
type sseEvent struct {
	name string
	data []byte
}

type eventPayload struct {
	ID     string `json:"id"`
	RunID  string `json:"run_id"`
	Status string `json:"status"`
	Delta  string `json:"delta"`
	Text   string `json:"text"`
	Run    *struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"run"`
}

func (e sseEvent) payload() eventPayload {
	var p eventPayload
	_ = json.Unmarshal(e.data, &p)
	return p
}

// runID extracts the acknowledged run id from a handshake event, in any
// of the framings the remote uses: a nested run object, a run_id field,
// or a bare id on a run-created event.
func (e sseEvent) runID() string {
	p := e.payload()
	if p.Run != nil && p.Run.ID != "" {
		return p.Run.ID
	}
	if p.RunID != "" {
		return p.RunID
	}
	if strings.HasSuffix(e.name, "run.created") && p.ID != "" {
		return p.ID
	}
	return ""
}

func (e sseEvent) text() string {
	p := e.payload()
	if p.Delta != "" {
		return p.Delta
	}
	return p.Text
}

func (e sseEvent) done() bool {
	if bytes.Equal(bytes.TrimSpace(e.data), []byte("[DONE]")) {
		return true
	}
	switch {
	case strings.HasSuffix(e.name, "run.completed"),
		strings.HasSuffix(e.name, "run.failed"),
		strings.HasSuffix(e.name, "run.cancelled"),
		strings.HasSuffix(e.name, "run.expired"),
		e.name == "done":
		return true
	}
	p := e.payload()
	status := p.Status
	if p.Run != nil && p.Run.Status != "" {
		status = p.Run.Status
	}
	switch status {
	case "completed", "failed", "cancelled", "expired":
		return true
	}
	return false
}

// eventReader incrementally parses a text/event-stream body.
type eventReader struct {
	scanner *bufio.Scanner
}

func newEventReader(r io.Reader) *eventReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &eventReader{scanner: scanner}
}

// Next returns the next complete event, or io.EOF once the stream ends.
func (r *eventReader) Next() (sseEvent, error) {
	var (
		event   sseEvent
		sawData bool
	)
	for r.scanner.Scan() {
		line := r.scanner.Text()
		switch {
		case line == "":
			if sawData || event.name != "" {
				return event, nil
			}
			// Leading blank lines between keepalives; keep reading.
		case strings.HasPrefix(line, ":"):
			// Comment / keepalive.
		case strings.HasPrefix(line, "event:"):
			event.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data := strings.TrimPrefix(line, "data:")
			data = strings.TrimPrefix(data, " ")
			if sawData {
				event.data = append(event.data, '\n')
			}
			event.data = append(event.data, data...)
			sawData = true
		}
	}
	if err := r.scanner.Err(); err != nil {
		return sseEvent{}, err
	}
	if sawData || event.name != "" {
		return event, nil
	}
	return sseEvent{}, io.EOF
}
