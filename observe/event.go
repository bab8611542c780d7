package observe

import "time"

type Kind string

type Status string

const (
	KindThread Kind = "thread"
	KindRun    Kind = "run"
	KindStream Kind = "stream"
	KindSync   Kind = "sync"
	KindCustom Kind = "custom"
)

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusWarning   Status = "warning"
)

type Event struct {
	ID         string         `json:"id,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Kind       Kind           `json:"kind"`
	Status     Status         `json:"status,omitempty"`
	ThreadID   string         `json:"threadId,omitempty"`
	RunID      string         `json:"runId,omitempty"`
	UserID     string         `json:"userId,omitempty"`
	Name       string         `json:"name,omitempty"`
	Message    string         `json:"message,omitempty"`
	Error      string         `json:"error,omitempty"`
	DurationMs int64          `json:"durationMs,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

func (e *Event) Normalize() {
	if e == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Kind == "" {
		e.Kind = KindCustom
	}
	if e.Attributes == nil {
		e.Attributes = map[string]any{}
	}
}
