package types

import "time"

type EventType string

const (
	EventThreadCreated EventType = "thread.created"
	EventRunCreated    EventType = "run.created"
	EventRunCompleted  EventType = "run.completed"
	EventRunFailed     EventType = "run.failed"
	EventStreamStarted EventType = "stream.started"
	EventStreamReset   EventType = "stream.reset"
	EventSyncStarted   EventType = "sync.started"
	EventSyncCompleted EventType = "sync.completed"
	EventSyncPartial   EventType = "sync.partial"
)

type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	ThreadID  string    `json:"threadId,omitempty"`
	RunID     string    `json:"runId,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
}
