package observe

import (
	"strings"

	"github.com/carebridgehq/assistant-sync-go/types"
)

// FromSyncEvent converts a lifecycle event emitted by the sync layer
// into the sink event shape.
func FromSyncEvent(in types.Event) Event {
	e := Event{
		Timestamp: in.Timestamp,
		ThreadID:  in.ThreadID,
		RunID:     in.RunID,
		UserID:    in.UserID,
		Message:   in.Message,
		Error:     in.Error,
		Attributes: map[string]any{
			"eventType": string(in.Type),
		},
	}

	eventType := string(in.Type)
	switch {
	case strings.HasPrefix(eventType, "thread."):
		e.Kind = KindThread
	case strings.HasPrefix(eventType, "run."):
		e.Kind = KindRun
	case strings.HasPrefix(eventType, "stream."):
		e.Kind = KindStream
	case strings.HasPrefix(eventType, "sync."):
		e.Kind = KindSync
	default:
		e.Kind = KindCustom
	}

	switch {
	case strings.HasSuffix(eventType, "started") || strings.HasSuffix(eventType, "created"):
		e.Status = StatusStarted
	case strings.HasSuffix(eventType, "failed"):
		e.Status = StatusFailed
	case strings.HasSuffix(eventType, "partial"):
		e.Status = StatusWarning
	default:
		e.Status = StatusCompleted
	}
	return e
}
