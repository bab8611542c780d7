package types

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type ThreadStatus string

const (
	ThreadStatusActive   ThreadStatus = "active"
	ThreadStatusInactive ThreadStatus = "inactive"
)

// Thread is a conversation session owned by the remote assistant API.
// The id is always remote-assigned; this module never generates one.
type Thread struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId,omitempty"`
	AssistantID   string          `json:"assistantId,omitempty"`
	Status        ThreadStatus    `json:"status"`
	Title         string          `json:"title,omitempty"`
	Messages      []Message       `json:"messages"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	ToolResources json.RawMessage `json:"toolResources,omitempty"`
	CreatedAt     *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt     *time.Time      `json:"updatedAt,omitempty"`
}

type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
	RunStatusCancelled  RunStatus = "cancelled"
	RunStatusExpired    RunStatus = "expired"
	RunStatusUnknown    RunStatus = "unknown"
)

// Terminal reports whether the remote system will never advance the run
// past this status.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired:
		return true
	}
	return false
}

// ParseRunStatus maps a raw status string onto the known run lifecycle,
// falling back to RunStatusUnknown for anything unrecognized.
func ParseRunStatus(raw string) RunStatus {
	switch RunStatus(raw) {
	case RunStatusQueued, RunStatusInProgress, RunStatusCompleted,
		RunStatusFailed, RunStatusCancelled, RunStatusExpired:
		return RunStatus(raw)
	}
	return RunStatusUnknown
}

// Run is one remote execution of an assistant against a thread. Every
// field except ID and ThreadID is optional; nullable numerics stay nil
// when the remote payload omits them.
type Run struct {
	ID       string `json:"id"`
	RunID    string `json:"runId"` // alias of ID kept for older cache readers
	ThreadID string `json:"threadId"`

	AssistantID string    `json:"assistantId,omitempty"`
	UserID      string    `json:"userId,omitempty"`
	Status      RunStatus `json:"status"`

	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	FailedAt    *time.Time `json:"failedAt,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`

	LastError string `json:"lastError,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"topP,omitempty"`

	PromptTokens     *int `json:"promptTokens,omitempty"`
	CompletionTokens *int `json:"completionTokens,omitempty"`
	TotalTokens      *int `json:"totalTokens,omitempty"`

	Model                  string          `json:"model,omitempty"`
	Instructions           string          `json:"instructions,omitempty"`
	AdditionalInstructions string          `json:"additionalInstructions,omitempty"`
	MaxPromptTokens        *int            `json:"maxPromptTokens,omitempty"`
	MaxCompletionTokens    *int            `json:"maxCompletionTokens,omitempty"`
	ParallelToolCalls      bool            `json:"parallelToolCalls,omitempty"`
	Tools                  json.RawMessage `json:"tools,omitempty"`
	ResponseFormat         json.RawMessage `json:"responseFormat,omitempty"`
	ToolChoice             json.RawMessage `json:"toolChoice,omitempty"`
	TruncationStrategy     json.RawMessage `json:"truncationStrategy,omitempty"`
	RequiredAction         json.RawMessage `json:"requiredAction,omitempty"`
	Metadata               map[string]any  `json:"metadata,omitempty"`
}

// RunSettings carries caller-side configuration for originating a run.
// Stream selects the live-stream path instead of the blocking create.
type RunSettings struct {
	Stream                 bool            `json:"stream,omitempty"`
	Model                  string          `json:"model,omitempty"`
	Instructions           string          `json:"instructions,omitempty"`
	AdditionalInstructions string          `json:"additionalInstructions,omitempty"`
	Temperature            *float64        `json:"temperature,omitempty"`
	TopP                   *float64        `json:"topP,omitempty"`
	MaxPromptTokens        *int            `json:"maxPromptTokens,omitempty"`
	MaxCompletionTokens    *int            `json:"maxCompletionTokens,omitempty"`
	ParallelToolCalls      bool            `json:"parallelToolCalls,omitempty"`
	Tools                  json.RawMessage `json:"tools,omitempty"`
	ResponseFormat         json.RawMessage `json:"responseFormat,omitempty"`
	ToolChoice             json.RawMessage `json:"toolChoice,omitempty"`
	TruncationStrategy     json.RawMessage `json:"truncationStrategy,omitempty"`
	Metadata               map[string]any  `json:"metadata,omitempty"`
}

// UserThreadData is the flattened result of a bulk per-user sync: every
// thread the user owns plus every run across those threads.
type UserThreadData struct {
	UserID  string   `json:"userId"`
	Threads []Thread `json:"threads"`
	Runs    []Run    `json:"runs"`
}
