package remote

import (
	"encoding/json"
	"fmt"
)

// ThreadShape is a thread record exactly as the remote API returns it.
// Timestamps are left untyped because the API mixes RFC3339 strings and
// unix epochs; projection normalizes them.
type ThreadShape struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	AssistantID   string          `json:"assistant_id"`
	Status        string          `json:"status"`
	Title         string          `json:"title"`
	CreatedAt     any             `json:"created_at"`
	UpdatedAt     any             `json:"updated_at"`
	Metadata      map[string]any  `json:"metadata"`
	ToolResources json.RawMessage `json:"tool_resources"`
}

// RunShape is a run record exactly as the remote API returns it. Numeric
// fields stay untyped because the API occasionally stringifies them.
type RunShape struct {
	ID          string `json:"id"`
	ThreadID    string `json:"thread_id"`
	AssistantID string `json:"assistant_id"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`

	CreatedAt   any `json:"created_at"`
	UpdatedAt   any `json:"updated_at"`
	StartedAt   any `json:"started_at"`
	CompletedAt any `json:"completed_at"`
	CancelledAt any `json:"cancelled_at"`
	FailedAt    any `json:"failed_at"`
	ExpiresAt   any `json:"expires_at"`

	LastError *RunLastError `json:"last_error"`
	Usage     *RunUsage     `json:"usage"`

	Temperature         any `json:"temperature"`
	TopP                any `json:"top_p"`
	MaxPromptTokens     any `json:"max_prompt_tokens"`
	MaxCompletionTokens any `json:"max_completion_tokens"`

	Model                  string          `json:"model"`
	Instructions           string          `json:"instructions"`
	AdditionalInstructions string          `json:"additional_instructions"`
	ParallelToolCalls      bool            `json:"parallel_tool_calls"`
	Tools                  json.RawMessage `json:"tools"`
	ResponseFormat         json.RawMessage `json:"response_format"`
	ToolChoice             json.RawMessage `json:"tool_choice"`
	TruncationStrategy     json.RawMessage `json:"truncation_strategy"`
	RequiredAction         json.RawMessage `json:"required_action"`
	Metadata               map[string]any  `json:"metadata"`
}

type RunLastError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RunUsage struct {
	PromptTokens     any `json:"prompt_tokens"`
	CompletionTokens any `json:"completion_tokens"`
	TotalTokens      any `json:"total_tokens"`
}

// CreatedThread is the response of a thread creation call.
type CreatedThread struct {
	ThreadID string      `json:"threadId"`
	Thread   ThreadShape `json:"thread"`
}

// runsEnvelope covers both run payload shapes the API emits: a list
// under "data" or a singleton under "run".
type runsEnvelope struct {
	Data []RunShape `json:"data"`
	Run  *RunShape  `json:"run"`
}

// DecodeRunsPayload normalizes the two run response shapes into one flat
// slice. A payload with neither key decodes as zero runs, which is a
// valid state for a thread, not an error.
func DecodeRunsPayload(raw []byte) ([]RunShape, error) {
	var envelope runsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode runs payload: %w", err)
	}
	if envelope.Run != nil {
		return append(envelope.Data, *envelope.Run), nil
	}
	if envelope.Data == nil {
		return []RunShape{}, nil
	}
	return envelope.Data, nil
}
