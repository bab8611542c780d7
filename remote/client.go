// Package remote is the HTTP boundary to the assistant thread/run API.
// It owns request construction, response decoding, and the typed errors
// callers branch on; it performs no field normalization beyond shape
// decoding.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carebridgehq/assistant-sync-go/types"
)

const defaultTimeout = 60 * time.Second

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("remote base URL is required")
	}
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// CreateRunRequest is the wire body for originating a run, blocking or
// streamed.
type CreateRunRequest struct {
	AssistantID string           `json:"assistant_id"`
	Settings    SettingsPayload  `json:"settings"`
	Messages    []MessagePayload `json:"messages,omitempty"`
}

type SettingsPayload struct {
	Stream                 bool            `json:"stream,omitempty"`
	Model                  string          `json:"model,omitempty"`
	Instructions           string          `json:"instructions,omitempty"`
	AdditionalInstructions string          `json:"additional_instructions,omitempty"`
	Temperature            *float64        `json:"temperature,omitempty"`
	TopP                   *float64        `json:"top_p,omitempty"`
	MaxPromptTokens        *int            `json:"max_prompt_tokens,omitempty"`
	MaxCompletionTokens    *int            `json:"max_completion_tokens,omitempty"`
	ParallelToolCalls      bool            `json:"parallel_tool_calls,omitempty"`
	Tools                  json.RawMessage `json:"tools,omitempty"`
	ResponseFormat         json.RawMessage `json:"response_format,omitempty"`
	ToolChoice             json.RawMessage `json:"tool_choice,omitempty"`
	TruncationStrategy     json.RawMessage `json:"truncation_strategy,omitempty"`
	Metadata               map[string]any  `json:"metadata,omitempty"`
}

type MessagePayload struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewCreateRunRequest converts canonical settings and messages into the
// wire shape the API expects.
func NewCreateRunRequest(assistantID string, settings types.RunSettings, messages []types.Message) CreateRunRequest {
	payload := CreateRunRequest{
		AssistantID: assistantID,
		Settings: SettingsPayload{
			Stream:                 settings.Stream,
			Model:                  settings.Model,
			Instructions:           settings.Instructions,
			AdditionalInstructions: settings.AdditionalInstructions,
			Temperature:            settings.Temperature,
			TopP:                   settings.TopP,
			MaxPromptTokens:        settings.MaxPromptTokens,
			MaxCompletionTokens:    settings.MaxCompletionTokens,
			ParallelToolCalls:      settings.ParallelToolCalls,
			Tools:                  settings.Tools,
			ResponseFormat:         settings.ResponseFormat,
			ToolChoice:             settings.ToolChoice,
			TruncationStrategy:     settings.TruncationStrategy,
			Metadata:               settings.Metadata,
		},
	}
	for _, m := range messages {
		payload.Messages = append(payload.Messages, MessagePayload{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return payload
}

// ListThreads fetches every thread owned by a user.
func (c *Client) ListThreads(ctx context.Context, userID string) ([]ThreadShape, error) {
	endpoint := c.baseURL + "/threads"
	if strings.TrimSpace(userID) != "" {
		endpoint += "?user_id=" + url.QueryEscape(userID)
	}
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data []ThreadShape `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode threads payload: %w", err)
	}
	if envelope.Data == nil {
		return []ThreadShape{}, nil
	}
	return envelope.Data, nil
}

// CreateThread asks the remote API for a new thread. The id in the
// response is authoritative; this client never invents one.
func (c *Client) CreateThread(ctx context.Context) (CreatedThread, error) {
	body, err := c.post(ctx, c.baseURL+"/threads", []byte(`{}`))
	if err != nil {
		return CreatedThread{}, err
	}

	var created CreatedThread
	if err := json.Unmarshal(body, &created); err != nil {
		return CreatedThread{}, fmt.Errorf("failed to decode created thread: %w", err)
	}
	if created.ThreadID == "" {
		created.ThreadID = created.Thread.ID
	}
	if created.ThreadID == "" {
		return CreatedThread{}, fmt.Errorf("remote API returned a thread without an id")
	}
	return created, nil
}

// ListRuns fetches the runs of one thread, flattening both response
// shapes the API emits.
func (c *Client) ListRuns(ctx context.Context, threadID string) ([]RunShape, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, fmt.Errorf("thread id is required")
	}
	body, err := c.get(ctx, c.baseURL+"/threads/"+url.PathEscape(threadID)+"/run")
	if err != nil {
		return nil, err
	}
	return DecodeRunsPayload(body)
}

// CreateRun issues a blocking run creation and returns the raw run the
// API acknowledged.
func (c *Client) CreateRun(ctx context.Context, threadID string, req CreateRunRequest) (RunShape, error) {
	if strings.TrimSpace(threadID) == "" {
		return RunShape{}, fmt.Errorf("thread id is required")
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return RunShape{}, fmt.Errorf("failed to marshal run request: %w", err)
	}
	body, err := c.post(ctx, c.baseURL+"/threads/"+url.PathEscape(threadID)+"/run", raw)
	if err != nil {
		return RunShape{}, err
	}

	var envelope struct {
		Run *RunShape `json:"run"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return RunShape{}, fmt.Errorf("failed to decode created run: %w", err)
	}
	if envelope.Run == nil {
		return RunShape{}, fmt.Errorf("remote API returned no run object")
	}
	return *envelope.Run, nil
}

// OpenStream opens the live run stream for a thread. The caller owns the
// returned body and must close it; handshake interpretation lives in the
// stream package.
func (c *Client) OpenStream(ctx context.Context, threadID string, req CreateRunRequest) (io.ReadCloser, error) {
	if strings.TrimSpace(threadID) == "" {
		return nil, fmt.Errorf("thread id is required")
	}
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/threads/"+url.PathEscape(threadID)+"/stream", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create stream request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, &CreateError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return resp.Body, nil
}

// streamClient mirrors the configured client without a global timeout,
// which would kill long-lived streams mid-flight.
func (c *Client) streamClient() *http.Client {
	clone := *c.httpClient
	clone.Timeout = 0
	return &clone
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &FetchError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, endpoint string, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &CreateError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
