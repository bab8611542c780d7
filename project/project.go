// Package project maps raw remote payload shapes onto the canonical
// local records. Projections are pure: no I/O, no mutation of input.
package project

import (
	"fmt"
	"time"

	"github.com/carebridgehq/assistant-sync-go/normalize"
	"github.com/carebridgehq/assistant-sync-go/remote"
	"github.com/carebridgehq/assistant-sync-go/types"
)

// Run projects one raw run onto a canonical Run. The output always has a
// non-empty id and thread id even when the raw payload is partial: a
// missing id is synthesized so the local record never lacks a primary
// key.
func Run(raw remote.RunShape, threadID, fallbackUserID string) types.Run {
	id := raw.ID
	if id == "" {
		id = fmt.Sprintf("run_%d", time.Now().UnixMilli())
	}
	if threadID == "" {
		threadID = raw.ThreadID
	}
	userID := raw.UserID
	if userID == "" {
		userID = fallbackUserID
	}

	run := types.Run{
		ID:          id,
		RunID:       id,
		ThreadID:    threadID,
		AssistantID: raw.AssistantID,
		UserID:      userID,
		Status:      types.ParseRunStatus(raw.Status),

		CreatedAt:   normalize.Timestamp(raw.CreatedAt),
		UpdatedAt:   normalize.Timestamp(raw.UpdatedAt),
		StartedAt:   normalize.Timestamp(raw.StartedAt),
		CompletedAt: normalize.Timestamp(raw.CompletedAt),
		CancelledAt: normalize.Timestamp(raw.CancelledAt),
		FailedAt:    normalize.Timestamp(raw.FailedAt),
		ExpiresAt:   normalize.Timestamp(raw.ExpiresAt),

		Temperature: normalize.Float(raw.Temperature),
		TopP:        normalize.Float(raw.TopP),

		Model:                  raw.Model,
		Instructions:           raw.Instructions,
		AdditionalInstructions: raw.AdditionalInstructions,
		MaxPromptTokens:        normalize.Int(raw.MaxPromptTokens),
		MaxCompletionTokens:    normalize.Int(raw.MaxCompletionTokens),
		ParallelToolCalls:      raw.ParallelToolCalls,
		Tools:                  raw.Tools,
		ResponseFormat:         raw.ResponseFormat,
		ToolChoice:             raw.ToolChoice,
		TruncationStrategy:     raw.TruncationStrategy,
		RequiredAction:         raw.RequiredAction,
		Metadata:               raw.Metadata,
	}

	if raw.LastError != nil {
		run.LastError = raw.LastError.Message
	}
	if raw.Usage != nil {
		run.PromptTokens = normalize.Int(raw.Usage.PromptTokens)
		run.CompletionTokens = normalize.Int(raw.Usage.CompletionTokens)
		run.TotalTokens = normalize.Int(raw.Usage.TotalTokens)
	}
	return run
}

// Runs projects a flattened run list for one thread.
func Runs(raws []remote.RunShape, threadID, fallbackUserID string) []types.Run {
	out := make([]types.Run, 0, len(raws))
	for _, raw := range raws {
		out = append(out, Run(raw, threadID, fallbackUserID))
	}
	return out
}

// Thread projects a raw thread onto a canonical Thread. Status defaults
// to active when the remote omits it; messages always start as an empty
// ordered sequence, never nil.
func Thread(raw remote.ThreadShape, fallbackUserID string) types.Thread {
	userID := raw.UserID
	if userID == "" {
		userID = fallbackUserID
	}
	status := types.ThreadStatus(raw.Status)
	if status == "" {
		status = types.ThreadStatusActive
	}
	return types.Thread{
		ID:            raw.ID,
		UserID:        userID,
		AssistantID:   raw.AssistantID,
		Status:        status,
		Title:         raw.Title,
		Messages:      []types.Message{},
		Metadata:      raw.Metadata,
		ToolResources: raw.ToolResources,
		CreatedAt:     normalize.Timestamp(raw.CreatedAt),
		UpdatedAt:     normalize.Timestamp(raw.UpdatedAt),
	}
}
