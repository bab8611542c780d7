package remote

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CreateError reports a non-success status from a creation POST. Message
// carries the remote-supplied error text when one could be extracted.
type CreateError struct {
	StatusCode int
	Message    string
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("remote create failed (%d): %s", e.StatusCode, e.Message)
}

// FetchError reports a non-success status from a GET.
type FetchError struct {
	StatusCode int
	Message    string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("remote fetch failed (%d): %s", e.StatusCode, e.Message)
}

// errorMessage digs the human-readable message out of an error body. The
// API emits either {"error": {"message": ...}}, {"error": "..."} or
// {"message": "..."}; anything else falls back to the raw body text.
func errorMessage(body []byte) string {
	var structured struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &structured); err == nil {
		if len(structured.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if json.Unmarshal(structured.Error, &nested) == nil && nested.Message != "" {
				return nested.Message
			}
			var plain string
			if json.Unmarshal(structured.Error, &plain) == nil && plain != "" {
				return plain
			}
		}
		if structured.Message != "" {
			return structured.Message
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return "remote API returned an error"
}
