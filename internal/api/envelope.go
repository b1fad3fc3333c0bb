package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Envelope is the response wrapper used by every backend endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// DecodeResponse decodes an envelope response body into out.
//
// Auth-status codes (401/403) are the caller's concern and must be checked
// before calling this; everything else decodes the envelope and maps a
// non-success outcome to a structured failure. A body that isn't a valid
// envelope is also a structured failure, carrying the status for context.
func DecodeResponse(resp *http.Response, out any) error {
	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return NewFailure(resp.StatusCode, fmt.Sprintf("malformed response: %v", err))
	}

	if !env.Success || resp.StatusCode >= 400 {
		return NewFailure(resp.StatusCode, env.Message)
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return NewFailure(resp.StatusCode, fmt.Sprintf("malformed response data: %v", err))
		}
	}

	return nil
}
