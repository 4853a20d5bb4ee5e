package telephony

import (
	"context"
	"errors"
	"fmt"

	"call-relay/internal/calls"
)

// CallProvider is the provider-agnostic surface the call flow depends on.
//
// Rules:
// - No provider HTTP/SDK calls outside telephony adapters.
// - Implementations must honor ctx on every network call.
type CallProvider interface {
	Name() string

	// Dispatch places one outbound call. It never retries.
	Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error)

	// FetchLog returns the provider's current log entry for a call.
	FetchLog(ctx context.Context, callID string) (calls.CallRecord, error)
}

// DispatchRequest is the outbound call payload. Phone must already be normalized.
type DispatchRequest struct {
	PhoneNumber string `json:"phone_number"`
	Task        string `json:"task"`

	Summarize *bool  `json:"summarize,omitempty"`
	Record    *bool  `json:"record,omitempty"`
	Voice     string `json:"voice,omitempty"`
	From      string `json:"from,omitempty"`
}

type DispatchResult struct {
	CallID string `json:"call_id"`
	Status string `json:"status,omitempty"`
}

// ErrMissingCallID is returned when the provider accepted a call request
// but the response does not identify the call.
var ErrMissingCallID = errors.New("telephony: response has no call id")

// StatusError is returned for non-2xx provider responses.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("telephony: %s: provider returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("telephony: %s: provider returned %d: %s", e.Op, e.StatusCode, e.Body)
}

const maxSnippet = 256

// Snippet truncates a provider payload for use in error messages.
func Snippet(b []byte) string {
	if len(b) <= maxSnippet {
		return string(b)
	}
	return string(b[:maxSnippet]) + "..."
}
