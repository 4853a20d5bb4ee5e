package calls

import (
	"encoding/json"
	"strings"
	"time"
)

// Lead is the contact a run places a call to.
//
// Correlation carries caller-supplied fields (calendar id, email, crm ids)
// that are passed through verbatim to the destination record.
type Lead struct {
	Name        string            `json:"name"`
	Phone       string            `json:"phone"`
	Email       string            `json:"email"`
	Correlation map[string]string `json:"correlation,omitempty"`
}

// CallHandle identifies a call accepted by the provider.
type CallHandle struct {
	CallID       string    `json:"call_id"`
	Phone        string    `json:"phone"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// CallRecord is a snapshot of the provider's call log.
// A newer poll always supersedes an older record for the same call.
type CallRecord struct {
	CallID    string `json:"call_id"`
	To        string `json:"to"`
	From      string `json:"from"`
	RawStatus string `json:"status"`
	// QueueStatus is the provider's lifecycle status, when reported separately.
	QueueStatus string `json:"queue_status,omitempty"`

	// DurationSeconds is fractional; providers report sub-second call lengths.
	DurationSeconds float64 `json:"duration"`

	Transcript   string `json:"transcript,omitempty"`
	Summary      string `json:"summary,omitempty"`
	RecordingURL string `json:"recording_url,omitempty"`
}

type OutcomeTag string

const (
	OutcomeAnswered       OutcomeTag = "answered"
	OutcomeNotConnected   OutcomeTag = "not_connected"
	OutcomeTooShort       OutcomeTag = "too_short"
	OutcomeDispatchFailed OutcomeTag = "dispatch_failed"
	OutcomeTimedOut       OutcomeTag = "timed_out"
)

// Outcome is the classified result of a run.
//
// Invariants:
// - OutcomeDispatchFailed never carries a record.
// - OutcomeTimedOut carries the last non-terminal record, or nil if none was seen.
type Outcome struct {
	Tag    OutcomeTag  `json:"tag"`
	Record *CallRecord `json:"record,omitempty"`
}

// Failed reports whether downstream systems should treat the call as not reached.
func (o Outcome) Failed() bool {
	switch o.Tag {
	case OutcomeAnswered:
		return false
	default:
		return true
	}
}

// ForwardResult is the terminal artifact of a run.
type ForwardResult struct {
	RunID      string          `json:"run_id,omitempty"`
	Delivered  bool            `json:"delivered"`
	StatusCode int             `json:"status_code,omitempty"`
	Response   json.RawMessage `json:"response,omitempty"`
	Error      string          `json:"error,omitempty"`

	// Record is the flat body that was posted to the destination.
	Record map[string]any `json:"record,omitempty"`
}

// ProviderStatus is the status used for terminal detection: the queue status
// when the provider reports one, else the raw call status. Trimmed and lower-cased.
func (r CallRecord) ProviderStatus() string {
	s := r.QueueStatus
	if strings.TrimSpace(s) == "" {
		s = r.RawStatus
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// Terminal reports whether the provider has finished with the call.
func (r CallRecord) Terminal() bool {
	switch r.ProviderStatus() {
	case "complete", "completed":
		return true
	default:
		return false
	}
}
