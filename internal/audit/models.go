package audit

import (
	"errors"
	"time"
)

// Event is one step in a call run's trail. Events are append-only.
// CallID stays empty until the provider accepts the call.
type Event struct {
	ID       string    `json:"id"`
	RunID    string    `json:"run_id"`
	CallID   string    `json:"call_id,omitempty"`
	Stage    string    `json:"stage"`
	Type     EventType `json:"type"`
	Message  string    `json:"message,omitempty"`
	Metadata string    `json:"metadata,omitempty"` // JSON object or empty

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeDispatched EventType = "dispatched"
	EventTypePolled     EventType = "polled"
	EventTypeClassified EventType = "classified"
	EventTypeForwarded  EventType = "forwarded"
	EventTypeFailed     EventType = "failed"
	EventTypeResumed    EventType = "resumed"
	EventTypeSMS        EventType = "sms_sent"
)

var ErrInvalidEvent = errors.New("audit: invalid event")

func (e Event) validate() error {
	if e.RunID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	return nil
}
