package callflow

import (
	"context"
	"time"

	"call-relay/internal/calls"
)

// Gate limits in-flight calls per key. Acquire returns false when the key is busy.
type Gate interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type EventType string

const (
	EventDispatched EventType = "dispatched"
	EventPolled     EventType = "polled"
	EventClassified EventType = "classified"
	EventForwarded  EventType = "forwarded"
	EventFailed     EventType = "failed"
	EventResumed    EventType = "resumed"
)

// StageEvent is a run lifecycle notification.
type StageEvent struct {
	RunID    string
	CallID   string
	Stage    calls.Stage
	Type     EventType
	Message  string
	Metadata map[string]string
}

// StageRecorder receives lifecycle events. Recording is best-effort;
// errors are logged and never fail a run.
type StageRecorder interface {
	RecordStage(ctx context.Context, ev StageEvent) error
}
