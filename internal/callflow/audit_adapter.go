package callflow

import (
	"context"

	"call-relay/internal/audit"
)

// AuditAdapter bridges stage events to the shared audit.Service.
type AuditAdapter struct {
	Audit *audit.Service
}

func (a AuditAdapter) RecordStage(ctx context.Context, ev StageEvent) error {
	if a.Audit == nil {
		return nil
	}
	return a.Audit.LogStage(ctx, ev.RunID, ev.CallID, string(ev.Stage), auditType(ev.Type), ev.Message, ev.Metadata)
}

func auditType(t EventType) audit.EventType {
	switch t {
	case EventDispatched:
		return audit.EventTypeDispatched
	case EventPolled:
		return audit.EventTypePolled
	case EventClassified:
		return audit.EventTypeClassified
	case EventForwarded:
		return audit.EventTypeForwarded
	case EventResumed:
		return audit.EventTypeResumed
	default:
		return audit.EventTypeFailed
	}
}
