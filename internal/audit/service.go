package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository stores events. There is no update or delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByRun(ctx context.Context, runID string) ([]Event, error)
}

var errNoRepo = errors.New("audit: repository not configured")

// Service writes and reads run trails. Writers treat failures as non-fatal.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Record stamps ID and CreatedAt when unset and appends e.
func (s *Service) Record(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errNoRepo
	}
	if err := e.validate(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	return s.repo.Append(ctx, e)
}

func (s *Service) LogStage(ctx context.Context, runID, callID, stage string, typ EventType, message string, metadata map[string]string) error {
	e := Event{RunID: runID, CallID: callID, Stage: stage, Type: typ, Message: message}
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		e.Metadata = string(b)
	}
	return s.Record(ctx, e)
}

// LogSMS records a text sent outside a call run, keyed by its message sid.
func (s *Service) LogSMS(ctx context.Context, sid, condition, to string) error {
	return s.LogStage(ctx, sid, "", condition, EventTypeSMS, "sms sent", map[string]string{"to": to})
}

// Trail returns the events of one run, oldest first.
func (s *Service) Trail(ctx context.Context, runID string) ([]Event, error) {
	if s.repo == nil {
		return nil, errNoRepo
	}
	if runID == "" {
		return nil, ErrInvalidEvent
	}
	return s.repo.ListByRun(ctx, runID)
}
