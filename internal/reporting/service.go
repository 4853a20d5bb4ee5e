package reporting

import (
	"context"
	"errors"
	"time"

	"call-relay/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository is the read side of calls.RunStore that reporting needs.
type Repository interface {
	ListDispatched(ctx context.Context, from, to time.Time) ([]calls.Run, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) RunsSummary(ctx context.Context, req RunsSummaryRequest) (RunsSummary, error) {
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return RunsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return RunsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListDispatched(ctx, req.Range.From, req.Range.To)
	if err != nil {
		return RunsSummary{}, err
	}

	out := RunsSummary{Range: req.Range}
	known := 0
	for _, r := range rows {
		out.TotalRuns++
		switch r.OutcomeTag {
		case calls.OutcomeAnswered:
			out.Answered++
		case calls.OutcomeNotConnected:
			out.NotConnected++
		case calls.OutcomeTooShort:
			out.TooShort++
		case calls.OutcomeDispatchFailed:
			out.DispatchFailed++
		case calls.OutcomeTimedOut:
			out.TimedOut++
		}
		if r.OutcomeTag != "" {
			known++
		}

		switch {
		case r.Stage == calls.StageDone:
			out.Delivered++
		case r.Stage == calls.StageFailed:
			out.Failed++
		case !r.Stage.Terminal():
			out.InProgress++
		}
	}
	if known > 0 {
		out.AnswerRate = float64(out.Answered) / float64(known)
	}
	return out, nil
}
