package callflow

import (
	"context"
	"errors"
	"time"

	"call-relay/internal/calls"
	"call-relay/internal/telephony"
	"call-relay/pkg/logger"
)

// WaitFunc blocks for d or until ctx is done.
type WaitFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Poller reads the provider call log until the call is terminal or the
// attempt budget runs out. It waits only between attempts.
type Poller struct {
	Provider telephony.CallProvider
	Wait     WaitFunc
}

func (p *Poller) Poll(ctx context.Context, handle calls.CallHandle, interval time.Duration, maxAttempts int) (calls.CallRecord, error) {
	if p.Provider == nil {
		return calls.CallRecord{}, &Error{Stage: calls.StagePolling, Kind: ErrPollTransport, Err: errors.New("callflow: provider not configured"), CallID: handle.CallID}
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	wait := p.Wait
	if wait == nil {
		wait = sleepCtx
	}
	log := logger.From(ctx).With("call_id", handle.CallID)

	var last *calls.CallRecord
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := wait(ctx, interval); err != nil {
				e := canceled(calls.StagePolling, err, attempt-1)
				e.CallID = handle.CallID
				e.LastRecord = last
				return calls.CallRecord{}, e
			}
		}

		rec, err := p.Provider.FetchLog(ctx, handle.CallID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				e := canceled(calls.StagePolling, ctxErr, attempt)
				e.CallID = handle.CallID
				e.LastRecord = last
				return calls.CallRecord{}, e
			}
			return calls.CallRecord{}, &Error{Stage: calls.StagePolling, Kind: ErrPollTransport, Err: err, Attempts: attempt, CallID: handle.CallID, LastRecord: last}
		}
		if rec.CallID == "" {
			rec.CallID = handle.CallID
		}

		log.Debug("call status polled", "attempt", attempt, "status", rec.ProviderStatus())
		if rec.Terminal() {
			return rec, nil
		}
		r := rec
		last = &r
	}
	return calls.CallRecord{}, &Error{Stage: calls.StagePolling, Kind: ErrPollExhausted, Attempts: maxAttempts, CallID: handle.CallID, LastRecord: last}
}
