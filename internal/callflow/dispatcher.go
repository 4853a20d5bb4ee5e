package callflow

import (
	"context"
	"errors"
	"time"

	"call-relay/internal/calls"
	"call-relay/internal/telephony"
	"call-relay/pkg/logger"
)

// DispatchOptions are provider call settings applied to every dispatch.
type DispatchOptions struct {
	Summarize *bool
	Record    *bool
	Voice     string
	From      string
}

// Dispatcher places the outbound call with bounded immediate retry.
//
// Dispatch is not idempotent: a retry after an ambiguous failure (e.g. a
// timeout after the provider accepted the call) can place a second call.
type Dispatcher struct {
	Provider telephony.CallProvider
	Phone    PhonePolicy
	Options  DispatchOptions
	Now      func() time.Time
}

func (d *Dispatcher) Dispatch(ctx context.Context, lead calls.Lead, script string, maxAttempts int) (calls.CallHandle, error) {
	phone, err := d.Phone.Normalize(lead.Phone)
	if err != nil {
		return calls.CallHandle{}, &Error{Stage: calls.StageDispatching, Kind: ErrInvalidPhoneNumber, Err: err}
	}
	if d.Provider == nil {
		return calls.CallHandle{}, &Error{Stage: calls.StageDispatching, Kind: ErrDispatchExhausted, Err: errors.New("callflow: provider not configured")}
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}

	req := telephony.DispatchRequest{
		PhoneNumber: phone,
		Task:        script,
		Summarize:   d.Options.Summarize,
		Record:      d.Options.Record,
		Voice:       d.Options.Voice,
		From:        d.Options.From,
	}
	log := logger.From(ctx)

	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return calls.CallHandle{}, canceled(calls.StageDispatching, err, attempt-1)
		}

		res, err := d.Provider.Dispatch(ctx, req)
		if err == nil {
			return calls.CallHandle{CallID: res.CallID, Phone: phone, DispatchedAt: now().UTC()}, nil
		}
		if errors.Is(err, telephony.ErrMissingCallID) {
			return calls.CallHandle{}, &Error{Stage: calls.StageDispatching, Kind: ErrMalformedResponse, Err: err, Attempts: attempt}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return calls.CallHandle{}, canceled(calls.StageDispatching, ctxErr, attempt)
		}

		last = err
		log.Warn("call dispatch failed", "provider", d.Provider.Name(), "attempt", attempt, "max_attempts", maxAttempts, "err", err)
	}
	return calls.CallHandle{}, &Error{Stage: calls.StageDispatching, Kind: ErrDispatchExhausted, Err: last, Attempts: maxAttempts}
}
