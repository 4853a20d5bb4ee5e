package callflow

import (
	"errors"
	"fmt"
	"strings"

	"call-relay/internal/calls"
)

// Failure kinds. Every run failure unwraps to exactly one of these.
var (
	ErrInvalidPhoneNumber    = errors.New("callflow: invalid phone number")
	ErrMissingRequiredField  = errors.New("callflow: missing required field")
	ErrDispatchExhausted     = errors.New("callflow: dispatch attempts exhausted")
	ErrMalformedResponse     = errors.New("callflow: malformed provider response")
	ErrPollTransport         = errors.New("callflow: poll transport error")
	ErrPollExhausted         = errors.New("callflow: poll attempts exhausted")
	ErrForwardDeliveryFailed = errors.New("callflow: forward delivery failed")
	ErrCallInFlight          = errors.New("callflow: call already in flight for phone")
	ErrCanceled              = errors.New("callflow: run canceled")
	// ErrRunClaimed means another worker already resumed the run.
	ErrRunClaimed = errors.New("callflow: run claimed by another worker")
)

// Error is a stage-tagged run failure.
//
// errors.Is matches both Kind and the underlying cause.
type Error struct {
	Stage calls.Stage
	Kind  error
	Err   error

	// Fields lists absent inputs for ErrMissingRequiredField.
	Fields []string
	// LastRecord is the last non-terminal record seen before ErrPollExhausted.
	LastRecord *calls.CallRecord
	// Attempts is the number of provider requests made by the failing stage.
	Attempts int
	// CallID is set once the provider has accepted the call.
	CallID string
	// RunID is set once the run has reached dispatch.
	RunID string
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Stage))
	b.WriteString(": ")
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	} else {
		b.WriteString("callflow: failure")
	}
	if len(e.Fields) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Fields, ", "))
		b.WriteString(")")
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempt(s)", e.Attempts)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Outcome maps a failure to the outcome tag recorded for the run.
// Only dispatch and poll budget failures have an outcome; others return "".
func (e *Error) Outcome() calls.OutcomeTag {
	switch {
	case errors.Is(e.Kind, ErrDispatchExhausted), errors.Is(e.Kind, ErrMalformedResponse):
		return calls.OutcomeDispatchFailed
	case errors.Is(e.Kind, ErrPollExhausted):
		return calls.OutcomeTimedOut
	default:
		return ""
	}
}

// AsError returns the stage error carried by err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func canceled(stage calls.Stage, err error, attempts int) *Error {
	return &Error{Stage: stage, Kind: ErrCanceled, Err: err, Attempts: attempts}
}
