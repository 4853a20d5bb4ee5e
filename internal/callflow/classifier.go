package callflow

import (
	"time"

	"call-relay/internal/calls"
)

// DefaultMinAnswered is the shortest call length treated as a real conversation.
const DefaultMinAnswered = 800 * time.Millisecond

// Classifier maps a terminal call record to an outcome. It performs no I/O.
type Classifier struct {
	// MinAnswered is used verbatim; zero disables the too-short check.
	MinAnswered time.Duration
}

func (c Classifier) Classify(rec calls.CallRecord) calls.Outcome {
	r := rec
	d := rec.DurationSeconds
	switch {
	case d <= 0:
		return calls.Outcome{Tag: calls.OutcomeNotConnected, Record: &r}
	case d < c.MinAnswered.Seconds():
		return calls.Outcome{Tag: calls.OutcomeTooShort, Record: &r}
	default:
		return calls.Outcome{Tag: calls.OutcomeAnswered, Record: &r}
	}
}

// ReportedStatus is the call_status sent downstream. Calls that never became a
// conversation are reported as "failed"; answered calls keep the provider status.
func ReportedStatus(o calls.Outcome) string {
	if !o.Failed() && o.Record != nil {
		return o.Record.RawStatus
	}
	return "failed"
}
