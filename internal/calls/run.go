package calls

import "time"

// Stage is the position of a run in the call lifecycle.
type Stage string

const (
	StageValidating  Stage = "validating"
	StageDispatching Stage = "dispatching"
	StagePolling     Stage = "polling"
	StageClassifying Stage = "classifying"
	StageForwarding  Stage = "forwarding"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Terminal reports whether a run in this stage will make no further progress.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Run is the durable row written once a call has been dispatched.
//
// It exists so a restarted process can resume polling a call it already paid for.
// Rows are keyed by RunID; CallID is unique per provider.
type Run struct {
	RunID          string            `json:"run_id" db:"run_id"`
	CallID         string            `json:"call_id" db:"call_id"`
	Phone          string            `json:"phone" db:"phone"`
	DestinationURL string            `json:"destination_url" db:"destination_url"`
	Correlation    map[string]string `json:"correlation,omitempty" db:"correlation"`

	Stage      Stage      `json:"stage" db:"stage"`
	OutcomeTag OutcomeTag `json:"outcome,omitempty" db:"outcome"`
	Error      string     `json:"error,omitempty" db:"error"`

	DispatchedAt time.Time `json:"dispatched_at" db:"dispatched_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Handle rebuilds the provider handle a resumed run polls with.
func (r Run) Handle() CallHandle {
	return CallHandle{CallID: r.CallID, Phone: r.Phone, DispatchedAt: r.DispatchedAt}
}
