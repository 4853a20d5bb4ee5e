package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// RunsSummaryRequest selects runs by dispatch time.
type RunsSummaryRequest struct {
	Range TimeRange `json:"range"`
}

// RunsSummary aggregates call runs by outcome and by where they stopped.
type RunsSummary struct {
	Range TimeRange `json:"range"`

	TotalRuns int `json:"total_runs"`

	Answered       int `json:"answered"`
	NotConnected   int `json:"not_connected"`
	TooShort       int `json:"too_short"`
	DispatchFailed int `json:"dispatch_failed"`
	TimedOut       int `json:"timed_out"`

	// Stage counts.
	Delivered  int `json:"delivered"`
	Failed     int `json:"failed"`
	InProgress int `json:"in_progress"`

	// AnswerRate is Answered over runs with a known outcome.
	AnswerRate float64 `json:"answer_rate"`
}
