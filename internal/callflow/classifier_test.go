package callflow

import (
	"testing"

	"call-relay/internal/calls"

	"github.com/stretchr/testify/require"
)

func TestClassifier_Deterministic(t *testing.T) {
	c := Classifier{MinAnswered: DefaultMinAnswered}
	rec := calls.CallRecord{CallID: "abc123", RawStatus: "completed", DurationSeconds: 12}
	require.Equal(t, c.Classify(rec), c.Classify(rec))
}

func TestClassifier_Tags(t *testing.T) {
	c := Classifier{MinAnswered: DefaultMinAnswered}
	cases := []struct {
		d    float64
		want calls.OutcomeTag
	}{
		{0, calls.OutcomeNotConnected},
		{-1, calls.OutcomeNotConnected},
		{0.1, calls.OutcomeTooShort},
		{0.79, calls.OutcomeTooShort},
		{0.8, calls.OutcomeAnswered},
		{45.2, calls.OutcomeAnswered},
	}
	for _, tc := range cases {
		got := c.Classify(calls.CallRecord{RawStatus: "completed", DurationSeconds: tc.d})
		require.Equal(t, tc.want, got.Tag, "duration %v", tc.d)
		require.NotNil(t, got.Record)
	}
}

func TestClassifier_ZeroThresholdDisablesTooShort(t *testing.T) {
	got := Classifier{}.Classify(calls.CallRecord{DurationSeconds: 0.1})
	require.Equal(t, calls.OutcomeAnswered, got.Tag)
}

func TestReportedStatus(t *testing.T) {
	c := Classifier{MinAnswered: DefaultMinAnswered}

	notConnected := c.Classify(calls.CallRecord{RawStatus: "completed", DurationSeconds: 0})
	require.Equal(t, "failed", ReportedStatus(notConnected))
	rec := BuildRecord(notConnected, nil)
	require.Equal(t, "failed", rec[FieldCallStatus])
	require.Equal(t, "completed", rec[FieldCallTag])

	answered := c.Classify(calls.CallRecord{RawStatus: "completed", DurationSeconds: 45.2})
	require.Equal(t, calls.OutcomeAnswered, answered.Tag)
	require.Equal(t, "completed", ReportedStatus(answered))

	require.Equal(t, "failed", ReportedStatus(calls.Outcome{Tag: calls.OutcomeTimedOut}))
}

func TestReportedStatusFollowsFailed(t *testing.T) {
	rec := &calls.CallRecord{RawStatus: "completed", DurationSeconds: 30}
	tags := []calls.OutcomeTag{
		calls.OutcomeAnswered,
		calls.OutcomeNotConnected,
		calls.OutcomeTimedOut,
		calls.OutcomeDispatchFailed,
	}
	for _, tag := range tags {
		o := calls.Outcome{Tag: tag, Record: rec}
		if o.Failed() {
			require.Equal(t, "failed", ReportedStatus(o), "tag %s", tag)
		} else {
			require.Equal(t, "completed", ReportedStatus(o), "tag %s", tag)
		}
	}
}
