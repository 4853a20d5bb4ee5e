package callflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"call-relay/internal/calls"

	"github.com/stretchr/testify/require"
)

func TestPoller_ExhaustsAfterMaxAttempts(t *testing.T) {
	p := &fakeProvider{}
	w := &recordingWait{}
	poller := &Poller{Provider: p, Wait: w.Wait}

	_, err := poller.Poll(context.Background(), calls.CallHandle{CallID: "abc123"}, 15*time.Second, 10)
	require.ErrorIs(t, err, ErrPollExhausted)
	require.Equal(t, 10, p.fetchCount())
	require.Len(t, w.waits, 9)
	for _, d := range w.waits {
		require.Equal(t, 15*time.Second, d)
	}

	e, ok := AsError(err)
	require.True(t, ok)
	require.NotNil(t, e.LastRecord)
	require.Equal(t, "in-progress", e.LastRecord.RawStatus)
	require.Equal(t, calls.OutcomeTimedOut, e.Outcome())
}

func TestPoller_TerminalReturnsWithoutWaiting(t *testing.T) {
	p := &fakeProvider{logs: []calls.CallRecord{{CallID: "abc123", RawStatus: "completed", DurationSeconds: 30}}}
	w := &recordingWait{}
	poller := &Poller{Provider: p, Wait: w.Wait}

	rec, err := poller.Poll(context.Background(), calls.CallHandle{CallID: "abc123"}, time.Second, 10)
	require.NoError(t, err)
	require.Equal(t, 30.0, rec.DurationSeconds)
	require.Equal(t, 1, p.fetchCount())
	require.Empty(t, w.waits)
}

func TestPoller_SupersedesEarlierRecords(t *testing.T) {
	p := &fakeProvider{logs: []calls.CallRecord{
		{QueueStatus: "queued"},
		{QueueStatus: "in-progress"},
		{QueueStatus: "complete", RawStatus: "completed", DurationSeconds: 5, Transcript: "final"},
	}}
	w := &recordingWait{}
	poller := &Poller{Provider: p, Wait: w.Wait}

	rec, err := poller.Poll(context.Background(), calls.CallHandle{CallID: "abc123"}, time.Second, 10)
	require.NoError(t, err)
	require.Equal(t, "final", rec.Transcript)
	require.Equal(t, "abc123", rec.CallID)
	require.Len(t, w.waits, 2)
}

func TestPoller_TransportErrorIsImmediate(t *testing.T) {
	boom := errors.New("dial tcp: refused")
	p := &fakeProvider{logErr: boom}
	w := &recordingWait{}
	poller := &Poller{Provider: p, Wait: w.Wait}

	_, err := poller.Poll(context.Background(), calls.CallHandle{CallID: "abc123"}, time.Second, 10)
	require.ErrorIs(t, err, ErrPollTransport)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrPollExhausted)
	require.Equal(t, 1, p.fetchCount())
	require.Empty(t, w.waits)
}

func TestPoller_CanceledDuringWait(t *testing.T) {
	p := &fakeProvider{}
	poller := &Poller{Provider: p}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := poller.Poll(ctx, calls.CallHandle{CallID: "abc123"}, time.Hour, 10)
	require.ErrorIs(t, err, ErrCanceled)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, 1, p.fetchCount())
}
