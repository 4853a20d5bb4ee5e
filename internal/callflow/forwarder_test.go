package callflow

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"call-relay/internal/calls"

	"github.com/stretchr/testify/require"
)

func TestBuildRecord_CorrelationNeverOverridesCallFields(t *testing.T) {
	o := calls.Outcome{Tag: calls.OutcomeAnswered, Record: &calls.CallRecord{CallID: "abc123", RawStatus: "completed", DurationSeconds: 45.2}}
	rec := BuildRecord(o, map[string]string{"call_id": "spoofed", "calendarId": "cal-1", "email": "jane@x.com"})

	require.Equal(t, "abc123", rec[FieldCallID])
	require.Equal(t, "cal-1", rec["calendarId"])
	require.Equal(t, "jane@x.com", rec["email"])
	require.Equal(t, "answered", rec[FieldCallOutcome])
	require.Equal(t, 45.2, rec[FieldCallDuration])
}

func TestBuildRecord_NilRecord(t *testing.T) {
	rec := BuildRecord(calls.Outcome{Tag: calls.OutcomeTimedOut}, nil)
	require.Equal(t, "", rec[FieldCallID])
	require.Equal(t, "failed", rec[FieldCallStatus])
	require.Equal(t, "timed_out", rec[FieldCallOutcome])
}

func TestForwarder_PostsOnce(t *testing.T) {
	var hits int
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	f := NewForwarder(time.Second)
	o := calls.Outcome{Tag: calls.OutcomeAnswered, Record: &calls.CallRecord{CallID: "abc123", RawStatus: "completed", DurationSeconds: 30}}
	res, err := f.Forward(context.Background(), o, srv.URL, map[string]string{"calendarId": "cal-1"})
	require.NoError(t, err)
	require.True(t, res.Delivered)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.JSONEq(t, `{"ok":true}`, string(res.Response))
	require.Equal(t, 1, hits)
	require.Equal(t, "abc123", got["call_id"])
	require.Equal(t, "cal-1", got["calendarId"])
}

func TestForwarder_Non2xxIsDeliveryFailure(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("x", 1000)))
	}))
	defer srv.Close()

	f := NewForwarder(time.Second)
	res, err := f.Forward(context.Background(), calls.Outcome{Tag: calls.OutcomeAnswered, Record: &calls.CallRecord{CallID: "abc123"}}, srv.URL, nil)
	require.ErrorIs(t, err, ErrForwardDeliveryFailed)
	require.False(t, res.Delivered)
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)
	require.Equal(t, 1, hits)
	require.Less(t, len(res.Error), 400)
}

func TestForwarder_EmptyDestination(t *testing.T) {
	f := &Forwarder{}
	res, err := f.Forward(context.Background(), calls.Outcome{Tag: calls.OutcomeAnswered}, " ", nil)
	require.ErrorIs(t, err, ErrForwardDeliveryFailed)
	require.False(t, res.Delivered)
}

func TestForwarder_NonJSONResponseIsWrapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("accepted"))
	}))
	defer srv.Close()

	res, err := NewForwarder(time.Second).Forward(context.Background(), calls.Outcome{Tag: calls.OutcomeAnswered}, srv.URL, nil)
	require.NoError(t, err)
	require.JSONEq(t, `"accepted"`, string(res.Response))
}
