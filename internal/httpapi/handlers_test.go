package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"call-relay/internal/audit"
	"call-relay/internal/auth"
	"call-relay/internal/callflow"
	"call-relay/internal/calls"
	"call-relay/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	runs    []callflow.RunRequest
	runRes  calls.ForwardResult
	runErr  error
	lookups []string
	rec     calls.CallRecord
	lookErr error
}

func (f *fakeRunner) Run(ctx context.Context, req callflow.RunRequest) (calls.ForwardResult, error) {
	f.runs = append(f.runs, req)
	return f.runRes, f.runErr
}

func (f *fakeRunner) Lookup(ctx context.Context, callID string) (calls.CallRecord, error) {
	f.lookups = append(f.lookups, callID)
	return f.rec, f.lookErr
}

type fakeSMS struct {
	to, bodies []string
	err        error
}

func (f *fakeSMS) SendSMS(ctx context.Context, to, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.to = append(f.to, to)
	f.bodies = append(f.bodies, body)
	return "SM1", nil
}

func newRouter(h Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/token", h.Token)
	r.GET("/status", h.Status)
	r.POST("/webhook", h.Webhook)
	r.POST("/logs", h.Logs)
	r.POST("/check-conditions", h.CheckConditions)
	return r
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestToken(t *testing.T) {
	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret"})
	require.NoError(t, err)
	now := time.Unix(1700000000, 0).UTC()
	r := newRouter(Handlers{Auth: m, Now: func() time.Time { return now }})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/token", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body := decode(t, w)
	tok, _ := body["token"].(string)
	require.NotEmpty(t, tok)
	claims, err := m.Verify(tok, now)
	require.NoError(t, err)
	require.Equal(t, "blandAI", claims.Service)
}

func TestWebhook_RunsLeadAndReturnsRecord(t *testing.T) {
	runner := &fakeRunner{runRes: calls.ForwardResult{RunID: "run-1", Delivered: true, Record: map[string]any{"call_id": "abc123"}}}
	r := newRouter(Handlers{Calls: runner})

	w := postJSON(r, "/webhook", `{"data":{"phoneNumber":"+15551234567","name":"Jane","email":"jane@x.com","calendarId":"cal-1","destinationUrl":"https://crm/hook","score":7,"nested":{"a":1}}}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, "abc123", body["message"].(map[string]any)["call_id"])
	require.Equal(t, "run-1", body["run_id"])

	require.Len(t, runner.runs, 1)
	got := runner.runs[0]
	require.Equal(t, "+15551234567", got.Lead.Phone)
	require.Equal(t, "Jane", got.Lead.Name)
	require.Equal(t, "jane@x.com", got.Lead.Email)
	require.Equal(t, "https://crm/hook", got.DestinationURL)
	require.Equal(t, map[string]string{"calendarId": "cal-1", "email": "jane@x.com", "score": "7"}, got.Lead.Correlation)
}

func TestWebhook_RejectsBadBody(t *testing.T) {
	runner := &fakeRunner{}
	r := newRouter(Handlers{Calls: runner})

	require.Equal(t, http.StatusBadRequest, postJSON(r, "/webhook", `nope`).Code)
	require.Equal(t, http.StatusBadRequest, postJSON(r, "/webhook", `{}`).Code)
	require.Empty(t, runner.runs)
}

func TestWebhook_ErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&callflow.Error{Stage: calls.StageValidating, Kind: callflow.ErrMissingRequiredField, Fields: []string{"email"}}, http.StatusBadRequest},
		{&callflow.Error{Stage: calls.StageDispatching, Kind: callflow.ErrInvalidPhoneNumber}, http.StatusBadRequest},
		{&callflow.Error{Stage: calls.StageValidating, Kind: callflow.ErrCallInFlight}, http.StatusConflict},
		{&callflow.Error{Stage: calls.StageDispatching, Kind: callflow.ErrDispatchExhausted, Attempts: 3}, http.StatusBadGateway},
		{&callflow.Error{Stage: calls.StageDispatching, Kind: callflow.ErrMalformedResponse}, http.StatusBadGateway},
		{&callflow.Error{Stage: calls.StagePolling, Kind: callflow.ErrPollTransport}, http.StatusBadGateway},
		{&callflow.Error{Stage: calls.StagePolling, Kind: callflow.ErrPollExhausted, CallID: "abc123"}, http.StatusGatewayTimeout},
		{&callflow.Error{Stage: calls.StageForwarding, Kind: callflow.ErrForwardDeliveryFailed}, http.StatusBadGateway},
		{errors.New("unexpected"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		r := newRouter(Handlers{Calls: &fakeRunner{runErr: tc.err}})
		w := postJSON(r, "/webhook", `{"data":{"phoneNumber":"+15551234567","name":"Jane","email":"jane@x.com"}}`)
		require.Equal(t, tc.want, w.Code, "err %v", tc.err)
	}

	r := newRouter(Handlers{Calls: &fakeRunner{runErr: &callflow.Error{Stage: calls.StageValidating, Kind: callflow.ErrMissingRequiredField, Fields: []string{"email"}}}})
	body := decode(t, postJSON(r, "/webhook", `{"data":{}}`))
	require.Equal(t, "validating", body["stage"])
	require.Equal(t, []any{"email"}, body["fields"])
	require.NotContains(t, body, "run_id")

	r = newRouter(Handlers{Calls: &fakeRunner{runErr: &callflow.Error{Stage: calls.StagePolling, Kind: callflow.ErrPollExhausted, CallID: "abc123", RunID: "run-7"}}})
	body = decode(t, postJSON(r, "/webhook", `{"data":{}}`))
	require.Equal(t, "run-7", body["run_id"])
	require.Equal(t, "timed_out", body["outcome"])
}

func TestLogs(t *testing.T) {
	runner := &fakeRunner{rec: calls.CallRecord{CallID: "abc123", RawStatus: "completed", DurationSeconds: 12, RecordingURL: "https://rec"}}
	r := newRouter(Handlers{Calls: runner})

	require.Equal(t, http.StatusBadRequest, postJSON(r, "/logs", `{}`).Code)

	w := postJSON(r, "/logs", `{"callId":"abc123"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	require.Equal(t, "abc123", body["call_id"])
	require.Equal(t, "completed", body["call_status"])
	require.Equal(t, "https://rec", body["call_recording"])
	require.Equal(t, []string{"abc123"}, runner.lookups)
}

func TestCheckConditions(t *testing.T) {
	sms := &fakeSMS{}
	runner := &fakeRunner{runRes: calls.ForwardResult{Delivered: true, Record: map[string]any{"call_id": "abc123"}}}
	events := audit.NewMemoryRepo()
	now := time.Date(2024, 10, 19, 9, 0, 0, 0, time.UTC)
	r := newRouter(Handlers{Calls: runner, SMS: sms, Audit: audit.NewService(events), Now: func() time.Time { return now }})

	w := postJSON(r, "/check-conditions", `{"conditionType":["reminder","scheduling","call","bogus"],"userData":{"name":"Jane","phone":"555-123-4567","email":"jane@x.com","calendarId":"cal-1"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Results []conditionResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Results, 4)
	require.Equal(t, "sent", body.Results[0].Status)
	require.Equal(t, "sent", body.Results[1].Status)
	require.Equal(t, "completed", body.Results[2].Status)
	require.Equal(t, "skipped", body.Results[3].Status)

	require.Equal(t, []string{"+15551234567", "+15551234567"}, sms.to)
	require.Equal(t, reminderText, sms.bodies[0])
	require.Equal(t, "Your appointment is scheduled for 2024-10-20 at 10:00 AM", sms.bodies[1])

	require.Len(t, runner.runs, 1)
	require.Equal(t, "cal-1", runner.runs[0].Lead.Correlation["calendarId"])
	require.Empty(t, runner.runs[0].DestinationURL)
	require.Len(t, events.Events(), 2)
}

func TestCheckConditions_SingleStringAndFailures(t *testing.T) {
	r := newRouter(Handlers{SMS: &fakeSMS{err: errors.New("twilio down")}})

	w := postJSON(r, "/check-conditions", `{"conditionType":"reminder","userData":{"phone":"+15551234567"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Results []conditionResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Results, 1)
	require.Equal(t, "failed", body.Results[0].Status)
	require.Contains(t, body.Results[0].Error, "twilio down")

	require.Equal(t, http.StatusBadRequest, postJSON(r, "/check-conditions", `{"userData":{}}`).Code)
	require.Equal(t, http.StatusBadRequest, postJSON(r, "/check-conditions", `{"conditionType":5}`).Code)
}
