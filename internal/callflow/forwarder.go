package callflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"call-relay/internal/calls"
	"call-relay/internal/telephony"
)

// Keys of the flat record posted downstream.
const (
	FieldCallID         = "call_id"
	FieldCallTo         = "call_to"
	FieldCallFrom       = "call_from"
	FieldCallTag        = "call_tag"
	FieldCallStatus     = "call_status"
	FieldCallOutcome    = "call_outcome"
	FieldCallDuration   = "call_duration"
	FieldCallTranscript = "call_transcript"
	FieldCallSummary    = "call_summary"
	FieldCallRecording  = "call_recording"
)

var recordFields = map[string]struct{}{
	FieldCallID: {}, FieldCallTo: {}, FieldCallFrom: {}, FieldCallTag: {}, FieldCallStatus: {},
	FieldCallOutcome: {}, FieldCallDuration: {}, FieldCallTranscript: {}, FieldCallSummary: {}, FieldCallRecording: {},
}

// BuildRecord flattens an outcome and correlation metadata into the
// downstream record. Correlation keys never replace call_* fields.
func BuildRecord(o calls.Outcome, correlation map[string]string) map[string]any {
	out := make(map[string]any, len(recordFields)+len(correlation))
	for k, v := range correlation {
		if _, reserved := recordFields[k]; reserved {
			continue
		}
		out[k] = v
	}

	var rec calls.CallRecord
	if o.Record != nil {
		rec = *o.Record
	}
	out[FieldCallID] = rec.CallID
	out[FieldCallTo] = rec.To
	out[FieldCallFrom] = rec.From
	out[FieldCallTag] = rec.RawStatus
	out[FieldCallStatus] = ReportedStatus(o)
	out[FieldCallOutcome] = string(o.Tag)
	out[FieldCallDuration] = rec.DurationSeconds
	out[FieldCallTranscript] = rec.Transcript
	out[FieldCallSummary] = rec.Summary
	out[FieldCallRecording] = rec.RecordingURL
	return out
}

// Forwarder posts the flat record to the destination webhook exactly once.
type Forwarder struct {
	HTTP *http.Client
}

func NewForwarder(timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Forwarder{HTTP: &http.Client{Timeout: timeout}}
}

func (f *Forwarder) Forward(ctx context.Context, o calls.Outcome, destinationURL string, correlation map[string]string) (calls.ForwardResult, error) {
	record := BuildRecord(o, correlation)
	res := calls.ForwardResult{Record: record}
	callID, _ := record[FieldCallID].(string)

	fail := func(status int, err error) (calls.ForwardResult, error) {
		res.Delivered = false
		res.StatusCode = status
		res.Error = err.Error()
		return res, &Error{Stage: calls.StageForwarding, Kind: ErrForwardDeliveryFailed, Err: err, Attempts: 1, CallID: callID}
	}

	dest := strings.TrimSpace(destinationURL)
	if dest == "" {
		res.Error = "destination url is empty"
		return res, &Error{Stage: calls.StageForwarding, Kind: ErrForwardDeliveryFailed, Err: errors.New("callflow: destination url is empty"), CallID: callID}
	}

	body, err := json.Marshal(record)
	if err != nil {
		return fail(0, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, dest, bytes.NewReader(body))
	if err != nil {
		return fail(0, err)
	}
	req.Header.Set("Content-Type", "application/json")

	hc := f.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fail(0, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fail(resp.StatusCode, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fail(resp.StatusCode, fmt.Errorf("destination returned %d: %s", resp.StatusCode, telephony.Snippet(raw)))
	}

	res.Delivered = true
	res.StatusCode = resp.StatusCode
	res.Response = responseJSON(raw)
	return res, nil
}

// responseJSON keeps JSON responses as-is and wraps anything else as a JSON string.
func responseJSON(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	b, err := json.Marshal(string(trimmed))
	if err != nil {
		return nil
	}
	return b
}
