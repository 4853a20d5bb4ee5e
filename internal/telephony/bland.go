package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"call-relay/internal/calls"

	"golang.org/x/time/rate"
)

// BlandConfig configures the conversational-AI calling provider client.
type BlandConfig struct {
	BaseURL      string
	APIKey       string
	DispatchPath string
	LogsPath     string
	Timeout      time.Duration

	// RPS and Burst pace every request sent to the provider. RPS <= 0 disables pacing.
	RPS   float64
	Burst int
}

func (c BlandConfig) withDefaults() BlandConfig {
	out := c
	if out.BaseURL == "" {
		out.BaseURL = "https://api.bland.ai"
	}
	out.BaseURL = strings.TrimRight(out.BaseURL, "/")
	if out.DispatchPath == "" {
		out.DispatchPath = "/call"
	}
	if out.LogsPath == "" {
		out.LogsPath = "/logs"
	}
	if out.Timeout <= 0 {
		out.Timeout = 30 * time.Second
	}
	if out.Burst <= 0 {
		out.Burst = 1
	}
	return out
}

// BlandClient talks to a Bland-style REST API: POST /call to dispatch and
// POST /logs to read the call log.
type BlandClient struct {
	cfg     BlandConfig
	http    *http.Client
	limiter *rate.Limiter
}

func NewBlandClient(cfg BlandConfig, hc *http.Client) (*BlandClient, error) {
	cfg = cfg.withDefaults()
	if cfg.APIKey == "" {
		return nil, errors.New("telephony: provider api key is required")
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RPS > 0 {
		limit = rate.Limit(cfg.RPS)
	}
	return &BlandClient{
		cfg:     cfg,
		http:    hc,
		limiter: rate.NewLimiter(limit, cfg.Burst),
	}, nil
}

func (c *BlandClient) Name() string { return "bland" }

type dispatchResponse struct {
	Status    string `json:"status"`
	CallID    string `json:"call_id"`
	CallIDAlt string `json:"callId"`
}

func (c *BlandClient) Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	body, err := c.post(ctx, "dispatch", c.cfg.DispatchPath, req)
	if err != nil {
		return DispatchResult{}, err
	}
	var resp dispatchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return DispatchResult{}, fmt.Errorf("%w: %v", ErrMissingCallID, err)
	}
	id := strings.TrimSpace(resp.CallID)
	if id == "" {
		id = strings.TrimSpace(resp.CallIDAlt)
	}
	if id == "" {
		return DispatchResult{}, ErrMissingCallID
	}
	return DispatchResult{CallID: id, Status: resp.Status}, nil
}

type logRequest struct {
	CallID string `json:"call_id"`
}

type logResponse struct {
	CallID       string    `json:"call_id"`
	To           string    `json:"to"`
	From         string    `json:"from"`
	Status       string    `json:"status"`
	QueueStatus  string    `json:"queue_status"`
	CallLength   flexFloat `json:"call_length"`
	Transcript   string    `json:"concatenated_transcript"`
	Summary      string    `json:"summary"`
	RecordingURL string    `json:"recording_url"`
}

func (c *BlandClient) FetchLog(ctx context.Context, callID string) (calls.CallRecord, error) {
	if strings.TrimSpace(callID) == "" {
		return calls.CallRecord{}, errors.New("telephony: call id is required")
	}
	body, err := c.post(ctx, "logs", c.cfg.LogsPath, logRequest{CallID: callID})
	if err != nil {
		return calls.CallRecord{}, err
	}
	var resp logResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return calls.CallRecord{}, fmt.Errorf("telephony: decode log: %w", err)
	}
	rec := calls.CallRecord{
		CallID:          resp.CallID,
		To:              resp.To,
		From:            resp.From,
		RawStatus:       resp.Status,
		QueueStatus:     resp.QueueStatus,
		DurationSeconds: float64(resp.CallLength),
		Transcript:      resp.Transcript,
		Summary:         resp.Summary,
		RecordingURL:    resp.RecordingURL,
	}
	if rec.CallID == "" {
		rec.CallID = callID
	}
	return rec, nil
}

func (c *BlandClient) post(ctx context.Context, op, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authorization", c.authorization())

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, &StatusError{Op: op, StatusCode: res.StatusCode, Body: Snippet(body)}
	}
	return body, nil
}

func (c *BlandClient) authorization() string {
	if strings.HasPrefix(c.cfg.APIKey, "Bearer ") {
		return c.cfg.APIKey
	}
	return "Bearer " + c.cfg.APIKey
}

// flexFloat accepts numbers, numeric strings and null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("call_length: %w", err)
	}
	*f = flexFloat(v)
	return nil
}
