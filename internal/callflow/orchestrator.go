package callflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"call-relay/internal/calls"
	"call-relay/pkg/logger"

	"github.com/google/uuid"
)

// Config is the run budget and policy shared by all runs.
type Config struct {
	DispatchMaxAttempts int
	PollInterval        time.Duration
	PollMaxAttempts     int

	// DefaultDestination receives results when a request names no destination.
	DefaultDestination string

	// RequireCalendarID adds CalendarField to the required lead fields.
	RequireCalendarID bool
	CalendarField     string

	// InFlightTTL bounds how long a per-phone gate slot may be held.
	InFlightTTL time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	if out.DispatchMaxAttempts <= 0 {
		out.DispatchMaxAttempts = 3
	}
	if out.PollInterval <= 0 {
		out.PollInterval = 15 * time.Second
	}
	if out.PollMaxAttempts <= 0 {
		out.PollMaxAttempts = 10
	}
	if out.CalendarField == "" {
		out.CalendarField = "calendarId"
	}
	if out.InFlightTTL <= 0 {
		out.InFlightTTL = out.PollBudget() + 2*time.Minute
	}
	return out
}

// PollBudget is the worst-case time spent waiting between polls.
func (c Config) PollBudget() time.Duration {
	if c.PollMaxAttempts <= 1 {
		return 0
	}
	return c.PollInterval * time.Duration(c.PollMaxAttempts-1)
}

// Deps are the collaborators of an Orchestrator. Store, Gate and Recorder are optional.
type Deps struct {
	Dispatcher *Dispatcher
	Poller     *Poller
	Classifier Classifier
	Forwarder  *Forwarder
	Script     *Script

	Store    calls.RunStore
	Gate     Gate
	Recorder StageRecorder

	Now   func() time.Time
	NewID func() string
}

// Orchestrator runs one call lifecycle per request:
// validate, dispatch, poll, classify, forward.
//
// Runs share no mutable state. The first failure ends the run and is returned
// as an *Error tagged with its stage; there is no cross-stage recovery.
type Orchestrator struct {
	cfg Config
	d   Deps
}

func New(cfg Config, d Deps) (*Orchestrator, error) {
	if d.Dispatcher == nil || d.Poller == nil || d.Forwarder == nil {
		return nil, errors.New("callflow: dispatcher, poller and forwarder are required")
	}
	if d.Script == nil {
		s, err := ParseScript("")
		if err != nil {
			return nil, err
		}
		d.Script = s
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	return &Orchestrator{cfg: cfg.withDefaults(), d: d}, nil
}

func (o *Orchestrator) Config() Config { return o.cfg }

// RunRequest is one inbound lead to call. Script overrides the configured template when set.
type RunRequest struct {
	Lead           calls.Lead
	DestinationURL string
	Script         string
}

func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (calls.ForwardResult, error) {
	runID := o.d.NewID()
	log := logger.From(ctx).With("run_id", runID)
	ctx = logger.With(ctx, log)

	lead := req.Lead
	if missing := o.missingFields(lead); len(missing) > 0 {
		return calls.ForwardResult{}, &Error{Stage: calls.StageValidating, Kind: ErrMissingRequiredField, Fields: missing}
	}
	dest := strings.TrimSpace(req.DestinationURL)
	if dest == "" {
		dest = o.cfg.DefaultDestination
	}
	if dest == "" {
		return calls.ForwardResult{}, &Error{Stage: calls.StageValidating, Kind: ErrMissingRequiredField, Fields: []string{"destinationUrl"}}
	}

	phone, err := o.d.Dispatcher.Phone.Normalize(lead.Phone)
	if err != nil {
		return calls.ForwardResult{}, &Error{Stage: calls.StageDispatching, Kind: ErrInvalidPhoneNumber, Err: err}
	}

	release, err := o.hold(ctx, phone)
	if err != nil {
		return calls.ForwardResult{}, err
	}
	defer release()

	failed := calls.Run{
		RunID:          runID,
		Phone:          phone,
		DestinationURL: dest,
		Correlation:    correlationFor(lead),
		Stage:          calls.StageDispatching,
	}
	script := req.Script
	if script == "" {
		script, err = o.d.Script.Render(lead)
		if err != nil {
			err = &Error{Stage: calls.StageDispatching, Kind: ErrDispatchExhausted, Err: err}
			o.dispatchFailed(ctx, failed, err)
			return calls.ForwardResult{}, err
		}
	}

	log.Info("dispatching call", "stage", calls.StageDispatching)
	handle, err := o.d.Dispatcher.Dispatch(ctx, lead, script, o.cfg.DispatchMaxAttempts)
	if err != nil {
		o.dispatchFailed(ctx, failed, err)
		log.Error("call dispatch failed", "stage", calls.StageDispatching, "err", err)
		return calls.ForwardResult{}, err
	}

	now := o.d.Now().UTC()
	run := calls.Run{
		RunID:          runID,
		CallID:         handle.CallID,
		Phone:          handle.Phone,
		DestinationURL: dest,
		Correlation:    correlationFor(lead),
		Stage:          calls.StagePolling,
		DispatchedAt:   handle.DispatchedAt,
		UpdatedAt:      now,
	}
	if o.d.Store != nil {
		if err := o.d.Store.SaveRun(ctx, run); err != nil {
			log.Error("run persist failed, polling without resumption", "call_id", run.CallID, "err", err)
		}
	}
	o.record(ctx, StageEvent{RunID: runID, CallID: run.CallID, Stage: calls.StageDispatching, Type: EventDispatched, Metadata: map[string]string{"phone": run.Phone}})

	return o.track(ctx, run)
}

// Resume continues a persisted run from polling onward.
func (o *Orchestrator) Resume(ctx context.Context, run calls.Run) (calls.ForwardResult, error) {
	log := logger.From(ctx).With("run_id", run.RunID)
	ctx = logger.With(ctx, log)
	if run.Stage.Terminal() {
		return calls.ForwardResult{}, fmt.Errorf("callflow: run %s already %s", run.RunID, run.Stage)
	}
	if run.DestinationURL == "" {
		run.DestinationURL = o.cfg.DefaultDestination
	}
	if o.d.Store != nil {
		ok, err := o.d.Store.ClaimRun(ctx, run.RunID, run.UpdatedAt, o.d.Now().UTC())
		if err != nil {
			return calls.ForwardResult{}, fmt.Errorf("callflow: claim run %s: %w", run.RunID, err)
		}
		if !ok {
			return calls.ForwardResult{}, ErrRunClaimed
		}
	}
	release, err := o.hold(ctx, run.Phone)
	if err != nil {
		return calls.ForwardResult{}, err
	}
	defer release()

	o.record(ctx, StageEvent{RunID: run.RunID, CallID: run.CallID, Stage: run.Stage, Type: EventResumed})
	log.Info("resuming call run", "call_id", run.CallID, "stage", run.Stage)
	return o.track(ctx, run)
}

// ResumePending resumes every non-terminal persisted run concurrently and
// waits for all of them. It returns the number of runs resumed.
func (o *Orchestrator) ResumePending(ctx context.Context, limit int) (int, error) {
	if o.d.Store == nil {
		return 0, nil
	}
	runs, err := o.d.Store.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}
	var wg sync.WaitGroup
	for _, r := range runs {
		wg.Add(1)
		go func(r calls.Run) {
			defer wg.Done()
			_, err := o.Resume(ctx, r)
			switch {
			case errors.Is(err, ErrRunClaimed):
				logger.From(ctx).Info("run already claimed elsewhere", "run_id", r.RunID)
			case err != nil:
				logger.From(ctx).Warn("resumed run failed", "run_id", r.RunID, "call_id", r.CallID, "err", err)
			}
		}(r)
	}
	wg.Wait()
	return len(runs), nil
}

// Lookup polls the provider for an existing call with the configured budget
// and returns the terminal record. Nothing is forwarded.
func (o *Orchestrator) Lookup(ctx context.Context, callID string) (calls.CallRecord, error) {
	if strings.TrimSpace(callID) == "" {
		return calls.CallRecord{}, &Error{Stage: calls.StageValidating, Kind: ErrMissingRequiredField, Fields: []string{"callId"}}
	}
	return o.d.Poller.Poll(ctx, calls.CallHandle{CallID: callID}, o.cfg.PollInterval, o.cfg.PollMaxAttempts)
}

func (o *Orchestrator) track(ctx context.Context, run calls.Run) (calls.ForwardResult, error) {
	log := logger.From(ctx).With("call_id", run.CallID)

	rec, err := o.d.Poller.Poll(ctx, run.Handle(), o.cfg.PollInterval, o.cfg.PollMaxAttempts)
	if err != nil {
		o.fail(ctx, run, err)
		log.Error("call polling failed", "stage", calls.StagePolling, "err", err)
		return calls.ForwardResult{}, err
	}
	o.advance(ctx, run.RunID, calls.StageClassifying, "")
	o.record(ctx, StageEvent{RunID: run.RunID, CallID: run.CallID, Stage: calls.StagePolling, Type: EventPolled, Metadata: map[string]string{"status": rec.ProviderStatus()}})

	outcome := o.d.Classifier.Classify(rec)
	log.Info("call classified", "stage", calls.StageClassifying, "outcome", outcome.Tag, "duration", rec.DurationSeconds)
	o.record(ctx, StageEvent{RunID: run.RunID, CallID: run.CallID, Stage: calls.StageClassifying, Type: EventClassified, Message: string(outcome.Tag)})
	o.advance(ctx, run.RunID, calls.StageForwarding, outcome.Tag)

	res, err := o.d.Forwarder.Forward(ctx, outcome, run.DestinationURL, run.Correlation)
	res.RunID = run.RunID
	if err != nil {
		o.fail(ctx, run, err)
		log.Error("call result forward failed", "stage", calls.StageForwarding, "status_code", res.StatusCode, "err", err)
		return res, err
	}
	o.advance(ctx, run.RunID, calls.StageDone, outcome.Tag)
	o.record(ctx, StageEvent{RunID: run.RunID, CallID: run.CallID, Stage: calls.StageForwarding, Type: EventForwarded, Metadata: map[string]string{"status_code": fmt.Sprint(res.StatusCode)}})
	log.Info("call result forwarded", "stage", calls.StageDone, "status_code", res.StatusCode)
	return res, nil
}

func (o *Orchestrator) missingFields(lead calls.Lead) []string {
	var missing []string
	if strings.TrimSpace(lead.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(lead.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(lead.Email) == "" {
		missing = append(missing, "email")
	}
	if o.cfg.RequireCalendarID && strings.TrimSpace(lead.Correlation[o.cfg.CalendarField]) == "" {
		missing = append(missing, o.cfg.CalendarField)
	}
	return missing
}

// correlationFor copies the lead's correlation fields and adds its contact
// details unless the caller already supplied them.
func correlationFor(lead calls.Lead) map[string]string {
	out := make(map[string]string, len(lead.Correlation)+2)
	for k, v := range lead.Correlation {
		out[k] = v
	}
	if _, ok := out["email"]; !ok {
		out["email"] = lead.Email
	}
	if _, ok := out["name"]; !ok {
		out["name"] = lead.Name
	}
	return out
}

func (o *Orchestrator) fail(ctx context.Context, run calls.Run, err error) {
	withRunID(err, run.RunID)
	// Interrupted runs keep their stage so ResumePending picks them up again.
	if errors.Is(err, ErrCanceled) {
		logger.From(ctx).Info("call run interrupted, left pending", "stage", run.Stage)
		return
	}
	var tag calls.OutcomeTag
	stage := run.Stage
	if e, ok := AsError(err); ok {
		tag = e.Outcome()
		stage = e.Stage
	}
	if o.d.Store != nil {
		if uerr := o.d.Store.UpdateStage(context.WithoutCancel(ctx), run.RunID, calls.StageFailed, tag, err.Error(), o.d.Now().UTC()); uerr != nil {
			logger.From(ctx).Warn("run stage update failed", "stage", calls.StageFailed, "err", uerr)
		}
	}
	o.record(ctx, StageEvent{RunID: run.RunID, CallID: run.CallID, Stage: stage, Type: EventFailed, Message: err.Error()})
}

// hold takes the per-phone in-flight slot. The returned release is always
// safe to call. Gate errors fail open.
func (o *Orchestrator) hold(ctx context.Context, phone string) (func(), error) {
	noop := func() {}
	if o.d.Gate == nil {
		return noop, nil
	}
	log := logger.From(ctx)
	key := "callflow:inflight:" + phone
	ok, err := o.d.Gate.Acquire(ctx, key, o.cfg.InFlightTTL)
	switch {
	case err != nil:
		log.Warn("in-flight gate unavailable, continuing", "err", err)
		return noop, nil
	case !ok:
		return noop, &Error{Stage: calls.StageValidating, Kind: ErrCallInFlight, Err: fmt.Errorf("phone %s", phone)}
	}
	return func() {
		if err := o.d.Gate.Release(context.WithoutCancel(ctx), key); err != nil {
			log.Warn("in-flight gate release failed", "err", err)
		}
	}, nil
}

// dispatchFailed stores a failed row for a run the provider never accepted,
// so reporting counts it.
func (o *Orchestrator) dispatchFailed(ctx context.Context, run calls.Run, err error) {
	withRunID(err, run.RunID)
	o.record(ctx, StageEvent{RunID: run.RunID, Stage: calls.StageDispatching, Type: EventFailed, Message: err.Error()})
	if o.d.Store == nil {
		return
	}
	now := o.d.Now().UTC()
	run.Stage = calls.StageFailed
	run.OutcomeTag = calls.OutcomeDispatchFailed
	if e, ok := AsError(err); ok && e.Outcome() != "" {
		run.OutcomeTag = e.Outcome()
	}
	run.Error = err.Error()
	run.DispatchedAt = now
	run.UpdatedAt = now
	if serr := o.d.Store.SaveRun(context.WithoutCancel(ctx), run); serr != nil {
		logger.From(ctx).Warn("failed run not persisted", "err", serr)
	}
}

func withRunID(err error, runID string) {
	if e, ok := AsError(err); ok && e.RunID == "" {
		e.RunID = runID
	}
}

func (o *Orchestrator) advance(ctx context.Context, runID string, stage calls.Stage, tag calls.OutcomeTag) {
	if o.d.Store == nil {
		return
	}
	if err := o.d.Store.UpdateStage(ctx, runID, stage, tag, "", o.d.Now().UTC()); err != nil {
		logger.From(ctx).Warn("run stage update failed", "stage", stage, "err", err)
	}
}

func (o *Orchestrator) record(ctx context.Context, ev StageEvent) {
	if o.d.Recorder == nil {
		return
	}
	if err := o.d.Recorder.RecordStage(context.WithoutCancel(ctx), ev); err != nil {
		logger.From(ctx).Warn("stage event not recorded", "type", ev.Type, "err", err)
	}
}
