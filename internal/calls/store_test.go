package calls

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestMemoryStore_SaveAndUpdate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	r := Run{
		RunID:        "run-1",
		CallID:       "abc123",
		Phone:        "+15551234567",
		Correlation:  map[string]string{"calendarId": "cal-1"},
		Stage:        StagePolling,
		DispatchedAt: now,
		UpdatedAt:    now,
	}
	if err := s.SaveRun(ctx, r); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveRun(ctx, r); !errors.Is(err, ErrDuplicateRun) {
		t.Fatalf("expected duplicate, got %v", err)
	}

	r.Correlation["calendarId"] = "mutated"
	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Correlation["calendarId"] != "cal-1" {
		t.Fatalf("store must not alias caller maps, got %q", got.Correlation["calendarId"])
	}

	if err := s.UpdateStage(ctx, "run-1", StageDone, OutcomeAnswered, "", now.Add(time.Minute)); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = s.GetRun(ctx, "run-1")
	if got.Stage != StageDone || got.OutcomeTag != OutcomeAnswered {
		t.Fatalf("unexpected run: %+v", got)
	}
	if err := s.UpdateStage(ctx, "missing", StageDone, "", "", now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMemoryStore_ListPendingSkipsTerminal(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	for i, st := range []Stage{StagePolling, StageDone, StageForwarding, StageFailed} {
		r := Run{
			RunID:        string(rune('a' + i)),
			CallID:       "call-" + string(rune('a'+i)),
			Phone:        "+15551234567",
			Stage:        st,
			DispatchedAt: base.Add(time.Duration(-i) * time.Minute),
		}
		if err := s.SaveRun(ctx, r); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	pending, err := s.ListPending(ctx, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending, got %d", len(pending))
	}
	// oldest first
	if pending[0].Stage != StageForwarding || pending[1].Stage != StagePolling {
		t.Fatalf("unexpected order: %+v", pending)
	}
}

func TestMemoryStore_ListDispatchedWindow(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Unix(1700000000, 0).UTC()

	for i := 0; i < 4; i++ {
		r := Run{
			RunID:        "run-" + string(rune('a'+i)),
			CallID:       "call-" + string(rune('a'+i)),
			Phone:        "+15551234567",
			Stage:        StageDone,
			DispatchedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := s.SaveRun(ctx, r); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	// [base+1h, base+3h) holds runs b and c; the upper bound is exclusive.
	got, err := s.ListDispatched(ctx, base.Add(time.Hour), base.Add(3*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].RunID != "run-b" || got[1].RunID != "run-c" {
		t.Fatalf("unexpected window: %+v", got)
	}
}

func TestMemoryStore_RejectsIncompleteRun(t *testing.T) {
	s := NewMemoryStore()
	if err := s.SaveRun(context.Background(), Run{RunID: "r"}); !errors.Is(err, ErrInvalidRun) {
		t.Fatalf("expected invalid run, got %v", err)
	}
}

func TestMemoryStore_FailedRunWithoutCallID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	r := Run{
		RunID:        "run-x",
		Phone:        "+15551234567",
		Stage:        StageFailed,
		OutcomeTag:   OutcomeDispatchFailed,
		Error:        "dispatching: dispatch attempts exhausted",
		DispatchedAt: now,
		UpdatedAt:    now,
	}
	if err := s.SaveRun(ctx, r); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.ListDispatched(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].OutcomeTag != OutcomeDispatchFailed {
		t.Fatalf("unexpected runs: %+v", got)
	}

	r.RunID = "run-y"
	r.Stage = StagePolling
	if err := s.SaveRun(ctx, r); !errors.Is(err, ErrInvalidRun) {
		t.Fatalf("non-failed run without call id must be rejected, got %v", err)
	}
}

func TestMemoryStore_ClaimRunOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	r := Run{RunID: "run-1", CallID: "abc", Phone: "+15551234567", Stage: StagePolling, DispatchedAt: now, UpdatedAt: now}
	if err := s.SaveRun(ctx, r); err != nil {
		t.Fatalf("save: %v", err)
	}

	ok, err := s.ClaimRun(ctx, "run-1", now, now.Add(time.Second))
	if err != nil || !ok {
		t.Fatalf("first claim: ok=%v err=%v", ok, err)
	}
	ok, err = s.ClaimRun(ctx, "run-1", now, now.Add(2*time.Second))
	if err != nil || ok {
		t.Fatalf("second claim on a stale snapshot must lose: ok=%v err=%v", ok, err)
	}

	if err := s.UpdateStage(ctx, "run-1", StageDone, OutcomeAnswered, "", now.Add(3*time.Second)); err != nil {
		t.Fatalf("update: %v", err)
	}
	ok, _ = s.ClaimRun(ctx, "run-1", now.Add(3*time.Second), now.Add(4*time.Second))
	if ok {
		t.Fatal("terminal run must not be claimable")
	}
	if _, err := s.ClaimRun(ctx, "missing", now, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSchemaDeclaresTables(t *testing.T) {
	ddl, err := Schema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	for _, table := range []string{"call_runs", "call_events"} {
		if !strings.Contains(ddl, table) {
			t.Fatalf("expected %s in schema", table)
		}
	}
	if !strings.Contains(ddl, "ALTER COLUMN call_id DROP NOT NULL") {
		t.Fatal("call_id must be nullable for failed dispatches")
	}
}

func TestOutcomeFailed(t *testing.T) {
	if (Outcome{Tag: OutcomeAnswered}).Failed() {
		t.Fatalf("answered must not be failed")
	}
	for _, tag := range []OutcomeTag{OutcomeNotConnected, OutcomeTooShort, OutcomeTimedOut, OutcomeDispatchFailed} {
		if !(Outcome{Tag: tag}).Failed() {
			t.Fatalf("%s must be failed", tag)
		}
	}
}

func TestCallRecordTerminal(t *testing.T) {
	cases := []struct {
		rec  CallRecord
		want bool
	}{
		{CallRecord{QueueStatus: "complete"}, true},
		{CallRecord{RawStatus: " Completed "}, true},
		{CallRecord{QueueStatus: "in-progress", RawStatus: "completed"}, false},
		{CallRecord{RawStatus: "queued"}, false},
		{CallRecord{}, false},
	}
	for _, tc := range cases {
		if got := tc.rec.Terminal(); got != tc.want {
			t.Fatalf("Terminal(%+v) = %v, want %v", tc.rec, got, tc.want)
		}
	}
}
