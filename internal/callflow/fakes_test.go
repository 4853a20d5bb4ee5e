package callflow

import (
	"context"
	"sync"
	"time"

	"call-relay/internal/calls"
	"call-relay/internal/telephony"
)

type fakeProvider struct {
	mu sync.Mutex

	dispatchErrs []error
	dispatchID   string
	dispatched   []telephony.DispatchRequest

	logs      []calls.CallRecord
	logErr    error
	fetches   int
	fetchedID []string
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Dispatch(ctx context.Context, req telephony.DispatchRequest) (telephony.DispatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, req)
	if n := len(f.dispatched); n <= len(f.dispatchErrs) && f.dispatchErrs[n-1] != nil {
		return telephony.DispatchResult{}, f.dispatchErrs[n-1]
	}
	return telephony.DispatchResult{CallID: f.dispatchID}, nil
}

func (f *fakeProvider) FetchLog(ctx context.Context, callID string) (calls.CallRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	f.fetchedID = append(f.fetchedID, callID)
	if f.logErr != nil {
		return calls.CallRecord{}, f.logErr
	}
	if len(f.logs) == 0 {
		return calls.CallRecord{CallID: callID, RawStatus: "in-progress", QueueStatus: "in-progress"}, nil
	}
	i := f.fetches - 1
	if i >= len(f.logs) {
		i = len(f.logs) - 1
	}
	return f.logs[i], nil
}

func (f *fakeProvider) dispatchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatched)
}

func (f *fakeProvider) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

type recordingWait struct {
	mu    sync.Mutex
	waits []time.Duration
	err   error
}

func (w *recordingWait) Wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waits = append(w.waits, d)
	return w.err
}

type fakeGate struct {
	mu       sync.Mutex
	busy     map[string]bool
	err      error
	released []string
}

func (g *fakeGate) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return false, g.err
	}
	if g.busy == nil {
		g.busy = map[string]bool{}
	}
	if g.busy[key] {
		return false, nil
	}
	g.busy[key] = true
	return true, nil
}

func (g *fakeGate) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.busy, key)
	g.released = append(g.released, key)
	return nil
}
