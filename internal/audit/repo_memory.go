package audit

import (
	"context"
	"sync"
)

// MemoryRepo keeps events in process, indexed by run. It never evicts.
type MemoryRepo struct {
	mu    sync.RWMutex
	all   []Event
	byRun map[string][]int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byRun: make(map[string][]int)}
}

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	r.byRun[e.RunID] = append(r.byRun[e.RunID], len(r.all))
	r.all = append(r.all, e)
	r.mu.Unlock()
	return nil
}

// Events returns every event in append order.
func (r *MemoryRepo) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Event(nil), r.all...)
}

func (r *MemoryRepo) ListByRun(_ context.Context, runID string) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := r.byRun[runID]
	out := make([]Event, 0, len(idx))
	for _, i := range idx {
		out = append(out, r.all[i])
	}
	return out, nil
}
