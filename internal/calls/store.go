package calls

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrNotFound     = errors.New("calls: run not found")
	ErrInvalidRun   = errors.New("calls: invalid run")
	ErrDuplicateRun = errors.New("calls: duplicate run")
)

// RunStore persists dispatched runs so polling can resume after a restart.
type RunStore interface {
	SaveRun(ctx context.Context, r Run) error
	UpdateStage(ctx context.Context, runID string, stage Stage, outcome OutcomeTag, errMsg string, now time.Time) error
	GetRun(ctx context.Context, runID string) (Run, error)
	// ListPending returns runs that were dispatched but never reached a terminal stage.
	ListPending(ctx context.Context, limit int) ([]Run, error)
	// ListDispatched returns runs dispatched in [from, to), oldest first.
	ListDispatched(ctx context.Context, from, to time.Time) ([]Run, error)
	// ClaimRun bumps updated_at to now only if the run is non-terminal and
	// still carries the updated_at the caller last saw. At most one caller
	// wins a given snapshot.
	ClaimRun(ctx context.Context, runID string, seen, now time.Time) (bool, error)
}

func validateRun(r Run) error {
	if r.RunID == "" || r.Phone == "" || r.Stage == "" {
		return ErrInvalidRun
	}
	// Runs the provider never accepted have no call ID.
	if r.CallID == "" && r.Stage != StageFailed {
		return ErrInvalidRun
	}
	return nil
}

// MemoryStore is an in-memory RunStore used by tests and by deployments without Postgres.
type MemoryStore struct {
	mu   sync.Mutex
	runs map[string]Run
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string]Run)}
}

func (s *MemoryStore) SaveRun(ctx context.Context, r Run) error {
	if err := validateRun(r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[r.RunID]; ok {
		return ErrDuplicateRun
	}
	s.runs[r.RunID] = cloneRun(r)
	return nil
}

func (s *MemoryStore) UpdateStage(ctx context.Context, runID string, stage Stage, outcome OutcomeTag, errMsg string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return ErrNotFound
	}
	r.Stage = stage
	if outcome != "" {
		r.OutcomeTag = outcome
	}
	r.Error = errMsg
	r.UpdatedAt = now
	s.runs[runID] = r
	return nil
}

func (s *MemoryStore) ClaimRun(ctx context.Context, runID string, seen, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return false, ErrNotFound
	}
	if r.Stage.Terminal() || !r.UpdatedAt.Equal(seen) {
		return false, nil
	}
	r.UpdatedAt = now
	s.runs[runID] = r
	return true, nil
}

func (s *MemoryStore) GetRun(ctx context.Context, runID string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return Run{}, ErrNotFound
	}
	return cloneRun(r), nil
}

func (s *MemoryStore) ListPending(ctx context.Context, limit int) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Run
	for _, r := range s.runs {
		if !r.Stage.Terminal() {
			out = append(out, cloneRun(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DispatchedAt.Before(out[j].DispatchedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListDispatched(ctx context.Context, from, to time.Time) ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Run
	for _, r := range s.runs {
		if r.DispatchedAt.Before(from) || !r.DispatchedAt.Before(to) {
			continue
		}
		out = append(out, cloneRun(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DispatchedAt.Before(out[j].DispatchedAt) })
	return out, nil
}

func cloneRun(r Run) Run {
	if r.Correlation != nil {
		m := make(map[string]string, len(r.Correlation))
		for k, v := range r.Correlation {
			m[k] = v
		}
		r.Correlation = m
	}
	return r
}
