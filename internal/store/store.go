package store

import (
	"context"
	"sync"

	"pulsehub/internal/pipeline"
)

// Store is the persistence collaborator the hub talks to. Persistence is
// best-effort from the hub's point of view: a store failure never fails an
// aggregation cycle.
type Store interface {
	SaveSnapshot(ctx context.Context, snapshot *pipeline.Snapshot) error
	LoadSnapshot(ctx context.Context) (*pipeline.Snapshot, error)
	SaveAlert(ctx context.Context, alert pipeline.Alert) error
	AlertHistory(ctx context.Context, limit int) ([]pipeline.Alert, error)
	Close() error
}

// MemoryStore keeps the last snapshot and a capped alert history in memory.
// It is the default when no external store is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshot  *pipeline.Snapshot
	alerts    []pipeline.Alert
	maxAlerts int
}

// NewMemoryStore creates an in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{maxAlerts: 1000}
}

// SaveSnapshot implements Store
func (s *MemoryStore) SaveSnapshot(ctx context.Context, snapshot *pipeline.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snapshot
	return nil
}

// LoadSnapshot implements Store; a missing snapshot returns nil, nil
func (s *MemoryStore) LoadSnapshot(ctx context.Context) (*pipeline.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, nil
}

// SaveAlert implements Store
func (s *MemoryStore) SaveAlert(ctx context.Context, alert pipeline.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	if len(s.alerts) > s.maxAlerts {
		s.alerts = s.alerts[len(s.alerts)-s.maxAlerts:]
	}
	return nil
}

// AlertHistory implements Store, newest first
func (s *MemoryStore) AlertHistory(ctx context.Context, limit int) ([]pipeline.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.alerts)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]pipeline.Alert, 0, n)
	for i := len(s.alerts) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.alerts[i])
	}
	return out, nil
}

// Close implements Store
func (s *MemoryStore) Close() error { return nil }
