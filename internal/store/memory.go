package store

import (
	"context"
	"sync"

	"github.com/jonathan/credit-applier/internal/types"
)

// Memory is an in-process record store. Every persisted snapshot is kept.
type Memory struct {
	mu        sync.Mutex
	records   []*types.Record
	snapshots [][]*types.Record

	// LoadErr, when set, is returned by Load.
	LoadErr error
	// PersistErr, when set, is returned by Persist once FailAfter persists succeeded.
	PersistErr error
	FailAfter  int
}

// NewMemory creates a store holding a copy of records.
func NewMemory(records []*types.Record) *Memory {
	return &Memory{records: types.CloneRecords(records)}
}

// Load returns a snapshot of the stored records.
func (m *Memory) Load(_ context.Context) ([]*types.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	if len(m.records) == 0 {
		return nil, &EmptyDataError{Source: "memory"}
	}
	return types.CloneRecords(m.records), nil
}

// Persist replaces the stored records with a copy of records.
func (m *Memory) Persist(_ context.Context, records []*types.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PersistErr != nil && len(m.snapshots) >= m.FailAfter {
		return &UnavailableError{Op: "persist", Message: "memory store", Cause: m.PersistErr}
	}
	m.records = types.CloneRecords(records)
	m.snapshots = append(m.snapshots, types.CloneRecords(records))
	return nil
}

// Records returns a copy of the current contents.
func (m *Memory) Records() []*types.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.CloneRecords(m.records)
}

// Persists returns how many times Persist succeeded.
func (m *Memory) Persists() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}

// Snapshot returns the i-th persisted record set.
func (m *Memory) Snapshot(i int) []*types.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return types.CloneRecords(m.snapshots[i])
}
