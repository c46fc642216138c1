// ABOUTME: In-memory session.Store for tests and throwaway sessions.
// ABOUTME: Same contract as the SQLite store, no disk involved.

package store

import (
	"context"
	"sync"

	"github.com/WhatRUHuh/The-LLM-AI-Improv-Theater-sub000/internal/session"
)

// MockStore is a concurrency-safe in-memory session.Store.
type MockStore struct {
	mu        sync.RWMutex
	snapshots map[string]session.Snapshot

	// SaveErr, when set, is returned by every Save. Test hook.
	SaveErr error
}

// NewMockStore creates an empty mock store.
func NewMockStore() *MockStore {
	return &MockStore{snapshots: make(map[string]session.Snapshot)}
}

// Save stores a copy of the snapshot keyed by session ID.
func (m *MockStore) Save(ctx context.Context, snap session.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.snapshots[snap.SessionID] = snap
	return nil
}

// Load returns the stored snapshot or session.ErrNotFound.
func (m *MockStore) Load(ctx context.Context, sessionID string) (*session.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[sessionID]
	if !ok {
		return nil, session.ErrNotFound
	}
	return &snap, nil
}

// SaveCount reports how many sessions are stored.
func (m *MockStore) SaveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots)
}
