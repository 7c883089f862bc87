// Package memory is an in-process queue status store for tests and
// single-instance development runs.
package memory

import (
	"context"
	"sync"

	"github.com/maraichr/nightcrawler/pkg/models"
)

type entry struct {
	owner  string
	status models.QueueStatus
}

// StatusStore keeps queue statuses in a map guarded by a mutex.
type StatusStore struct {
	mu      sync.Mutex
	entries map[string]entry
}

func NewStatusStore() *StatusStore {
	return &StatusStore{entries: make(map[string]entry)}
}

func (s *StatusStore) TryAcquire(_ context.Context, key, owner string, status models.QueueStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[key]; exists {
		return false, nil
	}
	s.entries[key] = entry{owner: owner, status: clone(status)}
	return true, nil
}

func (s *StatusStore) Update(_ context.Context, key, owner string, status models.QueueStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.owner != owner {
		return false, nil
	}
	e.status = clone(status)
	s.entries[key] = e
	return true, nil
}

func (s *StatusStore) Get(_ context.Context, key string) (models.QueueStatus, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return models.QueueStatus{}, false, nil
	}
	return clone(e.status), true, nil
}

func (s *StatusStore) Release(_ context.Context, key, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && e.owner == owner {
		delete(s.entries, key)
	}
	return nil
}

// Len returns the number of stored entries.
func (s *StatusStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// clone detaches the total pointer so callers never share it with the store.
func clone(s models.QueueStatus) models.QueueStatus {
	if s.DocumentsTotal != nil {
		total := *s.DocumentsTotal
		s.DocumentsTotal = &total
	}
	return s
}
