package schedule

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps weeks in a map. A week is swapped in whole under the
// write lock.
type MemoryStore struct {
	mu    sync.RWMutex
	weeks map[uuid.UUID]Week
}

// NewMemoryStore creates an empty in-memory schedule store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{weeks: make(map[uuid.UUID]Week)}
}

func (s *MemoryStore) SetWeek(ctx context.Context, providerID uuid.UUID, entries []Entry) (Week, error) {
	week, err := NewWeek(providerID, entries)
	if err != nil {
		return Week{}, err
	}
	s.mu.Lock()
	s.weeks[providerID] = week
	s.mu.Unlock()
	return week, nil
}

func (s *MemoryStore) GetWeek(ctx context.Context, providerID uuid.UUID) (Week, error) {
	s.mu.RLock()
	week, ok := s.weeks[providerID]
	s.mu.RUnlock()
	if !ok {
		week, _ = NewWeek(providerID, nil)
	}
	return week, nil
}

func (s *MemoryStore) GetDay(ctx context.Context, providerID uuid.UUID, day Weekday) (Entry, error) {
	week, err := s.GetWeek(ctx, providerID)
	if err != nil {
		return Entry{}, err
	}
	return week.Day(day), nil
}
