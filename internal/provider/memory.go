package provider

import (
	"context"
	"sync"

	"github.com/gyaneshwarpardhi/sense/internal/event"
)

// MemoryStore keeps events in a map. It is used for events ingested over HTTP and in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string]*event.Event
}

func NewMemoryStore(events ...*event.Event) *MemoryStore {
	s := &MemoryStore{events: make(map[string]*event.Event, len(events))}
	for _, ev := range events {
		s.events[ev.ID] = ev
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, id string) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return ev, nil
}

func (s *MemoryStore) Put(_ context.Context, ev *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.ID] = ev
	return nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
