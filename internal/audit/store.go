package audit

import (
	"context"
	"sync"
	"time"
)

// Store persists audit events. Append-only; rows older than the retention
// window are purged by the retention worker.
type Store interface {
	Append(ctx context.Context, event Event) error
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// MemoryStore keeps events in a slice. Used by tests and local development.
type MemoryStore struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *MemoryStore) Purge(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var purged int64
	for _, e := range s.events {
		if e.Timestamp.Before(before) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return purged, nil
}

// Events returns a snapshot copy for assertions.
func (s *MemoryStore) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
