package memory

import (
	"context"
	"fmt"
	"sync"

	"achievements/pkg/platform/sentinel"
)

// InMemoryStore keeps documents in process memory. It is the backend for
// tests and for running without any persistence configured.
type InMemoryStore struct {
	mu    sync.RWMutex
	docs  map[string][]byte
	saves map[string]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		docs:  make(map[string][]byte),
		saves: make(map[string]int),
	}
}

func (s *InMemoryStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[key]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", key, sentinel.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *InMemoryStore) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = append([]byte(nil), data...)
	s.saves[key]++
	return nil
}

// Saves reports how many times key was written.
func (s *InMemoryStore) Saves(key string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves[key]
}

func (s *InMemoryStore) Health(context.Context) error {
	return nil
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string][]byte)
	s.saves = make(map[string]int)
}
