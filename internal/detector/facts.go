package detector

import (
	"context"
	"errors"
	"sync"
)

// ErrFactsUnavailable means no snapshot has been supplied yet.
var ErrFactsUnavailable = errors.New("facts not available")

// FactsProvider supplies the environment snapshot for a detection pass.
type FactsProvider interface {
	Facts(ctx context.Context) (Facts, error)
}

// StaticFacts holds the last snapshot pushed by the host.
type StaticFacts struct {
	mu    sync.RWMutex
	facts Facts
	set   bool
	ready chan struct{}
}

func NewStaticFacts() *StaticFacts {
	return &StaticFacts{ready: make(chan struct{})}
}

// Ready is closed by the first successful Set.
func (s *StaticFacts) Ready() <-chan struct{} {
	return s.ready
}

// Set replaces the snapshot after validating it.
func (s *StaticFacts) Set(f Facts) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts = f
	if !s.set {
		s.set = true
		close(s.ready)
	}
	return nil
}

func (s *StaticFacts) Facts(context.Context) (Facts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return Facts{}, ErrFactsUnavailable
	}
	return s.facts, nil
}
