// Package memory provides an in-process ephemeral store for tests and
// single-node development.
package memory

import (
	"context"
	"sync"

	"github.com/bidwire/auction/internal/store"
)

// Store is a mutex-guarded map implementation of store.Store.
type Store struct {
	mu     sync.RWMutex
	values map[string]string
	sets   map[string]map[string]struct{}
}

var _ store.Store = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		values: make(map[string]string),
		sets:   make(map[string]map[string]struct{}),
	}
}

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

func (s *Store) AddToSet(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	set[member] = struct{}{}
	return nil
}

func (s *Store) SetSize(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.sets[key])), nil
}

func (s *Store) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.values, k)
		delete(s.sets, k)
	}
	return nil
}

// Keys returns every live key, values and sets alike. Test helper.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.values)+len(s.sets))
	for k := range s.values {
		out = append(out, k)
	}
	for k := range s.sets {
		out = append(out, k)
	}
	return out
}
