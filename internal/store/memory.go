// Package store provides a generic thread-safe in-memory key-value store
// used by the dev server's repositories.
package store

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Store when the requested key does not exist.
var ErrNotFound = errors.New("not found")

// Store is a generic thread-safe in-memory key-value store. Values are
// stored as given; callers that hand out values must copy them first.
type Store[K comparable, V any] struct {
	mu      sync.RWMutex
	data    map[K]V
	keyFunc func(V) K
}

// New creates a Store with a key extractor function.
func New[K comparable, V any](keyFunc func(V) K) *Store[K, V] {
	return &Store[K, V]{
		data:    make(map[K]V),
		keyFunc: keyFunc,
	}
}

// Set inserts or replaces the value, using keyFunc to derive the key.
func (s *Store[K, V]) Set(_ context.Context, v V) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[s.keyFunc(v)] = v
	return nil
}

// Get returns the value for key, or ErrNotFound if absent.
func (s *Store[K, V]) Get(_ context.Context, key K) (V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		var zero V
		return zero, ErrNotFound
	}
	return v, nil
}

// Update replaces the value for key with fn(old) while holding the write
// lock. Returns ErrNotFound if absent.
func (s *Store[K, V]) Update(_ context.Context, key K, fn func(V) V) (V, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		var zero V
		return zero, ErrNotFound
	}
	v = fn(v)
	s.data[key] = v
	return v, nil
}

// Delete removes the value for key.  Returns ErrNotFound if absent.
func (s *Store[K, V]) Delete(_ context.Context, key K) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return ErrNotFound
	}
	delete(s.data, key)
	return nil
}

// Filter returns all values for which pred returns true, in arbitrary
// order.
func (s *Store[K, V]) Filter(_ context.Context, pred func(V) bool) ([]V, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []V
	for _, v := range s.data {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// Sequence hands out increasing integer ids starting at 1.
type Sequence struct {
	mu   sync.Mutex
	last int64
}

// Next returns the next id.
func (s *Sequence) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last++
	return s.last
}
