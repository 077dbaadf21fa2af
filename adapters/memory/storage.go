package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"signwise/core"
	"signwise/engine"
)

type value struct {
	isDay bool
	i     int64
	d     core.Day
}

// Store is a concurrent in-memory KeyValueStore. Batches are applied under a
// single lock.
type Store struct {
	mu   sync.RWMutex
	data map[string]value
}

func New() *Store { return &Store{data: map[string]value{}} }

func (s *Store) GetInt(_ context.Context, key string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return 0, false, nil
	}
	if v.isDay {
		return 0, false, fmt.Errorf("%w: %s holds a day", engine.ErrInvalidValue, key)
	}
	return v.i, true, nil
}

func (s *Store) SetInt(_ context.Context, key string, v int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value{i: v}
	return nil
}

func (s *Store) GetDay(_ context.Context, key string) (core.Day, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return core.Day{}, false, nil
	}
	if !v.isDay {
		return core.Day{}, false, fmt.Errorf("%w: %s holds an integer", engine.ErrInvalidValue, key)
	}
	return v.d, true, nil
}

func (s *Store) SetDay(_ context.Context, key string, d core.Day) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value{isDay: true, d: d}
	return nil
}

func (s *Store) Remove(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *Store) Apply(_ context.Context, muts []engine.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range muts {
		switch m.Op {
		case engine.OpSetInt:
			s.data[m.Key] = value{i: m.Int}
		case engine.OpSetDay:
			s.data[m.Key] = value{isDay: true, d: m.Day}
		case engine.OpRemove:
			delete(s.data, m.Key)
		}
	}
	return nil
}

func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

var (
	_ engine.BatchStore = (*Store)(nil)
	_ engine.KeyLister  = (*Store)(nil)
)
