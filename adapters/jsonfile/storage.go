package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"signwise/core"
	"signwise/engine"
)

// Store persists every key to a single JSON object on disk. Integers are
// stored as JSON numbers and days as "YYYY-MM-DD" strings.
// Suitable for the CLI and small deployments.
type Store struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed
	data map[string]json.RawMessage

	quarantined string
}

var errCorrupt = errors.New("corrupt store file")

// New opens the store at path. A file that does not decode is moved aside
// to path+".corrupt" and the store starts empty.
func New(path string) (*Store, error) {
	s := &Store{path: path, data: map[string]json.RawMessage{}}
	err := s.load()
	switch {
	case err == nil, errors.Is(err, fs.ErrNotExist):
	case errors.Is(err, errCorrupt):
		aside := path + ".corrupt"
		if rerr := os.Rename(path, aside); rerr != nil {
			return nil, fmt.Errorf("quarantine %s: %w", path, rerr)
		}
		s.data = map[string]json.RawMessage{}
		s.quarantined = aside
	default:
		return nil, err
	}
	return s, nil
}

// Quarantined returns where an undecodable file was moved by New, if any.
func (s *Store) Quarantined() (string, bool) {
	return s.quarantined, s.quarantined != ""
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, &s.data); err != nil {
		return fmt.Errorf("%w: decode %s: %v", errCorrupt, s.path, err)
	}
	if s.data == nil {
		s.data = map[string]json.RawMessage{}
	}
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	b, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// commit persists the current map, restoring prev if the write fails so the
// cache never runs ahead of the file.
func (s *Store) commit(prev map[string]json.RawMessage) error {
	if err := s.persist(); err != nil {
		s.data = prev
		return err
	}
	return nil
}

func (s *Store) GetInt(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[key]
	if !ok {
		return 0, false, nil
	}
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false, fmt.Errorf("%w: %s: %v", engine.ErrInvalidValue, key, err)
	}
	return v, true, nil
}

func (s *Store) GetDay(_ context.Context, key string) (core.Day, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.data[key]
	if !ok {
		return core.Day{}, false, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return core.Day{}, false, fmt.Errorf("%w: %s: %v", engine.ErrInvalidValue, key, err)
	}
	d, err := core.ParseDay(str)
	if err != nil {
		return core.Day{}, false, fmt.Errorf("%w: %s: %v", engine.ErrInvalidValue, key, err)
	}
	return d, true, nil
}

func (s *Store) SetInt(ctx context.Context, key string, v int64) error {
	return s.Apply(ctx, []engine.Mutation{engine.SetIntMutation(key, v)})
}

func (s *Store) SetDay(ctx context.Context, key string, d core.Day) error {
	return s.Apply(ctx, []engine.Mutation{engine.SetDayMutation(key, d)})
}

func (s *Store) Remove(ctx context.Context, keys ...string) error {
	muts := make([]engine.Mutation, len(keys))
	for i, k := range keys {
		muts[i] = engine.RemoveMutation(k)
	}
	return s.Apply(ctx, muts)
}

// Apply writes muts with a single file replace.
func (s *Store) Apply(_ context.Context, muts []engine.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := maps.Clone(s.data)
	for _, m := range muts {
		switch m.Op {
		case engine.OpSetInt:
			s.data[m.Key] = json.RawMessage(fmt.Sprintf("%d", m.Int))
		case engine.OpSetDay:
			b, err := json.Marshal(m.Day.String())
			if err != nil {
				s.data = prev
				return err
			}
			s.data[m.Key] = b
		case engine.OpRemove:
			delete(s.data, m.Key)
		}
	}
	return s.commit(prev)
}

func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

var (
	_ engine.BatchStore = (*Store)(nil)
	_ engine.KeyLister  = (*Store)(nil)
)
