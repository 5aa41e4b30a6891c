package keystore

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/uhyunpark/perpsigner/pkg/crypto"
)

// MemoryStore keeps keys in process memory. Keys are lost on exit.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Put(alias string, curve crypto.Curve, secret []byte) (Entry, error) {
	e, err := newEntry(alias, curve, secret, time.Now())
	if err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[alias]; ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrExists, alias)
	}
	s.entries[alias] = e
	return e, nil
}

func (s *MemoryStore) Get(alias string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[alias]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, alias)
	}
	return e, nil
}

// List returns entries sorted by alias.
func (s *MemoryStore) List() ([]Entry, error) {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out, nil
}

func (s *MemoryStore) Delete(alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[alias]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, alias)
	}
	delete(s.entries, alias)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
