package keystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/perpsigner/pkg/crypto"
)

// Key schema:
//
//	key:<alias> → Entry (JSON)
const prefixKey = "key:"

func entryKey(alias string) []byte {
	return []byte(prefixKey + alias)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

// PebbleStore persists keys in a Pebble database.
type PebbleStore struct {
	db *pebble.DB
	mu sync.Mutex // serializes Put's exists-check with its write
}

// NewPebbleStore opens (or creates) the database at path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) Put(alias string, curve crypto.Curve, secret []byte) (Entry, error) {
	e, err := newEntry(alias, curve, secret, time.Now())
	if err != nil {
		return Entry{}, err
	}
	data, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal key: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, closer, err := s.db.Get(entryKey(alias))
	switch {
	case err == nil:
		closer.Close()
		return Entry{}, fmt.Errorf("%w: %s", ErrExists, alias)
	case !errors.Is(err, pebble.ErrNotFound):
		return Entry{}, fmt.Errorf("failed to get key: %w", err)
	}

	if err := s.db.Set(entryKey(alias), data, pebble.Sync); err != nil {
		return Entry{}, fmt.Errorf("failed to save key: %w", err)
	}
	return e, nil
}

func (s *PebbleStore) Get(alias string) (Entry, error) {
	data, closer, err := s.db.Get(entryKey(alias))
	if errors.Is(err, pebble.ErrNotFound) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, alias)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("failed to get key: %w", err)
	}
	defer closer.Close()

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("failed to unmarshal key: %w", err)
	}
	return e, nil
}

// List returns entries in alias order.
func (s *PebbleStore) List() ([]Entry, error) {
	prefix := []byte(prefixKey)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var out []Entry
	for iter.First(); iter.Valid(); iter.Next() {
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal key %q: %w", iter.Key(), err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *PebbleStore) Delete(alias string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, closer, err := s.db.Get(entryKey(alias))
	if errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, alias)
	}
	if err != nil {
		return fmt.Errorf("failed to get key: %w", err)
	}
	closer.Close()

	if err := s.db.Delete(entryKey(alias), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}
	return nil
}

var _ Store = (*PebbleStore)(nil)
