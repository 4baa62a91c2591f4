// Package metadata provides the positional record store kept aligned
// with the vector index.
package metadata

import (
	"fmt"

	"github.com/clipseek/clipseek/internal/models"
)

// Store holds records in insertion order plus a key-to-position map as
// a secondary index. Position is the join key to the vector index.
//
// Like the vector index, a Store is mutated only while a new corpus
// generation is being built; published generations are immutable.
type Store struct {
	records []models.Record
	byKey   map[string]int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{byKey: make(map[string]int)}
}

// FromRecords builds a store from an ordered record slice, rebuilding
// the key map. Fails with ErrDuplicateKey if keys collide.
func FromRecords(records []models.Record) (*Store, error) {
	s := NewStore()
	if err := s.Append(records); err != nil {
		return nil, err
	}
	return s, nil
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// Append adds records in order. Fails without storing anything if any
// incoming key collides with an existing key or another key in the
// batch.
func (s *Store) Append(records []models.Record) error {
	var dups []string
	seen := make(map[string]bool, len(records))
	for _, r := range records {
		if _, ok := s.byKey[r.RecordKey]; ok || seen[r.RecordKey] {
			dups = append(dups, r.RecordKey)
			continue
		}
		seen[r.RecordKey] = true
	}
	if len(dups) > 0 {
		return &models.ErrDuplicateKey{Keys: dups}
	}
	for _, r := range records {
		s.byKey[r.RecordKey] = len(s.records)
		s.records = append(s.records, r)
	}
	return nil
}

// ByPosition returns the record at position i.
func (s *Store) ByPosition(i int) (models.Record, error) {
	if i < 0 || i >= len(s.records) {
		return models.Record{}, fmt.Errorf("%w: %d of %d", models.ErrOutOfRange, i, len(s.records))
	}
	return s.records[i], nil
}

// ByKey returns the record with the given key.
func (s *Store) ByKey(key string) (models.Record, error) {
	i, ok := s.byKey[key]
	if !ok {
		return models.Record{}, fmt.Errorf("%w: %q", models.ErrNotFound, key)
	}
	return s.records[i], nil
}

// Has reports whether a record with the given key exists.
func (s *Store) Has(key string) bool {
	_, ok := s.byKey[key]
	return ok
}

// Records returns the ordered record slice. Callers must not modify it.
func (s *Store) Records() []models.Record {
	return s.records
}

// Clone returns a store with the same contents that can be appended to
// without affecting the original.
func (s *Store) Clone() *Store {
	c := &Store{
		records: make([]models.Record, len(s.records)),
		byKey:   make(map[string]int, len(s.byKey)),
	}
	copy(c.records, s.records)
	for k, v := range s.byKey {
		c.byKey[k] = v
	}
	return c
}
