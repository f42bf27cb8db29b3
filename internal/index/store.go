package index

import (
	"sync"

	"github.com/strataql/strata/internal/catalog"
	"github.com/strataql/strata/internal/errs"
)

// Store holds every secondary index defined on one table, plus the
// generation (source stripe-set version) each index was last built
// against. An index whose generation lags the table's current
// generation is stale; the planner must not consult a stale index.
type Store struct {
	mu         sync.RWMutex
	byName     map[string]Index
	generation map[string]uint64
	current    uint64
}

// NewStore creates an empty index store for one table.
func NewStore() *Store {
	return &Store{byName: map[string]Index{}, generation: map[string]uint64{}}
}

// Define registers idx (freshly built) under name at the store's
// current generation.
func (s *Store) Define(name string, idx Index) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byName[name] = idx
	s.generation[name] = s.current
}

// Drop removes a named index.
func (s *Store) Drop(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byName, name)
	delete(s.generation, name)
}

// Advance bumps the store's generation, marking every currently defined
// index stale until it is rebuilt (re-Define'd) against the new data.
func (s *Store) Advance() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current++
	return s.current
}

// Get returns the named index, or an error if it is unknown or stale.
func (s *Store) Get(name string) (Index, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byName[name]
	if !ok {
		return nil, errs.Newf(errs.Catalog, "index.Store.Get", "unknown index %q", name)
	}
	if s.generation[name] != s.current {
		return nil, errs.Newf(errs.Planner, "index.Store.Get", "index %q is stale", name)
	}
	return idx, nil
}

// ForTable builds a Store of empty indexes for every index defined on
// t's catalog entry, ready to be populated by a full rebuild.
func ForTable(t catalog.Table, bloomFPRate float64, bloomMaxBits uint64, expectedRows uint64) *Store {
	s := NewStore()
	for _, def := range t.Indexes {
		s.Define(def.Name, New(def.Kind, def.Unique, expectedRows, bloomFPRate, bloomMaxBits))
	}
	return s
}
