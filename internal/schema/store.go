package schema

import "sync/atomic"

// Store holds the process's current catalog behind an atomic pointer so a
// reload of custom schemas swaps in a complete replacement catalog in one
// step. Readers always observe a fully populated snapshot, never a
// partially loaded one.
type Store struct {
	current atomic.Pointer[Catalog]
}

// NewStore creates a store seeded with an initial catalog.
func NewStore(c *Catalog) *Store {
	s := &Store{}
	s.current.Store(c)
	return s
}

// Catalog returns the current snapshot.
func (s *Store) Catalog() *Catalog {
	return s.current.Load()
}

// Swap atomically replaces the current catalog.
func (s *Store) Swap(c *Catalog) {
	s.current.Store(c)
}
