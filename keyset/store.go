package keyset

import "sync/atomic"

// Store publishes the current Set to concurrent readers. Replace swaps the whole Set at
// once, so a reader sees either the previous Set or the next one, never a mix.
type Store struct {
	current atomic.Pointer[Set]
}

// NewStore returns a Store holding initial, which may be nil.
func NewStore(initial *Set) *Store {
	s := &Store{}
	if initial != nil {
		s.current.Store(initial)
	}
	return s
}

// Lookup resolves kid against the current Set.
func (s *Store) Lookup(kid string) (VerificationKey, bool) {
	return s.current.Load().Lookup(kid)
}

// Snapshot returns the current Set.
func (s *Store) Snapshot() *Set {
	return s.current.Load()
}

// Replace installs next and returns the Set it replaced. A nil next is ignored.
func (s *Store) Replace(next *Set) *Set {
	if next == nil {
		return s.current.Load()
	}
	return s.current.Swap(next)
}
