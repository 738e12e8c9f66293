// Package secrets holds named credentials in memory for the lifetime of a
// pipeline invocation and resolves them per step with declared scopes.
// Values never reach logs or disk.
package secrets

import (
	"sort"
	"sync"

	"github.com/muselab-d2x/releasegate/internal/errors"
)

// Credential is a named secret with the scope it may be released to.
type Credential struct {
	Name  string
	Value Value
	Scope Scope
}

// Store is an in-memory credential registry. It is safe for concurrent use:
// both stages of a run resolve credentials concurrently.
type Store struct {
	mu    sync.RWMutex
	creds map[string][]Credential
}

// NewStore creates an empty credential store.
func NewStore() *Store {
	return &Store{creds: map[string][]Credential{}}
}

// Register adds a credential. It fails with DuplicateCredential when the name
// is already registered with an overlapping scope.
func (s *Store) Register(name string, value Value, scope Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.creds[name] {
		if existing.Scope.Overlaps(scope) {
			return errors.DuplicateCredential(name)
		}
	}
	s.creds[name] = append(s.creds[name], Credential{Name: name, Value: value, Scope: scope})
	return nil
}

// Resolve returns the values for the required credential names visible to the
// given stage. The required set is iterated in sorted order so the first
// missing credential reported is deterministic. Any absence is a hard
// MissingCredential failure; no partial mapping is returned.
func (s *Store) Resolve(stage string, required []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := append([]string(nil), required...)
	sort.Strings(names)

	resolved := make(map[string]string, len(names))
	for _, name := range names {
		cred, ok := s.lookup(stage, name)
		if !ok {
			return nil, errors.MissingCredential(name)
		}
		resolved[name] = cred.Value.Reveal()
	}
	return resolved, nil
}

// Names returns the registered credential names visible to a stage, sorted.
// Used by the plan command; values are never included.
func (s *Store) Names(stage string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for name, creds := range s.creds {
		for _, c := range creds {
			if c.Scope.Covers(stage) {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)
	return names
}

// lookup must be called with the read lock held.
func (s *Store) lookup(stage, name string) (Credential, bool) {
	for _, c := range s.creds[name] {
		if c.Scope.Covers(stage) {
			return c, true
		}
	}
	return Credential{}, false
}
