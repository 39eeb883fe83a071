// Package processedset implements the Processed-Event Set (spec §3, §4):
// a bounded in-memory set of recently-seen upstream activity-event
// fingerprints, seeded from the Content Store at startup and used by the
// Event Scanner to decide, per feed, whether it has caught up with
// already-known state.
package processedset

import (
	"sync"
)

// MaxSize is the fixed bound spec §3 gives: 1000 fingerprints, FIFO
// eviction.
const MaxSize = 1000

// Set is the bounded, FIFO-evicting fingerprint set. One monitor (a single
// mutex) owns both the membership map and the eviction order, per the
// Design Notes' "monitor + sentinel naming" guidance: no field here is ever
// read or written outside Set's own methods.
type Set struct {
	mu      sync.Mutex
	order   []string
	members map[string]bool
}

// New constructs an empty Set.
func New() *Set {
	return &Set{members: make(map[string]bool)}
}

// Seed loads fingerprints (typically read from the Content Store at
// startup) into the set, oldest first, respecting the same FIFO bound a
// live Add would.
func (s *Set) Seed(fingerprints []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fp := range fingerprints {
		s.addLocked(fp)
	}
}

// Contains reports whether fingerprint is currently a member.
func (s *Set) Contains(fingerprint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members[fingerprint]
}

// Add inserts fingerprint, evicting the oldest member if the set would
// otherwise exceed MaxSize. A 1001st add removes exactly one entry (spec
// §8 boundary property).
func (s *Set) Add(fingerprint string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addLocked(fingerprint)
}

// AddAll inserts every fingerprint in fps, in order.
func (s *Set) AddAll(fps []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fp := range fps {
		s.addLocked(fp)
	}
}

func (s *Set) addLocked(fingerprint string) {
	if fingerprint == "" || s.members[fingerprint] {
		return
	}
	s.members[fingerprint] = true
	s.order = append(s.order, fingerprint)
	for len(s.order) > MaxSize {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.members, oldest)
	}
}

// Clear empties the set. Used at full-scan start, per the spec §9 Design
// Note adopting the start-of-scan clearing variant.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = nil
	s.members = make(map[string]bool)
}

// Snapshot returns every currently-held fingerprint, oldest first. Used by
// the Background Scheduler to persist newly-seen fingerprints back to the
// Content Store.
func (s *Set) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Len reports the current member count.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}
