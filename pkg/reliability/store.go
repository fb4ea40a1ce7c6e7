// Package reliability implements the per-host penalty store that biases
// scoring downward after stream failures.
package reliability

import (
	"sync"
	"time"
)

const (
	// DefaultStep is added on failure and subtracted on success.
	DefaultStep = 50
	// DefaultCeiling is the saturation point for a host's penalty.
	DefaultCeiling = 500
	// DefaultMaxEntries bounds the in-memory map.
	DefaultMaxEntries = 10000
)

type entry struct {
	penalty    int
	lastChange time.Time
}

// Store keeps a penalty counter per host. Penalties grow by a fixed step on
// reported failure, shrink by the same step on reported success, saturate
// at a ceiling and are clamped to zero from below. State lives in memory
// only and resets with the process.
type Store struct {
	mu         sync.Mutex
	entries    map[string]entry
	step       int
	ceiling    int
	maxEntries int
}

type StoreOptions struct {
	Step       int
	Ceiling    int
	MaxEntries int
}

var DefaultStoreOpts = StoreOptions{
	Step:       DefaultStep,
	Ceiling:    DefaultCeiling,
	MaxEntries: DefaultMaxEntries,
}

func NewStore(opts StoreOptions) *Store {
	if opts.Step <= 0 {
		opts.Step = DefaultStep
	}
	if opts.Ceiling <= 0 {
		opts.Ceiling = DefaultCeiling
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	return &Store{
		entries:    map[string]entry{},
		step:       opts.Step,
		ceiling:    opts.Ceiling,
		maxEntries: opts.MaxEntries,
	}
}

// Penalty returns the current penalty for a host, 0 when unknown.
func (s *Store) Penalty(host string) int {
	if host == "" {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[host].penalty
}

// OnFail adds one step to the host's penalty, up to the ceiling.
func (s *Store) OnFail(host string) {
	if host == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[host]
	e.penalty += s.step
	if e.penalty > s.ceiling {
		e.penalty = s.ceiling
	}
	e.lastChange = time.Now()
	s.setLocked(host, e)
}

// OnOK subtracts one step from the host's penalty, clamped at 0.
// On a zero-penalty host this is a no-op.
func (s *Store) OnOK(host string) {
	if host == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e, found := s.entries[host]
	if !found || e.penalty == 0 {
		return
	}
	e.penalty -= s.step
	if e.penalty <= 0 {
		delete(s.entries, host)
		return
	}
	e.lastChange = time.Now()
	s.entries[host] = e
}

// Clear removes the penalty entry for one host.
func (s *Store) Clear(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, host)
}

// ClearAll removes all penalty entries.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = map[string]entry{}
}

// Snapshot returns a copy of the current host→penalty map.
func (s *Store) Snapshot() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[string]int, len(s.entries))
	for host, e := range s.entries {
		result[host] = e.penalty
	}
	return result
}

// Stats returns the number of penalized hosts, the maximum penalty and the
// sum of all penalties.
func (s *Store) Stats() (count, max, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		count++
		total += e.penalty
		if e.penalty > max {
			max = e.penalty
		}
	}
	return count, max, total
}

// setLocked inserts an entry, evicting the least recently changed one when
// the map is at capacity. Callers must hold the lock.
func (s *Store) setLocked(host string, e entry) {
	if _, found := s.entries[host]; !found && len(s.entries) >= s.maxEntries {
		var oldestHost string
		var oldestTime time.Time
		first := true
		for h, cur := range s.entries {
			if first || cur.lastChange.Before(oldestTime) {
				oldestHost = h
				oldestTime = cur.lastChange
				first = false
			}
		}
		delete(s.entries, oldestHost)
	}
	s.entries[host] = e
}
