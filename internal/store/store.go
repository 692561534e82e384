// Package store keeps the latest sensor reading of every zone.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
)

// Store is the per-zone latest-reading table. It holds no history and
// emits no events.
type Store struct {
	mu       sync.RWMutex
	band     domain.Band
	clock    clockwork.Clock
	readings map[string]domain.Reading
}

// New creates an empty store classifying readings against band.
// A nil clock uses real time.
func New(band domain.Band, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		band:     band,
		clock:    clock,
		readings: make(map[string]domain.Reading),
	}
}

// Upsert replaces the zone's current reading and recomputes IsNormal.
// A zero timestamp is stamped with the store clock. The stored reading is returned.
func (s *Store) Upsert(r domain.Reading) domain.Reading {
	if r.Timestamp.IsZero() {
		r.Timestamp = s.clock.Now()
	}
	r.IsNormal = s.band.Contains(r.Pressure)

	s.mu.Lock()
	s.readings[r.ZoneID] = r
	s.mu.Unlock()

	return r
}

// Get returns the zone's current reading, or domain.ErrNotFound.
func (s *Store) Get(zoneID string) (domain.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.readings[zoneID]
	if !ok {
		return domain.Reading{}, fmt.Errorf("zone %q: %w", zoneID, domain.ErrNotFound)
	}
	return r, nil
}

// All returns a snapshot of all current readings ordered by zone id.
func (s *Store) All() []domain.Reading {
	s.mu.RLock()
	out := make([]domain.Reading, 0, len(s.readings))
	for _, r := range s.readings {
		out = append(out, r)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ZoneID < out[j].ZoneID })
	return out
}

// Len returns the number of zones with a reading.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}
