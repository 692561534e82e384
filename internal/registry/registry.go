// Package registry holds leak alerts and enforces the at-most-one unresolved
// alert per zone invariant.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/gas-leak-monitor/internal/domain"
)

// Journal durably records alert state. Record is called with the registry
// lock held, before the in-memory commit; an error aborts the mutation.
type Journal interface {
	Record(ctx context.Context, alert domain.Alert) error
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source for DetectedAt and ResolvedAt.
func WithClock(c clockwork.Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithJournal attaches a persistence collaborator.
func WithJournal(j Journal) Option {
	return func(r *Registry) { r.journal = j }
}

// WithIDGenerator overrides alert id generation.
func WithIDGenerator(f func() string) Option {
	return func(r *Registry) { r.newID = f }
}

type entry struct {
	alert domain.Alert
	seq   uint64
}

// Registry is an arena of alerts keyed by id with a secondary index from zone
// to its unresolved alert. Both are only changed under mu.
type Registry struct {
	mu           sync.RWMutex
	alerts       map[string]*entry
	order        []string
	activeByZone map[string]string
	seq          uint64

	clock   clockwork.Clock
	journal Journal
	newID   func() string
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		alerts:       make(map[string]*entry),
		activeByZone: make(map[string]string),
		clock:        clockwork.NewRealClock(),
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Insert stores a new alert, assigning ID and DetectedAt when unset. It fails
// with domain.ErrDuplicateAlert if the id is taken or the alert is unresolved
// and its zone already has an unresolved alert.
func (r *Registry) Insert(ctx context.Context, a domain.Alert) (domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !a.IsResolved {
		if id, ok := r.activeByZone[a.ZoneID]; ok {
			return domain.Alert{}, fmt.Errorf("zone %q already has unresolved alert %s: %w", a.ZoneID, id, domain.ErrDuplicateAlert)
		}
	}
	return r.insertLocked(ctx, a)
}

// InsertIfNoActive is the atomic check-then-act used by detection. When the
// zone already has an unresolved alert it is returned with created=false and
// nothing is stored.
func (r *Registry) InsertIfNoActive(ctx context.Context, a domain.Alert) (alert domain.Alert, created bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.activeByZone[a.ZoneID]; ok {
		return r.alerts[id].alert.Clone(), false, nil
	}
	a.IsResolved = false
	a.ResolvedAt = nil
	stored, err := r.insertLocked(ctx, a)
	if err != nil {
		return domain.Alert{}, false, err
	}
	return stored, true, nil
}

func (r *Registry) insertLocked(ctx context.Context, a domain.Alert) (domain.Alert, error) {
	if err := ctx.Err(); err != nil {
		return domain.Alert{}, err
	}
	if err := domain.ValidateAlert(a); err != nil {
		return domain.Alert{}, err
	}

	if a.ID == "" {
		a.ID = r.newID()
	}
	if _, ok := r.alerts[a.ID]; ok {
		return domain.Alert{}, fmt.Errorf("alert id %s: %w", a.ID, domain.ErrDuplicateAlert)
	}
	if a.DetectedAt.IsZero() {
		a.DetectedAt = r.clock.Now()
	}
	if a.IsResolved && a.ResolvedAt == nil {
		now := r.clock.Now()
		a.ResolvedAt = &now
	}
	if !a.IsResolved {
		a.ResolvedAt = nil
	}
	a = a.Clone()

	if r.journal != nil {
		if err := r.journal.Record(ctx, a); err != nil {
			return domain.Alert{}, fmt.Errorf("journal alert %s: %w", a.ID, err)
		}
	}

	r.seq++
	r.alerts[a.ID] = &entry{alert: a, seq: r.seq}
	r.order = append(r.order, a.ID)
	if !a.IsResolved {
		r.activeByZone[a.ZoneID] = a.ID
	}
	return a.Clone(), nil
}

// Resolve marks the alert resolved and stamps ResolvedAt. It fails with
// domain.ErrNotFound for unknown ids and domain.ErrAlreadyResolved, returning
// the unchanged alert, when called a second time.
func (r *Registry) Resolve(ctx context.Context, id string) (domain.Alert, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.alerts[id]
	if !ok {
		return domain.Alert{}, fmt.Errorf("alert %s: %w", id, domain.ErrNotFound)
	}
	if e.alert.IsResolved {
		return e.alert.Clone(), fmt.Errorf("alert %s: %w", id, domain.ErrAlreadyResolved)
	}
	if err := ctx.Err(); err != nil {
		return domain.Alert{}, err
	}

	updated := e.alert.Clone()
	now := r.clock.Now()
	updated.IsResolved = true
	updated.ResolvedAt = &now

	if r.journal != nil {
		if err := r.journal.Record(ctx, updated); err != nil {
			return domain.Alert{}, fmt.Errorf("journal alert %s: %w", id, err)
		}
	}

	e.alert = updated
	if r.activeByZone[updated.ZoneID] == id {
		delete(r.activeByZone, updated.ZoneID)
	}
	return updated.Clone(), nil
}

// Get returns the alert with the given id, or domain.ErrNotFound.
func (r *Registry) Get(id string) (domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.alerts[id]
	if !ok {
		return domain.Alert{}, fmt.Errorf("alert %s: %w", id, domain.ErrNotFound)
	}
	return e.alert.Clone(), nil
}

// FindUnresolvedByZone returns the zone's unresolved alert, or domain.ErrNotFound.
func (r *Registry) FindUnresolvedByZone(zoneID string) (domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.activeByZone[zoneID]
	if !ok {
		return domain.Alert{}, fmt.Errorf("unresolved alert for zone %q: %w", zoneID, domain.ErrNotFound)
	}
	return r.alerts[id].alert.Clone(), nil
}

// ListActive returns unresolved alerts, most severe first, then most recently
// detected first.
func (r *Registry) ListActive() []domain.Alert {
	r.mu.RLock()
	entries := make([]entry, 0, len(r.activeByZone))
	for _, id := range r.activeByZone {
		entries = append(entries, *r.alerts[id])
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].alert, entries[j].alert
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if !a.DetectedAt.Equal(b.DetectedAt) {
			return a.DetectedAt.After(b.DetectedAt)
		}
		return entries[i].seq > entries[j].seq
	})

	out := make([]domain.Alert, len(entries))
	for i := range entries {
		out[i] = entries[i].alert.Clone()
	}
	return out
}

// ListAll returns every alert, resolved or not, in insertion order.
func (r *Registry) ListAll() []domain.Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Alert, len(r.order))
	for i, id := range r.order {
		out[i] = r.alerts[id].alert.Clone()
	}
	return out
}

// ActiveCount returns the number of unresolved alerts.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.activeByZone)
}
