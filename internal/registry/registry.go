// Package registry holds the authoritative map of live forming setups. Every
// mutation (tick replacement, alert-sent marks, terminal phase transitions)
// goes through a registry method under the write lock; readers get deep
// copies behind a read lock so they never observe a half-updated setup.
package registry

import (
	"sort"
	"sync"
	"time"

	"setup-scanner/internal/catalog"
	"setup-scanner/internal/setups"
)

// Registry is the bounded (symbol, setupType) -> FormingSetup store.
type Registry struct {
	mu             sync.RWMutex
	entries        map[setups.SetupKey]*setups.FormingSetup
	maxEntries     int
	alertThreshold float64
}

// New creates a registry. maxEntries bounds the tracked population;
// alertThreshold is the probability at which the alert-sent flag survives a
// replacement (below it, conditions changed enough that the setup earns a
// fresh alert evaluation).
func New(maxEntries int, alertThreshold float64) *Registry {
	return &Registry{
		entries:        make(map[setups.SetupKey]*setups.FormingSetup),
		maxEntries:     maxEntries,
		alertThreshold: alertThreshold,
	}
}

// Apply replaces the registry contents with this tick's detections. A new
// detection for a tracked key replaces the prior entry, carrying the
// alert-sent flag forward only while the new probability stays at or above
// the alert threshold. Keys with no new detection are dropped; their
// conditions no longer hold.
func (r *Registry) Apply(detected []*setups.FormingSetup) {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := make(map[setups.SetupKey]*setups.FormingSetup, len(detected))
	for _, s := range detected {
		key := s.Key()
		if prev, ok := r.entries[key]; ok {
			s.CreatedAt = prev.CreatedAt
			if prev.AlertSent && s.TriggerProbability >= r.alertThreshold {
				s.AlertSent = true
				s.AlertSentAt = prev.AlertSentAt
			}
		}
		next[key] = s
	}

	if r.maxEntries > 0 && len(next) > r.maxEntries {
		evictLowest(next, len(next)-r.maxEntries)
	}

	r.entries = next
}

// evictLowest removes n entries, lowest trigger probability first.
func evictLowest(m map[setups.SetupKey]*setups.FormingSetup, n int) {
	all := make([]*setups.FormingSetup, 0, len(m))
	for _, s := range m {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].TriggerProbability < all[j].TriggerProbability
	})
	for i := 0; i < n && i < len(all); i++ {
		delete(m, all[i].Key())
	}
}

// AlertCandidates returns deep copies of the setups currently eligible for
// alert promotion: alert-eligible phase, probability at or above the alert
// threshold, and no alert sent yet. The copies keep promotion decisions off
// the live pointers entirely.
func (r *Registry) AlertCandidates() []setups.FormingSetup {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []setups.FormingSetup
	for _, s := range r.entries {
		if !s.AlertSent && s.Phase.AlertEligible() && s.TriggerProbability >= r.alertThreshold {
			out = append(out, *s.Clone())
		}
	}
	return out
}

// MarkAlertSent records a promoted alert on the live entry. Returns false
// when the key is no longer tracked.
func (r *Registry) MarkAlertSent(key setups.SetupKey, at time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.entries[key]
	if !ok {
		return false
	}
	s.AlertSent = true
	sentAt := at
	s.AlertSentAt = &sentAt
	return true
}

// MarkPhase sets a terminal phase on the live entry whose ID matches setupID.
// A stale ID (the setup was dropped or superseded since the alert fired) is a
// no-op, so a late resolution never clobbers a newer formation.
func (r *Registry) MarkPhase(setupID string, phase setups.SetupPhase) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.entries {
		if s.ID == setupID {
			s.Phase = phase
			s.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

// Filter restricts Snapshot output. Zero values mean "no restriction".
type Filter struct {
	MinProbability float64
	SetupTypes     []catalog.SetupType
	Symbols        []string
}

func (f Filter) match(s *setups.FormingSetup) bool {
	if s.TriggerProbability < f.MinProbability {
		return false
	}
	if len(f.SetupTypes) > 0 {
		found := false
		for _, t := range f.SetupTypes {
			if s.SetupType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Symbols) > 0 {
		found := false
		for _, sym := range f.Symbols {
			if s.Symbol == sym {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Snapshot returns deep copies of the matching setups, sorted by descending
// trigger probability.
func (r *Registry) Snapshot(f Filter) []setups.FormingSetup {
	r.mu.RLock()
	out := make([]setups.FormingSetup, 0, len(r.entries))
	for _, s := range r.entries {
		if f.match(s) {
			out = append(out, *s.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].TriggerProbability != out[j].TriggerProbability {
			return out[i].TriggerProbability > out[j].TriggerProbability
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// Len returns the tracked setup count.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
