// Package window keeps the deduplicated hotspot records of a rolling
// monitoring window.
package window

import (
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/hotspot-etl/internal/domain"
)

// MergeResult describes what a MergeSlot call changed.
type MergeResult struct {
	Slot     string
	Rejected bool // slot older than the window; nothing merged
	Replaced bool // a previous copy of the slot was dropped first

	// Added holds records whose identity key was not retained before the merge.
	Added      []domain.HotspotRecord
	Duplicates int
	Stale      int

	EvictedSlots   int
	EvictedRecords int
}

type entry struct {
	rec   domain.HotspotRecord
	slots map[string]struct{}
}

type slotEntry struct {
	slot domain.Slot
	keys map[domain.IdentityKey]struct{}
}

// Store is the in-memory window. MergeSlot is its only mutation point besides
// Prune; readers take a snapshot.
type Store struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	span    time.Duration
	slots   map[string]*slotEntry
	records map[domain.IdentityKey]*entry
}

// New creates an empty Store retaining data newer than now - span.
func New(span time.Duration, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		clock:   clock,
		span:    span,
		slots:   make(map[string]*slotEntry),
		records: make(map[domain.IdentityKey]*entry),
	}
}

// Cutoff returns the oldest instant the window currently retains.
func (s *Store) Cutoff() time.Time {
	return s.clock.Now().UTC().Add(-s.span)
}

// MergeSlot evicts expired data, then merges one slot's records. Re-merging a
// retained slot replaces its previous contribution. Records are deduplicated
// by identity key, keeping the copy with the later ClassifiedAt; on a tie the
// incoming copy wins.
func (s *Store) MergeSlot(slot domain.Slot, records []domain.HotspotRecord) MergeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.Cutoff()
	res := MergeResult{Slot: slot.ID()}
	res.EvictedSlots, res.EvictedRecords = s.prune(cutoff)

	if slot.Start.Before(cutoff) {
		res.Rejected = true
		return res
	}

	id := slot.ID()
	if _, ok := s.slots[id]; ok {
		s.dropSlot(id)
		res.Replaced = true
	}

	se := &slotEntry{slot: slot, keys: make(map[domain.IdentityKey]struct{}, len(records))}
	added := make(map[domain.IdentityKey]int)
	for _, r := range records {
		if r.Timestamp.Before(cutoff) {
			res.Stale++
			continue
		}
		key := r.Key()
		se.keys[key] = struct{}{}

		e, ok := s.records[key]
		if !ok {
			s.records[key] = &entry{rec: r, slots: map[string]struct{}{id: {}}}
			added[key] = len(res.Added)
			res.Added = append(res.Added, r)
			continue
		}
		res.Duplicates++
		e.slots[id] = struct{}{}
		if !r.ClassifiedAt.Before(e.rec.ClassifiedAt) {
			e.rec = r
			if i, ok := added[key]; ok {
				res.Added[i] = r
			}
		}
	}
	s.slots[id] = se
	return res
}

// Prune evicts expired slots and records and reports how many were removed.
func (s *Store) Prune() (slots, records int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prune(s.Cutoff())
}

func (s *Store) prune(cutoff time.Time) (slots, records int) {
	before := len(s.records)
	for id, se := range s.slots {
		if se.slot.Start.Before(cutoff) {
			s.dropSlot(id)
			slots++
		}
	}
	for key, e := range s.records {
		if e.rec.Timestamp.Before(cutoff) {
			s.forget(key, e)
		}
	}
	return slots, before - len(s.records)
}

// dropSlot removes a slot's contribution. Records no other slot contributed
// are removed with it.
func (s *Store) dropSlot(id string) {
	se, ok := s.slots[id]
	if !ok {
		return
	}
	for key := range se.keys {
		e, ok := s.records[key]
		if !ok {
			continue
		}
		delete(e.slots, id)
		if len(e.slots) == 0 {
			delete(s.records, key)
		}
	}
	delete(s.slots, id)
}

func (s *Store) forget(key domain.IdentityKey, e *entry) {
	for id := range e.slots {
		if se, ok := s.slots[id]; ok {
			delete(se.keys, key)
		}
	}
	delete(s.records, key)
}

// Snapshot returns the retained records inside the window ordered by
// timestamp ascending. The slice is a copy owned by the caller.
func (s *Store) Snapshot() []domain.HotspotRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.Cutoff()
	out := make([]domain.HotspotRecord, 0, len(s.records))
	for _, e := range s.records {
		if !e.rec.Timestamp.Before(cutoff) {
			out = append(out, e.rec)
		}
	}
	domain.SortRecords(out)
	return out
}

// Has reports whether the slot with the given ID is retained.
func (s *Store) Has(slotID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.slots[slotID]
	return ok
}

// Len returns the number of retained records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Slots returns the retained slots, oldest first.
func (s *Store) Slots() []domain.Slot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Slot, 0, len(s.slots))
	for _, se := range s.slots {
		out = append(out, se.slot)
	}
	slices.SortFunc(out, func(a, b domain.Slot) int {
		return a.Start.Compare(b.Start)
	})
	return out
}
