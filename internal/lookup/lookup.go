// Package lookup implements the named, typed column registry (C2 in
// SPEC_FULL.md): Lookup assigns stable integer slots to names at plan-build
// time so every downstream processor reads and writes rows by O(1) index,
// resolving names only once, at bind time.
package lookup

import (
	"fmt"

	"aggsearch/internal/value"
)

// Source tags where a key's value originates.
type Source uint8

const (
	SourceDocument Source = iota // a document field, fetched by the Loader
	SourceSortVector
	SourceComputed // produced by APPLY/GROUP within the pipeline
)

// Flags carries the per-key metadata the spec requires.
type Flags struct {
	Source   Source
	Writable bool
	Loadable bool // needs a store fetch before it is readable
	Loaded   bool // already populated, no fetch required
	Hidden   bool // present in the row but not returned to the client
}

// Key is a single named, typed column: (name, flags, slot).
type Key struct {
	Name  string
	Flags Flags
	Slot  int
}

// Lookup is an ordered set of Keys with O(1) name resolution and stable
// slot assignment. Once a slot is issued it is never reassigned — the
// invariant every processor binding at pipeline-build time depends on.
type Lookup struct {
	keys    []Key
	byName  map[string]int // name -> index into keys
	nextSeq int
}

// New returns an empty Lookup.
func New() *Lookup {
	return &Lookup{byName: make(map[string]int)}
}

// GetOrAdd resolves name to a Key, creating one with the given flags if it
// doesn't exist yet. Adding the same name twice is idempotent: if the
// existing key has the same Source its existing slot is returned, with
// Loadable/Loaded/Writable widened and Hidden cleared by a non-hidden
// request; a different Source is an error naming the mismatch.
func (l *Lookup) GetOrAdd(name string, flags Flags) (*Key, error) {
	if i, ok := l.byName[name]; ok {
		existing := &l.keys[i]
		if existing.Flags.Source != flags.Source {
			return nil, fmt.Errorf("lookup: key %q already registered with source %d, requested %d", name, existing.Flags.Source, flags.Source)
		}
		// Widen, never narrow: a later non-hidden request un-hides a key
		// already marked hidden by an earlier internal binding.
		if !flags.Hidden {
			existing.Flags.Hidden = false
		}
		existing.Flags.Loadable = existing.Flags.Loadable || flags.Loadable
		existing.Flags.Loaded = existing.Flags.Loaded || flags.Loaded
		existing.Flags.Writable = existing.Flags.Writable || flags.Writable
		return existing, nil
	}
	slot := len(l.keys)
	k := Key{Name: name, Flags: flags, Slot: slot}
	l.keys = append(l.keys, k)
	l.byName[name] = slot
	return &l.keys[slot], nil
}

// Find resolves name without creating it.
func (l *Lookup) Find(name string) (*Key, bool) {
	i, ok := l.byName[name]
	if !ok {
		return nil, false
	}
	return &l.keys[i], true
}

// Len reports the number of registered keys, i.e. one past the highest
// valid slot index.
func (l *Lookup) Len() int { return len(l.keys) }

// Keys returns all registered keys in slot order. Do not mutate slices
// held across calls; the backing array may grow on future GetOrAdd calls.
func (l *Lookup) Keys() []Key { return l.keys }

// VisibleKeys returns the keys that appear in a reply: every key not
// marked Hidden, in slot order.
func (l *Lookup) VisibleKeys() []Key {
	out := make([]Key, 0, len(l.keys))
	for _, k := range l.keys {
		if k.Flags.Hidden {
			continue
		}
		out = append(out, k)
	}
	return out
}

// Row is a sparse vector of Values indexed by slot. A missing slot reads
// as Null by convention.
type Row struct {
	slots []value.Value
	set   []bool

	// DocKey is the source document's key in the backing store, used by
	// the Loader to (re)fetch fields on demand.
	DocKey string
	// SourceHash, when non-nil, is the raw field map the row was built
	// from (e.g. a full HGETALL), letting late fetches re-populate
	// without a second round trip when the data is already in hand.
	SourceHash map[string]value.Value
}

// NewRow returns a Row sized for the given Lookup capacity. Rows are cheap
// to grow; size is a hint, not a hard cap.
func NewRow(capacityHint int) *Row {
	return &Row{
		slots: make([]value.Value, capacityHint),
		set:   make([]bool, capacityHint),
	}
}

func (r *Row) ensure(slot int) {
	if slot < len(r.slots) {
		return
	}
	grown := make([]value.Value, slot+1)
	copy(grown, r.slots)
	r.slots = grown
	grownSet := make([]bool, slot+1)
	copy(grownSet, r.set)
	r.set = grownSet
}

// Set writes v into slot.
func (r *Row) Set(slot int, v value.Value) {
	r.ensure(slot)
	r.slots[slot] = v
	r.set[slot] = true
}

// Get reads slot, returning Null with ok=false if it was never written.
func (r *Row) Get(slot int) (value.Value, bool) {
	if slot < 0 || slot >= len(r.slots) || !r.set[slot] {
		return value.Null, false
	}
	return r.slots[slot], true
}

// GetByKey is sugar for Get(k.Slot).
func (r *Row) GetByKey(k *Key) (value.Value, bool) { return r.Get(k.Slot) }

// Reset frees owned values and clears DocKey/SourceHash, keeping the
// backing arrays for reuse (Go's GC reclaims what Set overwrites; the
// point here is semantic, not an allocator optimization).
func (r *Row) Reset() {
	for i := range r.slots {
		r.slots[i] = value.Null
		r.set[i] = false
	}
	r.DocKey = ""
	r.SourceHash = nil
}

// Clone returns a row that shares the same slot contents (Values may hold
// reference-counted payloads upstream; this package doesn't bump refcounts
// itself, since Go values are copied by assignment) but owns an
// independent slots/set backing array so mutating the clone never affects
// the original.
func (r *Row) Clone() *Row {
	c := &Row{
		slots:      make([]value.Value, len(r.slots)),
		set:        make([]bool, len(r.set)),
		DocKey:     r.DocKey,
		SourceHash: r.SourceHash,
	}
	copy(c.slots, r.slots)
	copy(c.set, r.set)
	return c
}
