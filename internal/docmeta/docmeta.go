// Package docmeta implements the doc-id meta blob (C10 in SPEC_FULL.md):
// a per-key, per-slot mapping from an index slot number to a document id,
// persisted verbatim as a little-endian binary blob (spec.md §6: "u64
// size, then size x u64 docId; docId == 0 is the invalid/empty
// sentinel").
package docmeta

import (
	"encoding/binary"
	"fmt"
)

// InvalidDocID is the sentinel meaning "no document in this slot".
const InvalidDocID uint64 = 0

// Blob is a size-prefixed array of docIds, indexed by slot.
type Blob struct {
	ids []uint64
}

// New returns a Blob with n slots, all sentinel.
func New(n int) *Blob {
	return &Blob{ids: make([]uint64, n)}
}

// Len reports the slot count.
func (b *Blob) Len() int { return len(b.ids) }

// Get returns the docId in slot i, or InvalidDocID if i is out of range.
func (b *Blob) Get(i int) uint64 {
	if i < 0 || i >= len(b.ids) {
		return InvalidDocID
	}
	return b.ids[i]
}

// Set writes docID into slot i, growing the blob if necessary.
func (b *Blob) Set(i int, docID uint64) {
	if i >= len(b.ids) {
		grown := make([]uint64, i+1)
		copy(grown, b.ids)
		b.ids = grown
	}
	b.ids[i] = docID
}

// Encode serializes b as: little-endian u64 size, then size x little-endian
// u64 docId.
func (b *Blob) Encode() []byte {
	out := make([]byte, 8+8*len(b.ids))
	binary.LittleEndian.PutUint64(out, uint64(len(b.ids)))
	for i, id := range b.ids {
		binary.LittleEndian.PutUint64(out[8+8*i:], id)
	}
	return out
}

// Decode parses a blob produced by Encode. It validates the declared size
// against the buffer length so a truncated or corrupt blob is rejected
// rather than silently read short.
func Decode(buf []byte) (*Blob, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("docmeta: blob too short: %d bytes", len(buf))
	}
	n := binary.LittleEndian.Uint64(buf)
	want := 8 + 8*n
	if uint64(len(buf)) != want {
		return nil, fmt.Errorf("docmeta: blob size mismatch: header says %d ids (%d bytes), got %d bytes", n, want, len(buf))
	}
	ids := make([]uint64, n)
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint64(buf[8+8*i:])
	}
	return &Blob{ids: ids}, nil
}
