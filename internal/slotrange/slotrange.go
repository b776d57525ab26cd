// Package slotrange implements the binary slot-range array codec
// (spec.md §6): the SLOTS token of a distributed subplan's wire format,
// telling a shard which hash-slot ranges it owns for this query.
package slotrange

import (
	"encoding/binary"
	"fmt"
)

// Range is one inclusive [Start, End] hash-slot range.
type Range struct {
	Start uint16
	End   uint16
}

// Serialize encodes ranges as: little-endian u32 num_ranges, then
// num_ranges x (u16 start, u16 end) little-endian.
func Serialize(ranges []Range) []byte {
	out := make([]byte, 4+4*len(ranges))
	binary.LittleEndian.PutUint32(out, uint32(len(ranges)))
	for i, r := range ranges {
		off := 4 + 4*i
		binary.LittleEndian.PutUint16(out[off:], r.Start)
		binary.LittleEndian.PutUint16(out[off+2:], r.End)
	}
	return out
}

// Deserialize decodes a buffer produced by Serialize, rejecting one whose
// size != 4 + 4*num_ranges (spec.md §6).
func Deserialize(buf []byte) ([]Range, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("slotrange: buffer too short: %d bytes", len(buf))
	}
	n := binary.LittleEndian.Uint32(buf)
	want := 4 + 4*int(n)
	if len(buf) != want {
		return nil, fmt.Errorf("slotrange: size mismatch: header says %d ranges (%d bytes), got %d bytes", n, want, len(buf))
	}
	ranges := make([]Range, n)
	for i := range ranges {
		off := 4 + 4*i
		ranges[i] = Range{
			Start: binary.LittleEndian.Uint16(buf[off:]),
			End:   binary.LittleEndian.Uint16(buf[off+2:]),
		}
	}
	return ranges, nil
}
