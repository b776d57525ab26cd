package value

import (
	"math"
	"strconv"
	"strings"
)

// HashKey builds a canonical string key for a tuple of values. Strings
// hash by their canonical text form;
// floats hash by bit pattern except NaN, which normalizes to a single
// canonical representative so all NaNs fall into the same bucket
// regardless of payload bits.
func HashKey(vals ...Value) string {
	var b strings.Builder
	for i, v := range vals {
		if i > 0 {
			b.WriteByte(0x1f) // unit separator: never appears in printable tokens
		}
		writeHashPart(&b, v)
	}
	return b.String()
}

func writeHashPart(b *strings.Builder, v Value) {
	v = v.Deref()
	switch v.kind {
	case KindNull:
		b.WriteString("\x00N")
	case KindNumber:
		if math.IsNaN(v.num) {
			b.WriteString("\x00NaN")
			return
		}
		b.WriteString("\x00F")
		b.WriteString(strconv.FormatUint(math.Float64bits(v.num), 16))
	case KindString:
		b.WriteString("\x00S")
		b.WriteString(v.str)
	case KindArray:
		b.WriteString("\x00A")
		for _, e := range v.arr {
			writeHashPart(b, e)
		}
	case KindMap:
		b.WriteString("\x00M")
		for _, k := range v.m.Keys() {
			b.WriteString(k)
			val, _ := v.m.Get(k)
			writeHashPart(b, val)
		}
	}
}
