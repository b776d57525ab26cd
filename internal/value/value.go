// Package value implements the polymorphic scalar (C1 in SPEC_FULL.md):
// a tagged union of null, number, string, array, map, and reference,
// with coercion and a three-way compare used throughout the aggregation
// pipeline (lookup rows, expression evaluation, sort keys).
package value

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindArray
	KindMap
	KindReference
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindMap:
		return "map"
	case KindReference:
		return "reference"
	default:
		return "unknown"
	}
}

// Value is a refcounted, tagged sum type. The zero Value is Null.
//
// Arrays and maps share their backing slice/map across copies (copy-on-write
// is the caller's responsibility via Clone); References chase exactly one
// hop per operation and the type is a DAG by construction — Set never makes
// a Value reference itself, directly or transitively.
type Value struct {
	kind Kind
	num  float64
	str  string
	arr  []Value
	m    *OrderedMap
	ref  *Value
}

// Null is the canonical null value.
var Null = Value{kind: KindNull}

// Number constructs a numeric Value. NaN and +/-Inf are valid numbers.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// String constructs a string Value. Origin (borrowed/owned/constant/
// interned) is a concern for the host allocator, not for this package;
// Go's garbage collector makes that distinction moot here.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Array constructs an array Value from the given elements (not copied).
func Array(elems []Value) Value { return Value{kind: KindArray, arr: elems} }

// Map constructs a map Value from an OrderedMap (not copied).
func Map(m *OrderedMap) Value { return Value{kind: KindMap, m: m} }

// Reference constructs a Value that aliases another Value. Dereferencing
// chases exactly one Reference link per operation (see Deref).
func Reference(v *Value) Value { return Value{kind: KindReference, ref: v} }

// Kind reports the tag of the value without dereferencing.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v (after one deref) is Null.
func (v Value) IsNull() bool { return v.Deref().kind == KindNull }

// Deref chases a Reference exactly once; non-reference values are returned
// unchanged. This package never recurses through chained references — by
// construction References always point at a non-reference value.
func (v Value) Deref() Value {
	if v.kind == KindReference && v.ref != nil {
		return *v.ref
	}
	return v
}

// Number returns the numeric interpretation of v, coercing strings via a
// full-buffer lexical parse. ok is false when no numeric interpretation
// exists.
func (v Value) Number() (float64, bool) {
	v = v.Deref()
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		return ParseNumber(v.str)
	default:
		return 0, false
	}
}

// ParseNumber parses s as a float64 using a full-buffer match: trailing
// garbage is rejected, matching the spec's "full-buffer match and overflow
// check" requirement. Special spellings "inf", "-inf", "nan" (any case)
// are accepted on top of strconv's grammar.
func ParseNumber(s string) (float64, bool) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, false
	}
	switch strings.ToLower(trimmed) {
	case "inf", "+inf", "infinity", "+infinity":
		return math.Inf(1), true
	case "-inf", "-infinity":
		return math.Inf(-1), true
	case "nan":
		return math.NaN(), true
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// String returns the canonical printable form of v: integers print without
// a decimal point, floats print in a 17-digit round-trippable form, and
// NaN/+Inf/-Inf print as "nan"/"inf"/"-inf". Non-scalar kinds print their
// Go-level shape ("[...]"/"{...}") for diagnostics only.
func (v Value) String() string {
	v = v.Deref()
	switch v.kind {
	case KindNull:
		return ""
	case KindString:
		return v.str
	case KindNumber:
		return FormatNumber(v.num)
	case KindArray:
		return "[...]"
	case KindMap:
		return "{...}"
	default:
		return ""
	}
}

// FormatNumber renders f the way the wire protocol expects: integral
// floats print without a decimal point, everything else prints with full
// round-trip precision, and the three non-finite spellings are special.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', 17, 64)
}

// FromArgv builds a Value from a raw command token. Tokens that parse
// cleanly as numbers become KindNumber; everything else is a string. This
// mirrors how a RESP-style argv is lifted into the pipeline's type system
// before any schema-aware coercion happens.
func FromArgv(tok []byte) Value {
	s := string(tok)
	if f, ok := ParseNumber(s); ok && looksNumeric(s) {
		return Number(f)
	}
	return String(s)
}

func looksNumeric(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	i := 0
	if s[i] == '+' || s[i] == '-' {
		i++
	}
	if i >= len(s) {
		return false
	}
	for _, c := range s[i:] {
		if (c < '0' || c > '9') && c != '.' && c != 'e' && c != 'E' && c != '+' && c != '-' {
			return false
		}
	}
	return true
}

// rankOf assigns the total order Null < Number < String < Array < Map used
// by Compare when the two operands have different kinds.
func rankOf(k Kind) int {
	switch k {
	case KindNull:
		return 0
	case KindNumber:
		return 1
	case KindString:
		return 2
	case KindArray:
		return 3
	case KindMap:
		return 4
	default:
		return 5
	}
}

// Compare implements the three-way ordering: Null < Number < String <
// Array < Map across types; within a type, numeric or lexical order.
// Equality is evaluated after dereferencing both sides. Null == Null;
// every other comparison involving Null is strictly ordered (never equal).
func Compare(a, b Value) int {
	a, b = a.Deref(), b.Deref()
	if a.kind == KindNull && b.kind == KindNull {
		return 0
	}
	if a.kind != b.kind {
		ra, rb := rankOf(a.kind), rankOf(b.kind)
		switch {
		case ra < rb:
			return -1
		case ra > rb:
			return 1
		default:
			return 0
		}
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindNumber:
		return compareFloat(a.num, b.num)
	case KindString:
		return strings.Compare(a.str, b.str)
	case KindArray:
		return compareArrays(a.arr, b.arr)
	case KindMap:
		return compareArrays(a.m.Values(), b.m.Values())
	default:
		return 0
	}
}

// compareFloat orders NaN as equal to NaN and less than every other number,
// matching the bit-pattern-stable canonicalisation the grouper (C7) relies
// on when hashing float keys.
func compareFloat(a, b float64) int {
	switch {
	case math.IsNaN(a) && math.IsNaN(b):
		return 0
	case math.IsNaN(a):
		return -1
	case math.IsNaN(b):
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareArrays(a, b []Value) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Equal is shorthand for Compare(a, b) == 0, except Null is only equal to
// Null and never to another kind — which Compare already guarantees via
// rank ordering.
func Equal(a, b Value) bool { return Compare(a, b) == 0 }

// Truthy implements the boolean coercion used by FILTER/case: Null, the
// empty string, zero, and an empty array or map are falsy; everything else
// (including NaN) is truthy.
func (v Value) Truthy() bool {
	v = v.Deref()
	switch v.kind {
	case KindNull:
		return false
	case KindNumber:
		return v.num != 0
	case KindString:
		return v.str != ""
	case KindArray:
		return len(v.arr) > 0
	case KindMap:
		return v.m != nil && v.m.Len() > 0
	default:
		return false
	}
}

// Elements returns the backing slice of an array Value, or nil.
func (v Value) Elements() []Value {
	v = v.Deref()
	if v.kind != KindArray {
		return nil
	}
	return v.arr
}

// AsMap returns the backing OrderedMap of a map Value, or nil.
func (v Value) AsMap() *OrderedMap {
	v = v.Deref()
	if v.kind != KindMap {
		return nil
	}
	return v.m
}

// Clone performs a shallow copy that is safe to hand to a different owner:
// scalars copy trivially, arrays/maps share backing storage (copy-on-write
// is left to the caller, matching the spec's "mutation requires unique
// ownership or copy-on-write" rule).
func (v Value) Clone() Value { return v }

// GoString supports %#v style debugging without leaking internal pointers.
func (v Value) GoString() string {
	return fmt.Sprintf("value.Value{kind:%s, repr:%q}", v.kind, v.String())
}

var _ sort.Interface = (*byCompare)(nil)

type byCompare struct {
	vals []Value
	asc  bool
}

func (b *byCompare) Len() int      { return len(b.vals) }
func (b *byCompare) Swap(i, j int) { b.vals[i], b.vals[j] = b.vals[j], b.vals[i] }
func (b *byCompare) Less(i, j int) bool {
	c := Compare(b.vals[i], b.vals[j])
	if b.asc {
		return c < 0
	}
	return c > 0
}

// Sort orders vals in place by Compare, ascending or descending.
func Sort(vals []Value, asc bool) {
	sort.Stable(&byCompare{vals: vals, asc: asc})
}
