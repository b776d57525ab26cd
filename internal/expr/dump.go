package expr

import (
	"fmt"
	"strings"

	"aggsearch/internal/value"
)

// Dump renders node back to source text. dump(parse(s)) need not equal s
// byte-for-byte (literal spelling and redundant parens are not preserved)
// but parse(dump(parse(s))) always re-parses to an AST equal in meaning to
// parse(s).
func Dump(node Node) string {
	var b strings.Builder
	dump(&b, node)
	return b.String()
}

// DumpObfuscated renders node like Dump but replaces every string/field
// literal with a placeholder, matching the obfuscated-reply convention
// used elsewhere in the pipeline (internal/obs.ObfuscatePointers) so a
// logged query plan never leaks document content.
func DumpObfuscated(node Node) string {
	var b strings.Builder
	dumpObfuscated(&b, node)
	return b.String()
}

func dumpObfuscated(b *strings.Builder, node Node) {
	switch n := node.(type) {
	case *StringLit:
		b.WriteString(`"***"`)
	case *FieldRef:
		b.WriteString("@***")
	case *Unary:
		b.WriteString(n.Op.String())
		b.WriteByte('(')
		dumpObfuscated(b, n.X)
		b.WriteByte(')')
	case *Binary:
		b.WriteByte('(')
		dumpObfuscated(b, n.X)
		b.WriteByte(' ')
		b.WriteString(n.Op.String())
		b.WriteByte(' ')
		dumpObfuscated(b, n.Y)
		b.WriteByte(')')
	case *Logical:
		b.WriteByte('(')
		dumpObfuscated(b, n.X)
		b.WriteByte(' ')
		b.WriteString(n.Op.String())
		b.WriteByte(' ')
		dumpObfuscated(b, n.Y)
		b.WriteByte(')')
	case *Call:
		b.WriteString(n.Name)
		b.WriteByte('(')
		for i, a := range n.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			dumpObfuscated(b, a)
		}
		b.WriteByte(')')
	default:
		dump(b, node)
	}
}

func dump(b *strings.Builder, node Node) {
	switch n := node.(type) {
	case *NumberLit:
		b.WriteString(value.FormatNumber(n.Value))
	case *StringLit:
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(n.Value, `"`, `\"`))
		b.WriteByte('"')
	case *FieldRef:
		b.WriteByte('@')
		b.WriteString(n.Name)
	case *Unary:
		b.WriteString(n.Op.String())
		b.WriteByte('(')
		dump(b, n.X)
		b.WriteByte(')')
	case *Binary:
		b.WriteByte('(')
		dump(b, n.X)
		b.WriteByte(' ')
		b.WriteString(n.Op.String())
		b.WriteByte(' ')
		dump(b, n.Y)
		b.WriteByte(')')
	case *Logical:
		b.WriteByte('(')
		dump(b, n.X)
		b.WriteByte(' ')
		b.WriteString(n.Op.String())
		b.WriteByte(' ')
		dump(b, n.Y)
		b.WriteByte(')')
	case *Call:
		b.WriteString(n.Name)
		b.WriteByte('(')
		for i, a := range n.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			dump(b, a)
		}
		b.WriteByte(')')
	default:
		b.WriteString(fmt.Sprintf("<?%T>", node))
	}
}
