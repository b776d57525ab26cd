package expr

import (
	"strings"

	"aggsearch/internal/qerror"
	"aggsearch/internal/value"
)

// Func is a registered scalar function. Arity is validated before Fn runs;
// Fn receives already-evaluated arguments (metadata operators and `case`
// are special-cased separately in the evaluator because they must not
// evaluate every argument).
type Func struct {
	Name    string
	Fn      func(args []value.Value) (value.Value, error)
	MinArgc int
	MaxArgc int // -1 means unbounded
}

// registry is a single process-wide table (the Open Question in spec.md §9
// resolves in favor of one global registry). Entries are never removed;
// registering a name again replaces its entry.
var registry = map[string]*Func{}

// RegisterFunction adds fn to the process-wide function table. Registering
// the same name twice overwrites the previous entry — callers are
// expected to do this once at startup, not per query.
func RegisterFunction(fn *Func) {
	registry[strings.ToLower(fn.Name)] = fn
}

// LookupFunction resolves name in the registry.
func LookupFunction(name string) (*Func, bool) {
	f, ok := registry[strings.ToLower(name)]
	return f, ok
}

func init() {
	RegisterFunction(&Func{Name: "upper", MinArgc: 1, MaxArgc: 1, Fn: func(a []value.Value) (value.Value, error) {
		return value.String(strings.ToUpper(a[0].String())), nil
	}})
	RegisterFunction(&Func{Name: "lower", MinArgc: 1, MaxArgc: 1, Fn: func(a []value.Value) (value.Value, error) {
		return value.String(strings.ToLower(a[0].String())), nil
	}})
	RegisterFunction(&Func{Name: "concat", MinArgc: 0, MaxArgc: -1, Fn: func(a []value.Value) (value.Value, error) {
		var b strings.Builder
		for _, v := range a {
			b.WriteString(v.String())
		}
		return value.String(b.String()), nil
	}})
	RegisterFunction(&Func{Name: "substr", MinArgc: 2, MaxArgc: 3, Fn: func(a []value.Value) (value.Value, error) {
		s := a[0].String()
		off, ok := a[1].Number()
		if !ok {
			return value.Null, qerror.New(qerror.BadType, "substr: offset must be numeric")
		}
		start := clampIndex(int(off), len(s))
		end := len(s)
		if len(a) == 3 {
			n, ok := a[2].Number()
			if !ok {
				return value.Null, qerror.New(qerror.BadType, "substr: length must be numeric")
			}
			end = clampIndex(start+int(n), len(s))
		}
		if end < start {
			end = start
		}
		return value.String(s[start:end]), nil
	}})
	RegisterFunction(&Func{Name: "format", MinArgc: 1, MaxArgc: -1, Fn: func(a []value.Value) (value.Value, error) {
		format := a[0].String()
		var b strings.Builder
		argi := 1
		for i := 0; i < len(format); i++ {
			if format[i] == '%' && i+1 < len(format) && format[i+1] == 's' {
				if argi < len(a) {
					b.WriteString(a[argi].String())
					argi++
				}
				i++
				continue
			}
			b.WriteByte(format[i])
		}
		return value.String(b.String()), nil
	}})
	RegisterFunction(&Func{Name: "abs", MinArgc: 1, MaxArgc: 1, Fn: func(a []value.Value) (value.Value, error) {
		f, ok := a[0].Number()
		if !ok {
			return value.Null, qerror.New(qerror.BadType, "abs: argument must be numeric")
		}
		if f < 0 {
			f = -f
		}
		return value.Number(f), nil
	}})
	RegisterFunction(&Func{Name: "arraylen", MinArgc: 1, MaxArgc: 1, Fn: func(a []value.Value) (value.Value, error) {
		return value.Number(float64(len(a[0].Elements()))), nil
	}})
	RegisterFunction(&Func{Name: "ceil", MinArgc: 1, MaxArgc: 1, Fn: mathUnary(ceil)})
	RegisterFunction(&Func{Name: "floor", MinArgc: 1, MaxArgc: 1, Fn: mathUnary(floor)})
	RegisterFunction(&Func{Name: "sqrt", MinArgc: 1, MaxArgc: 1, Fn: mathUnary(sqrt)})
	RegisterFunction(&Func{Name: "log", MinArgc: 1, MaxArgc: 1, Fn: mathUnary(log)})
}

func clampIndex(i, n int) int {
	if i < 0 {
		i = 0
	}
	if i > n {
		i = n
	}
	return i
}
