package expr

import (
	"fmt"
	"math"
	"strings"

	"aggsearch/internal/lookup"
	"aggsearch/internal/qerror"
	"aggsearch/internal/value"
)

// metadata operator names, special-cased because they need access to the
// row's docKey/sourceHash rather than plain evaluated arguments, and (for
// `case`) must not evaluate every argument.
const (
	fnCase      = "case"
	fnHasField  = "hasfield"
	fnHasPrefix = "hasprefix"
	fnExists    = "exists"
)

// Eval walks node against row, resolving @field references through lk/row
// and calling into the function registry for Call nodes that are not one
// of the metadata operators. Evaluation is total: it either returns a
// Value or a *qerror.Error, never panics on well-formed input. lk may be
// nil (unbound fields then resolve only through row.SourceHash).
func Eval(node Node, lk *lookup.Lookup, row *lookup.Row) (value.Value, error) {
	switch n := node.(type) {
	case *NumberLit:
		return value.Number(n.Value), nil
	case *StringLit:
		return value.String(n.Value), nil
	case *FieldRef:
		return evalField(n, lk, row)
	case *Unary:
		return evalUnary(n, lk, row)
	case *Binary:
		return evalBinary(n, lk, row)
	case *Logical:
		return evalLogical(n, lk, row)
	case *Call:
		return evalCall(n, lk, row)
	default:
		return value.Null, qerror.New(qerror.Internal, fmt.Sprintf("unhandled node type %T", node))
	}
}

func evalField(n *FieldRef, lk *lookup.Lookup, row *lookup.Row) (value.Value, error) {
	if row == nil {
		return value.Null, nil
	}
	if lk != nil {
		if k, ok := lk.Find(n.Name); ok {
			if v, ok := row.GetByKey(k); ok {
				return v, nil
			}
		}
	}
	if row.SourceHash != nil {
		if v, ok := row.SourceHash[n.Name]; ok {
			return v, nil
		}
	}
	return value.Null, nil
}

func evalUnary(n *Unary, lk *lookup.Lookup, row *lookup.Row) (value.Value, error) {
	x, err := Eval(n.X, lk, row)
	if err != nil {
		return value.Null, err
	}
	switch n.Op {
	case NOT:
		return value.Number(boolToFloat(!x.Truthy())), nil
	case MINUS:
		f, ok := x.Number()
		if !ok {
			return value.Null, qerror.New(qerror.BadType, "unary '-' requires a numeric operand")
		}
		return value.Number(-f), nil
	default:
		return value.Null, qerror.New(qerror.Internal, "unknown unary operator")
	}
}

// evalLogical implements the short-circuit requirement for && and ||: the
// right operand is never evaluated once the outcome is determined by the
// left one.
func evalLogical(n *Logical, lk *lookup.Lookup, row *lookup.Row) (value.Value, error) {
	x, err := Eval(n.X, lk, row)
	if err != nil {
		return value.Null, err
	}
	switch n.Op {
	case AND:
		if !x.Truthy() {
			return value.Number(0), nil
		}
		y, err := Eval(n.Y, lk, row)
		if err != nil {
			return value.Null, err
		}
		return value.Number(boolToFloat(y.Truthy())), nil
	case OR:
		if x.Truthy() {
			return value.Number(1), nil
		}
		y, err := Eval(n.Y, lk, row)
		if err != nil {
			return value.Null, err
		}
		return value.Number(boolToFloat(y.Truthy())), nil
	default:
		return value.Null, qerror.New(qerror.Internal, "unknown logical operator")
	}
}

func evalBinary(n *Binary, lk *lookup.Lookup, row *lookup.Row) (value.Value, error) {
	x, err := Eval(n.X, lk, row)
	if err != nil {
		return value.Null, err
	}
	y, err := Eval(n.Y, lk, row)
	if err != nil {
		return value.Null, err
	}

	switch n.Op {
	case EQ:
		return value.Number(boolToFloat(value.Equal(x, y))), nil
	case NEQ:
		return value.Number(boolToFloat(!value.Equal(x, y))), nil
	case LT, LTE, GT, GTE:
		c := value.Compare(x, y)
		var ok bool
		switch n.Op {
		case LT:
			ok = c < 0
		case LTE:
			ok = c <= 0
		case GT:
			ok = c > 0
		case GTE:
			ok = c >= 0
		}
		return value.Number(boolToFloat(ok)), nil
	case PLUS:
		// '+' also concatenates when either side is a non-numeric string,
		// matching the teacher's APPLY semantics for building labels.
		xf, xok := x.Number()
		yf, yok := y.Number()
		if xok && yok {
			return value.Number(xf + yf), nil
		}
		return value.String(x.String() + y.String()), nil
	case MINUS, STAR, SLASH, PCT, CARET:
		xf, ok := x.Number()
		if !ok {
			return value.Null, qerror.New(qerror.BadType, "arithmetic operator requires numeric operands")
		}
		yf, ok := y.Number()
		if !ok {
			return value.Null, qerror.New(qerror.BadType, "arithmetic operator requires numeric operands")
		}
		return value.Number(arith(n.Op, xf, yf)), nil
	default:
		return value.Null, qerror.New(qerror.Internal, "unknown binary operator")
	}
}

// arith implements the zero-division rules from spec.md §4.1: division and
// modulo by zero yield NaN except 0^0 == 1 and 1/0 == +Inf (and, by
// symmetry, any nonzero/0 == signed Inf).
func arith(op TokenType, x, y float64) float64 {
	switch op {
	case MINUS:
		return x - y
	case STAR:
		return x * y
	case SLASH:
		if y == 0 {
			if x == 0 {
				return math.NaN()
			}
			if x > 0 {
				return math.Inf(1)
			}
			return math.Inf(-1)
		}
		return x / y
	case PCT:
		if y == 0 {
			return math.NaN()
		}
		return math.Mod(x, y)
	case CARET:
		if x == 0 && y == 0 {
			return 1
		}
		return math.Pow(x, y)
	default:
		return math.NaN()
	}
}

func evalCall(n *Call, lk *lookup.Lookup, row *lookup.Row) (value.Value, error) {
	name := strings.ToLower(n.Name)
	switch name {
	case fnCase:
		return evalCase(n, lk, row)
	case fnHasField:
		return evalHasField(n, lk, row)
	case fnHasPrefix:
		return evalHasPrefix(n, lk, row)
	case fnExists:
		return evalExists(n, lk, row)
	}

	fn, ok := LookupFunction(name)
	if !ok {
		return value.Null, qerror.NewAt(qerror.NoFunction, fmt.Sprintf("unknown function %q", n.Name), n.Pos)
	}
	if len(n.Args) < fn.MinArgc || (fn.MaxArgc >= 0 && len(n.Args) > fn.MaxArgc) {
		return value.Null, qerror.NewAt(qerror.ParseArgs, fmt.Sprintf("%s: wrong number of arguments", n.Name), n.Pos)
	}
	args := make([]value.Value, len(n.Args))
	for i, a := range n.Args {
		v, err := Eval(a, lk, row)
		if err != nil {
			return value.Null, err
		}
		args[i] = v
	}
	return fn.Fn(args)
}

// evalCase implements case(cond, a, b): exactly one of a or b is
// evaluated, never both, per the short-circuit requirement in spec.md
// §4.1 (this is the S6 seed scenario).
func evalCase(n *Call, lk *lookup.Lookup, row *lookup.Row) (value.Value, error) {
	if len(n.Args) != 3 {
		return value.Null, qerror.NewAt(qerror.ParseArgs, "case: expects exactly 3 arguments", n.Pos)
	}
	cond, err := Eval(n.Args[0], lk, row)
	if err != nil {
		return value.Null, err
	}
	if cond.Truthy() {
		return Eval(n.Args[1], lk, row)
	}
	return Eval(n.Args[2], lk, row)
}

// evalHasField reports whether row's source hash has the named field.
// Absence yields false, not an error.
func evalHasField(n *Call, lk *lookup.Lookup, row *lookup.Row) (value.Value, error) {
	if len(n.Args) != 1 {
		return value.Null, qerror.NewAt(qerror.ParseArgs, "hasfield: expects exactly 1 argument", n.Pos)
	}
	name, err := literalStringArg(n.Args[0], lk, row)
	if err != nil {
		return value.Null, err
	}
	if row == nil || row.SourceHash == nil {
		return value.Number(0), nil
	}
	_, ok := row.SourceHash[name]
	return value.Number(boolToFloat(ok)), nil
}

// evalHasPrefix reports whether row's docKey starts with the given
// prefix. Missing docKey yields false.
func evalHasPrefix(n *Call, lk *lookup.Lookup, row *lookup.Row) (value.Value, error) {
	if len(n.Args) != 1 {
		return value.Null, qerror.NewAt(qerror.ParseArgs, "hasprefix: expects exactly 1 argument", n.Pos)
	}
	pfx, err := literalStringArg(n.Args[0], lk, row)
	if err != nil {
		return value.Null, err
	}
	if row == nil {
		return value.Number(0), nil
	}
	return value.Number(boolToFloat(strings.HasPrefix(row.DocKey, pfx))), nil
}

// evalExists reports whether a field reference resolves to a non-null
// value in row. Unlike hasfield (which checks the source hash), exists
// checks the bound lookup slot.
func evalExists(n *Call, lk *lookup.Lookup, row *lookup.Row) (value.Value, error) {
	if len(n.Args) != 1 {
		return value.Null, qerror.NewAt(qerror.ParseArgs, "exists: expects exactly 1 argument", n.Pos)
	}
	ref, ok := n.Args[0].(*FieldRef)
	if !ok {
		return value.Null, qerror.NewAt(qerror.BadType, "exists: argument must be a field reference", n.Pos)
	}
	v, err := evalField(ref, lk, row)
	if err != nil {
		return value.Null, err
	}
	return value.Number(boolToFloat(!v.IsNull())), nil
}

func literalStringArg(n Node, lk *lookup.Lookup, row *lookup.Row) (string, error) {
	if s, ok := n.(*StringLit); ok {
		return s.Value, nil
	}
	v, err := Eval(n, lk, row)
	if err != nil {
		return "", err
	}
	return v.String(), nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
