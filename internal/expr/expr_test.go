package expr

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"aggsearch/internal/lookup"
	"aggsearch/internal/value"
)

func newRowWithField(t *testing.T, lk *lookup.Lookup, name string, v value.Value) *lookup.Row {
	t.Helper()
	k, err := lk.GetOrAdd(name, lookup.Flags{Source: lookup.SourceComputed, Loaded: true})
	require.NoError(t, err)
	row := lookup.NewRow(lk.Len())
	row.Set(k.Slot, v)
	return row
}

// TestCase_ShortCircuitsUnusedBranch is the S6 seed scenario:
// case(1, @foo + 10, @foo / 0) against {foo: 5} must yield 15. The
// divide-by-zero branch would evaluate to +Inf rather than an error, so
// this result check alone does not show whether that branch was skipped.
func TestCase_ShortCircuitsUnusedBranch(t *testing.T) {
	lk := lookup.New()
	row := newRowWithField(t, lk, "foo", value.Number(5))

	node, err := Parse("case(1, @foo + 10, @foo / 0)")
	require.NoError(t, err)

	got, err := Eval(node, lk, row)
	require.NoError(t, err)
	f, ok := got.Number()
	require.True(t, ok)
	require.Equal(t, 15.0, f)
}

func TestCase_FalseBranchTakesElse(t *testing.T) {
	lk := lookup.New()
	row := newRowWithField(t, lk, "foo", value.Number(5))

	node, err := Parse("case(0, @foo / 0, @foo + 1)")
	require.NoError(t, err)

	got, err := Eval(node, lk, row)
	require.NoError(t, err)
	f, ok := got.Number()
	require.True(t, ok)
	require.Equal(t, 6.0, f)
}

func TestLogicalAnd_ShortCircuits(t *testing.T) {
	node, err := Parse("0 && (1 / 0)")
	require.NoError(t, err)
	got, err := Eval(node, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 0.0, mustNumber(t, got))
}

func TestLogicalOr_ShortCircuits(t *testing.T) {
	node, err := Parse("1 || (1 / 0)")
	require.NoError(t, err)
	got, err := Eval(node, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1.0, mustNumber(t, got))
}

func TestDivisionByZero_Rules(t *testing.T) {
	cases := []struct {
		expr string
		want float64
	}{
		{"1 / 0", math.Inf(1)},
		{"-1 / 0", math.Inf(-1)},
		{"0 ^ 0", 1},
		{"5 % 0", math.NaN()},
	}
	for _, c := range cases {
		node, err := Parse(c.expr)
		require.NoError(t, err)
		got, err := Eval(node, nil, nil)
		require.NoError(t, err)
		f := mustNumber(t, got)
		if math.IsNaN(c.want) {
			require.True(t, math.IsNaN(f), "expr %q", c.expr)
			continue
		}
		require.Equal(t, c.want, f, "expr %q", c.expr)
	}
}

func TestZeroDividedByZero_IsNaN(t *testing.T) {
	node, err := Parse("0 / 0")
	require.NoError(t, err)
	got, err := Eval(node, nil, nil)
	require.NoError(t, err)
	require.True(t, math.IsNaN(mustNumber(t, got)))
}

func TestPowerOperator_RightAssociative(t *testing.T) {
	// 2 ^ (3 ^ 2) == 2 ^ 9 == 512, not (2 ^ 3) ^ 2 == 64.
	node, err := Parse("2 ^ 3 ^ 2")
	require.NoError(t, err)
	got, err := Eval(node, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 512.0, mustNumber(t, got))
}

func TestHasField_AbsentYieldsFalseNotError(t *testing.T) {
	lk := lookup.New()
	row := lookup.NewRow(0)
	row.SourceHash = map[string]value.Value{"title": value.String("x")}

	node, err := Parse(`hasfield("title")`)
	require.NoError(t, err)
	got, err := Eval(node, lk, row)
	require.NoError(t, err)
	require.Equal(t, 1.0, mustNumber(t, got))

	node, err = Parse(`hasfield("missing")`)
	require.NoError(t, err)
	got, err = Eval(node, lk, row)
	require.NoError(t, err)
	require.Equal(t, 0.0, mustNumber(t, got))
}

func TestHasPrefix(t *testing.T) {
	lk := lookup.New()
	row := lookup.NewRow(0)
	row.DocKey = "doc:product:42"

	node, err := Parse(`hasprefix("doc:product:")`)
	require.NoError(t, err)
	got, err := Eval(node, lk, row)
	require.NoError(t, err)
	require.Equal(t, 1.0, mustNumber(t, got))
}

func TestExists(t *testing.T) {
	lk := lookup.New()
	row := newRowWithField(t, lk, "foo", value.Number(5))

	node, err := Parse("exists(@foo)")
	require.NoError(t, err)
	got, err := Eval(node, lk, row)
	require.NoError(t, err)
	require.Equal(t, 1.0, mustNumber(t, got))

	node, err = Parse("exists(@bar)")
	require.NoError(t, err)
	got, err = Eval(node, lk, row)
	require.NoError(t, err)
	require.Equal(t, 0.0, mustNumber(t, got))
}

func TestUnknownFunction_ReturnsNoFunctionError(t *testing.T) {
	node, err := Parse("frobnicate(1)")
	require.NoError(t, err)
	_, err = Eval(node, nil, nil)
	require.Error(t, err)
}

// TestDumpRoundTrip checks parse(dump(parse(s))) is semantically equal to
// parse(s) by evaluating both ASTs and comparing results, across a set of
// expressions touching every node kind.
func TestDumpRoundTrip(t *testing.T) {
	exprs := []string{
		`1 + 2 * 3`,
		`(1 + 2) * 3`,
		`!0 && 1`,
		`-5 ^ 2`,
		`case(1, 2, 3)`,
		`upper("abc")`,
		`2 ^ 3 ^ 2`,
	}
	for _, s := range exprs {
		n1, err := Parse(s)
		require.NoError(t, err, s)
		dumped := Dump(n1)
		n2, err := Parse(dumped)
		require.NoError(t, err, "re-parsing dump of %q -> %q", s, dumped)

		v1, err := Eval(n1, nil, nil)
		require.NoError(t, err, s)
		v2, err := Eval(n2, nil, nil)
		require.NoError(t, err, dumped)
		require.True(t, value.Equal(v1, v2) || (isNaNValue(v1) && isNaNValue(v2)), "round-trip mismatch for %q", s)
	}
}

func TestDumpObfuscated_HidesLiterals(t *testing.T) {
	node, err := Parse(`@secret == "topvalue"`)
	require.NoError(t, err)
	out := DumpObfuscated(node)
	require.NotContains(t, out, "secret")
	require.NotContains(t, out, "topvalue")
}

func mustNumber(t *testing.T, v value.Value) float64 {
	t.Helper()
	f, ok := v.Number()
	require.True(t, ok)
	return f
}

func isNaNValue(v value.Value) bool {
	f, ok := v.Number()
	return ok && math.IsNaN(f)
}
