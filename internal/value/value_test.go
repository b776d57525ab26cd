package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatNumber(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{3, "3"},
		{-3, "-3"},
		{math.NaN(), "nan"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, FormatNumber(c.in))
	}
}

func TestParseNumber_FullBufferMatch(t *testing.T) {
	_, ok := ParseNumber("12.5abc")
	require.False(t, ok, "trailing garbage must be rejected")

	f, ok := ParseNumber("  12.5  ")
	require.True(t, ok)
	require.Equal(t, 12.5, f)

	f, ok = ParseNumber("-inf")
	require.True(t, ok)
	require.True(t, math.IsInf(f, -1))
}

func TestCompare_TotalOrderAcrossKinds(t *testing.T) {
	require.True(t, Compare(Null, Number(0)) < 0)
	require.True(t, Compare(Number(0), String("")) < 0)
	require.True(t, Compare(String("z"), Array(nil)) < 0)
	require.True(t, Equal(Null, Null))
	require.False(t, Equal(Null, Number(0)))
}

func TestCompare_NaNOrdering(t *testing.T) {
	require.Equal(t, 0, Compare(Number(math.NaN()), Number(math.NaN())))
	require.True(t, Compare(Number(math.NaN()), Number(-1e300)) < 0)
}

func TestDeref_SingleHop(t *testing.T) {
	inner := Number(42)
	ref := Reference(&inner)
	require.Equal(t, 42.0, func() float64 { f, _ := ref.Number(); return f }())
}

func TestHashKey_NaNCanonicalizes(t *testing.T) {
	require.Equal(t, HashKey(Number(math.NaN())), HashKey(Number(-math.NaN())))
	require.NotEqual(t, HashKey(String("a")), HashKey(String("b")))
}
