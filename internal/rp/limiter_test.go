package rp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLimiterProcessor_OffsetAndCount(t *testing.T) {
	idx := newIndexStage([]uint64{1, 2, 3, 4, 5}, []float64{5, 4, 3, 2, 1})
	lim := NewLimiterProcessor(idx, 1, 2)

	out := drainAll(t, lim)
	require.Len(t, out, 2)
	require.Equal(t, uint64(2), out[0].DocID)
	require.Equal(t, uint64(3), out[1].DocID)
}

func TestLimiterProcessor_ZeroCountMeansUnbounded(t *testing.T) {
	idx := newIndexStage([]uint64{1, 2, 3}, []float64{3, 2, 1})
	lim := NewLimiterProcessor(idx, 1, 0)

	out := drainAll(t, lim)
	require.Len(t, out, 2)
	require.Equal(t, uint64(2), out[0].DocID)
	require.Equal(t, uint64(3), out[1].DocID)
}

func TestLimiterProcessor_OffsetBeyondUpstreamYieldsEOF(t *testing.T) {
	idx := newIndexStage([]uint64{1, 2}, []float64{2, 1})
	lim := NewLimiterProcessor(idx, 10, 5)

	out := drainAll(t, lim)
	require.Len(t, out, 0)
}
