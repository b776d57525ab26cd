package rp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNetworkProcessor_ReplaysGivenRowsInOrder(t *testing.T) {
	rows := []SearchResult{
		{DocID: 1, Score: 3},
		{DocID: 2, Score: 1},
	}
	p := NewNetworkProcessor(rows)

	out := drainAll(t, p)
	require.Len(t, out, 2)
	require.Equal(t, uint64(1), out[0].DocID)
	require.Equal(t, uint64(2), out[1].DocID)
}

func TestNetworkProcessor_EmptyRowsYieldsImmediateEof(t *testing.T) {
	p := NewNetworkProcessor(nil)
	out := drainAll(t, p)
	require.Len(t, out, 0)
}
