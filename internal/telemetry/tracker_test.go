package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"aggsearch/internal/lookup"
	"aggsearch/internal/rp"
)

// fixedRows is a minimal root rp.Processor emitting a fixed number of rows,
// used only to exercise Tracker's wrapping/draining without a real index.
type fixedRows struct {
	n    int
	emit int
}

func (f *fixedRows) Kind() rp.Kind { return rp.KindIndex }

func (f *fixedRows) Next(ctx context.Context, out *rp.SearchResult) (rp.Status, error) {
	if f.emit >= f.n {
		return rp.StatusEof, nil
	}
	out.DocID = uint64(f.emit)
	out.Row = lookup.NewRow(0)
	f.emit++
	return rp.StatusOk, nil
}

func (f *fixedRows) Free() {}

// passThrough is a single-upstream processor forwarding Next verbatim,
// standing in for a FILTER/PROJECTOR-shaped node in the chain.
type passThrough struct {
	up   rp.Processor
	kind rp.Kind
}

func (p *passThrough) Kind() rp.Kind            { return p.kind }
func (p *passThrough) Upstream() rp.Processor   { return p.up }
func (p *passThrough) Free()                    { p.up.Free() }
func (p *passThrough) Next(ctx context.Context, out *rp.SearchResult) (rp.Status, error) {
	return p.up.Next(ctx, out)
}

func TestTracker_WrapsChainAndCountsRows(t *testing.T) {
	root := &fixedRows{n: 3}
	filt := &passThrough{up: root, kind: rp.KindFilter}
	proj := &passThrough{up: filt, kind: rp.KindProjector}

	tr := Wrap(proj)
	tail := tr.Tail()

	var got int
	for {
		var out rp.SearchResult
		status, err := tail.Next(context.Background(), &out)
		require.NoError(t, err)
		if status == rp.StatusEof {
			break
		}
		got++
	}
	require.Equal(t, 3, got)

	timings := tr.Timings()
	require.Len(t, timings, 3)
	require.Equal(t, "INDEX", timings[0].Kind)
	require.Equal(t, "FILTER", timings[1].Kind)
	require.Equal(t, "PROJECTOR", timings[2].Kind)
	for _, tm := range timings {
		require.Equal(t, int64(3), tm.RowsOut)
	}
}

func TestOpen_EmptyDSNDisablesSink(t *testing.T) {
	sink, err := Open(context.Background(), Config{})
	require.NoError(t, err)
	require.Nil(t, sink)

	// Nil-safe: Append/Close on a disabled sink never panic or error.
	require.NoError(t, sink.Append(context.Background(), Record{}))
	require.NoError(t, sink.Close())
}
