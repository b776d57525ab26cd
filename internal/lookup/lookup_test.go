package lookup

import (
	"testing"

	"github.com/stretchr/testify/require"

	"aggsearch/internal/value"
)

func TestGetOrAdd_StableSlotsIdempotent(t *testing.T) {
	l := New()
	k1, err := l.GetOrAdd("brand", Flags{Source: SourceDocument, Loadable: true})
	require.NoError(t, err)
	k2, err := l.GetOrAdd("brand", Flags{Source: SourceDocument, Loadable: true})
	require.NoError(t, err)
	require.Equal(t, k1.Slot, k2.Slot)

	_, err = l.GetOrAdd("price", Flags{Source: SourceComputed})
	require.NoError(t, err)
	require.Equal(t, 2, l.Len())
}

func TestGetOrAdd_ConflictingSource(t *testing.T) {
	l := New()
	_, err := l.GetOrAdd("x", Flags{Source: SourceDocument})
	require.NoError(t, err)
	_, err = l.GetOrAdd("x", Flags{Source: SourceComputed})
	require.Error(t, err)
}

func TestRow_MissingSlotReadsNull(t *testing.T) {
	r := NewRow(0)
	v, ok := r.Get(5)
	require.False(t, ok)
	require.True(t, v.IsNull())
}

func TestRow_SlotStableAcrossLifetime(t *testing.T) {
	l := New()
	k, err := l.GetOrAdd("t1", Flags{Source: SourceDocument})
	require.NoError(t, err)
	r := NewRow(l.Len())
	r.Set(k.Slot, value.String("value one"))
	got, ok := r.GetByKey(k)
	require.True(t, ok)
	require.Equal(t, "value one", got.String())
}

func TestRow_CloneIsIndependent(t *testing.T) {
	r := NewRow(1)
	r.Set(0, value.Number(1))
	c := r.Clone()
	c.Set(0, value.Number(2))
	v, _ := r.Get(0)
	require.Equal(t, 1.0, func() float64 { f, _ := v.Number(); return f }())
}
