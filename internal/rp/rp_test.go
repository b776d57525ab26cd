package rp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"aggsearch/internal/aggplan"
	"aggsearch/internal/kvstore"
	"aggsearch/internal/lookup"
	"aggsearch/internal/value"
)

func newIndexStage(ids []uint64, scores []float64) *IndexProcessor {
	return NewIndexProcessor(NewSliceIterator(ids, scores), 1)
}

func drainAll(t *testing.T, p Processor) []SearchResult {
	t.Helper()
	var out []SearchResult
	ctx := context.Background()
	for {
		var sr SearchResult
		status, err := p.Next(ctx, &sr)
		require.NoError(t, err)
		if status == StatusEof {
			return out
		}
		require.Equal(t, StatusOk, status)
		out = append(out, sr)
	}
}

func TestLoaderProcessor_FetchesDeclaredFields(t *testing.T) {
	store := kvstore.NewMemStore()
	store.Put(DocKeyOf(1), map[string]value.Value{"title": value.String("a"), "price": value.Number(10)})
	store.Put(DocKeyOf(2), map[string]value.Value{"title": value.String("b")})

	lk := lookup.New()
	titleKey, err := lk.GetOrAdd("title", lookup.Flags{Source: lookup.SourceDocument, Loadable: true})
	require.NoError(t, err)
	priceKey, err := lk.GetOrAdd("price", lookup.Flags{Source: lookup.SourceDocument, Loadable: true})
	require.NoError(t, err)

	idx := newIndexStage([]uint64{1, 2}, []float64{1, 1})
	loader := NewLoaderProcessor(idx, store, lk, []string{"title", "price"}, 1)

	results := drainAll(t, loader)
	require.Len(t, results, 2)
	v, ok := results[0].Row.GetByKey(titleKey)
	require.True(t, ok)
	require.Equal(t, "a", v.String())
	v, _ = results[0].Row.GetByKey(priceKey)
	f, _ := v.Number()
	require.Equal(t, 10.0, f)

	// doc 2 has no price: expect Null, not a propagated error.
	v, ok = results[1].Row.GetByKey(priceKey)
	require.True(t, ok)
	require.True(t, v.IsNull())
}

func TestLoaderProcessor_MissingDocWritesNull(t *testing.T) {
	store := kvstore.NewMemStore()
	lk := lookup.New()
	titleKey, err := lk.GetOrAdd("title", lookup.Flags{Source: lookup.SourceDocument, Loadable: true})
	require.NoError(t, err)

	idx := newIndexStage([]uint64{9}, []float64{1})
	loader := NewLoaderProcessor(idx, store, lk, []string{"title"}, 8)
	results := drainAll(t, loader)
	require.Len(t, results, 1)
	v, ok := results[0].Row.GetByKey(titleKey)
	require.True(t, ok)
	require.True(t, v.IsNull())
}

func rowWithSlot(lk *lookup.Lookup, name string, v value.Value) *lookup.Row {
	k, _ := lk.Find(name)
	row := lookup.NewRow(lk.Len())
	row.Set(k.Slot, v)
	return row
}

type fixedProcessor struct {
	results []SearchResult
	pos     int
}

func (f *fixedProcessor) Kind() Kind { return KindIndex }
func (f *fixedProcessor) Next(_ context.Context, out *SearchResult) (Status, error) {
	if f.pos >= len(f.results) {
		return StatusEof, nil
	}
	*out = f.results[f.pos]
	f.pos++
	return StatusOk, nil
}
func (f *fixedProcessor) Free() {}

func TestSorterProcessor_BoundsToMaxAndBreaksTiesByDocID(t *testing.T) {
	lk := lookup.New()
	_, err := lk.GetOrAdd("score", lookup.Flags{Source: lookup.SourceComputed, Loaded: true})
	require.NoError(t, err)

	mk := func(id uint64, score float64) SearchResult {
		return SearchResult{DocID: id, Row: rowWithSlot(lk, "score", value.Number(score))}
	}
	src := &fixedProcessor{results: []SearchResult{
		mk(3, 5), mk(1, 5), mk(2, 9), mk(4, 1),
	}}
	sorter := NewSorterProcessor(src, lk, []aggplan.SortKey{{Field: "score", Asc: false}}, 2)
	out := drainAll(t, sorter)
	require.Len(t, out, 2)
	require.Equal(t, uint64(2), out[0].DocID)
	// doc 3 and doc 1 tie on score=5; ascending docId breaks the tie.
	require.Equal(t, uint64(1), out[1].DocID)
}

func TestSorterProcessor_Unbounded(t *testing.T) {
	lk := lookup.New()
	_, err := lk.GetOrAdd("score", lookup.Flags{Source: lookup.SourceComputed, Loaded: true})
	require.NoError(t, err)
	mk := func(id uint64, score float64) SearchResult {
		return SearchResult{DocID: id, Row: rowWithSlot(lk, "score", value.Number(score))}
	}
	src := &fixedProcessor{results: []SearchResult{mk(1, 1), mk(2, 3), mk(3, 2)}}
	sorter := NewSorterProcessor(src, lk, []aggplan.SortKey{{Field: "score", Asc: true}}, 0)
	out := drainAll(t, sorter)
	require.Equal(t, []uint64{1, 3, 2}, []uint64{out[0].DocID, out[1].DocID, out[2].DocID})
}

func TestGrouperProcessor_BucketsAndEmitsInsertionOrder(t *testing.T) {
	upstreamLk := lookup.New()
	_, err := upstreamLk.GetOrAdd("brand", lookup.Flags{Source: lookup.SourceDocument, Loaded: true})
	require.NoError(t, err)
	_, err = upstreamLk.GetOrAdd("price", lookup.Flags{Source: lookup.SourceDocument, Loaded: true})
	require.NoError(t, err)

	outLk := lookup.New()
	_, err = outLk.GetOrAdd("brand", lookup.Flags{Source: lookup.SourceComputed, Loaded: true})
	require.NoError(t, err)
	_, err = outLk.GetOrAdd("total", lookup.Flags{Source: lookup.SourceComputed, Loaded: true})
	require.NoError(t, err)
	_, err = outLk.GetOrAdd("c", lookup.Flags{Source: lookup.SourceComputed, Loaded: true})
	require.NoError(t, err)

	mkRow := func(brand string, price float64) *lookup.Row {
		row := lookup.NewRow(upstreamLk.Len())
		bk, _ := upstreamLk.Find("brand")
		pk, _ := upstreamLk.Find("price")
		row.Set(bk.Slot, value.String(brand))
		row.Set(pk.Slot, value.Number(price))
		return row
	}
	src := &fixedProcessor{results: []SearchResult{
		{Row: mkRow("sony", 10)},
		{Row: mkRow("lg", 20)},
		{Row: mkRow("sony", 30)},
	}}

	reducers := []aggplan.Reducer{
		{Func: "SUM", Args: []string{"price"}, Alias: "total"},
		{Func: "COUNT", Args: nil, Alias: "c"},
	}
	grouper := NewGrouperProcessor(src, upstreamLk, outLk, []string{"brand"}, reducers)
	out := drainAll(t, grouper)
	require.Len(t, out, 2)

	brandKey, _ := outLk.Find("brand")
	totalKey, _ := outLk.Find("total")
	cKey, _ := outLk.Find("c")

	b0, _ := out[0].Row.GetByKey(brandKey)
	require.Equal(t, "sony", b0.String())
	total0, _ := out[0].Row.GetByKey(totalKey)
	f, _ := total0.Number()
	require.Equal(t, 40.0, f)
	c0, _ := out[0].Row.GetByKey(cKey)
	cf, _ := c0.Number()
	require.Equal(t, 2.0, cf)

	b1, _ := out[1].Row.GetByKey(brandKey)
	require.Equal(t, "lg", b1.String())
}

func TestGrouperProcessor_ArrayKeyCartesianExpansion(t *testing.T) {
	upstreamLk := lookup.New()
	_, err := upstreamLk.GetOrAdd("tag", lookup.Flags{Source: lookup.SourceDocument, Loaded: true})
	require.NoError(t, err)
	outLk := lookup.New()
	_, err = outLk.GetOrAdd("tag", lookup.Flags{Source: lookup.SourceComputed, Loaded: true})
	require.NoError(t, err)
	_, err = outLk.GetOrAdd("c", lookup.Flags{Source: lookup.SourceComputed, Loaded: true})
	require.NoError(t, err)

	tk, _ := upstreamLk.Find("tag")
	row := lookup.NewRow(upstreamLk.Len())
	row.Set(tk.Slot, value.Array([]value.Value{value.String("a"), value.String("b")}))
	src := &fixedProcessor{results: []SearchResult{{Row: row}}}

	grouper := NewGrouperProcessor(src, upstreamLk, outLk, []string{"tag"}, []aggplan.Reducer{{Func: "COUNT", Alias: "c"}})
	out := drainAll(t, grouper)
	require.Len(t, out, 2)
}

func TestDepleterProcessor_PreservesUpstreamOrder(t *testing.T) {
	src := &fixedProcessor{results: []SearchResult{{DocID: 1}, {DocID: 2}, {DocID: 3}}}
	depleter := NewDepleterProcessor(src, 2)
	out := drainAll(t, depleter)
	require.Equal(t, []uint64{1, 2, 3}, []uint64{out[0].DocID, out[1].DocID, out[2].DocID})
	depleter.Free()
}

func TestHybridMergerProcessor_FusesBranchesByRRF(t *testing.T) {
	branchA := &fixedProcessor{results: []SearchResult{{DocID: 1}, {DocID: 2}}}
	branchB := &fixedProcessor{results: []SearchResult{{DocID: 2}, {DocID: 1}}}
	merger := NewHybridMergerProcessor([]Processor{branchA, branchB}, aggplan.HybridMergeStep{
		Mode: aggplan.FusionRRF, K: 10, Window: 10, RRFConstant: 60,
	})
	out := drainAll(t, merger)
	require.Len(t, out, 2)
	// Symmetric ranks: doc1 and doc2 tie exactly; ascending DocID breaks it.
	require.Equal(t, uint64(1), out[0].DocID)
}
