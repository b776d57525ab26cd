package distribute

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"aggsearch/internal/aggplan"
	"aggsearch/internal/engine"
	"aggsearch/internal/lookup"
	"aggsearch/internal/rp"
	"aggsearch/internal/value"
)

// newCoordRow builds a synthetic shard-reply row sized to lk, setting the
// named fields — standing in for what the command/reply-codec layer would
// decode off the wire before handing rows to a NetworkProcessor.
func newCoordRow(t *testing.T, lk *lookup.Lookup, fields map[string]value.Value) *lookup.Row {
	t.Helper()
	row := lookup.NewRow(lk.Len())
	for name, v := range fields {
		key, ok := lk.Find(name)
		require.True(t, ok, "field %q never registered on coordinator Lookup", name)
		row.Set(key.Slot, v)
	}
	return row
}

// drainTail runs tail to completion, returning every emitted row.
func drainTail(t *testing.T, tail rp.Processor) []rp.SearchResult {
	t.Helper()
	var out []rp.SearchResult
	ctx := context.Background()
	for {
		var sr rp.SearchResult
		status, err := tail.Next(ctx, &sr)
		require.NoError(t, err)
		if status == rp.StatusEof {
			break
		}
		out = append(out, sr)
	}
	return out
}

// byCategory indexes drainTail's output by the "category" group key for
// order-independent assertions.
func byCategory(t *testing.T, lk *lookup.Lookup, rows []rp.SearchResult) map[string]rp.SearchResult {
	t.Helper()
	catKey, ok := lk.Find("category")
	require.True(t, ok)
	out := map[string]rp.SearchResult{}
	for _, sr := range rows {
		cat, _ := sr.Row.GetByKey(catKey)
		out[cat.String()] = sr
	}
	return out
}

// TestSplit_CountDistinct_CoordinatorAppliesArraylen builds a COUNT_DISTINCT
// plan, splits it, and runs the coordinator subplan end-to-end against
// hand-built shard-reply rows, so the CoordApply node (arraylen(@...)) is
// actually evaluated rather than merely asserted to exist.
func TestSplit_CountDistinct_CoordinatorAppliesArraylen(t *testing.T) {
	b := aggplan.NewBuilder("idx", "*", nil).
		Load("category", "tag").
		GroupBy([]string{"category"}, []aggplan.Reducer{
			{Func: "COUNT_DISTINCT", Args: []string{"tag"}, Alias: "distincttags"},
		})
	p, err := b.Build()
	require.NoError(t, err)

	split, err := Split(p)
	require.NoError(t, err)
	coordLk := split.CoordPlan.Lookup

	// Two shards both saw category "a"; their partial distinct lists
	// overlap on "x", so the union must dedup it.
	rowA1 := newCoordRow(t, coordLk, map[string]value.Value{
		"category": value.String("a"),
		"distincttags__distinct_partial": value.Array([]value.Value{
			value.String("x"), value.String("y"),
		}),
	})
	rowA2 := newCoordRow(t, coordLk, map[string]value.Value{
		"category": value.String("a"),
		"distincttags__distinct_partial": value.Array([]value.Value{
			value.String("x"), value.String("z"),
		}),
	})
	rowB := newCoordRow(t, coordLk, map[string]value.Value{
		"category": value.String("b"),
		"distincttags__distinct_partial": value.Array([]value.Value{
			value.String("w"),
		}),
	})

	network := rp.NewNetworkProcessor([]rp.SearchResult{
		{DocID: 1, Row: rowA1}, {DocID: 2, Row: rowA2}, {DocID: 3, Row: rowB},
	})
	tail, cursor, err := engine.Build(context.Background(), split.CoordPlan, engine.Options{NetworkRoot: network})
	require.NoError(t, err)
	require.Nil(t, cursor)

	byCat := byCategory(t, coordLk, drainTail(t, tail))
	require.Len(t, byCat, 2)

	outKey, ok := coordLk.Find("distincttags")
	require.True(t, ok)

	a, _ := byCat["a"].Row.GetByKey(outKey)
	n, ok := a.Number()
	require.True(t, ok)
	require.Equal(t, 3.0, n) // x, y, z

	bb, _ := byCat["b"].Row.GetByKey(outKey)
	n, ok = bb.Number()
	require.True(t, ok)
	require.Equal(t, 1.0, n)
}

// TestSplit_Avg_CoordinatorAppliesDivision exercises AVG's CoordApply
// (@sum_merged / @count_merged) against synthetic shard replies.
func TestSplit_Avg_CoordinatorAppliesDivision(t *testing.T) {
	b := aggplan.NewBuilder("idx", "*", nil).
		Load("category", "price").
		GroupBy([]string{"category"}, []aggplan.Reducer{
			{Func: "AVG", Args: []string{"price"}, Alias: "avgprice"},
		})
	p, err := b.Build()
	require.NoError(t, err)

	split, err := Split(p)
	require.NoError(t, err)
	coordLk := split.CoordPlan.Lookup

	rowA1 := newCoordRow(t, coordLk, map[string]value.Value{
		"category":        value.String("a"),
		"avgprice__sum":   value.Number(10),
		"avgprice__count": value.Number(2),
	})
	rowA2 := newCoordRow(t, coordLk, map[string]value.Value{
		"category":        value.String("a"),
		"avgprice__sum":   value.Number(20),
		"avgprice__count": value.Number(3),
	})
	rowB := newCoordRow(t, coordLk, map[string]value.Value{
		"category":        value.String("b"),
		"avgprice__sum":   value.Number(9),
		"avgprice__count": value.Number(3),
	})

	network := rp.NewNetworkProcessor([]rp.SearchResult{
		{DocID: 1, Row: rowA1}, {DocID: 2, Row: rowA2}, {DocID: 3, Row: rowB},
	})
	tail, cursor, err := engine.Build(context.Background(), split.CoordPlan, engine.Options{NetworkRoot: network})
	require.NoError(t, err)
	require.Nil(t, cursor)

	byCat := byCategory(t, coordLk, drainTail(t, tail))
	require.Len(t, byCat, 2)

	outKey, ok := coordLk.Find("avgprice")
	require.True(t, ok)

	a, _ := byCat["a"].Row.GetByKey(outKey)
	n, ok := a.Number()
	require.True(t, ok)
	require.Equal(t, 6.0, n) // (10+20)/(2+3)

	bb, _ := byCat["b"].Row.GetByKey(outKey)
	n, ok = bb.Number()
	require.True(t, ok)
	require.Equal(t, 3.0, n) // 9/3
}

// TestSplit_Stddev_CoordinatorAppliesFormula exercises STDDEV's CoordApply
// (sqrt(sumx2/n - (sumx/n)^2)) against synthetic shard replies.
func TestSplit_Stddev_CoordinatorAppliesFormula(t *testing.T) {
	b := aggplan.NewBuilder("idx", "*", nil).
		Load("category", "price").
		GroupBy([]string{"category"}, []aggplan.Reducer{
			{Func: "STDDEV", Args: []string{"price"}, Alias: "pricedev"},
		})
	p, err := b.Build()
	require.NoError(t, err)

	split, err := Split(p)
	require.NoError(t, err)
	coordLk := split.CoordPlan.Lookup

	// Single shard reports the whole population {2, 4, 4, 4, 5, 5, 7, 9}
	// for category "a" in one partial, so the expected result is that
	// population's textbook standard deviation (2.0).
	row := newCoordRow(t, coordLk, map[string]value.Value{
		"category":         value.String("a"),
		"pricedev__sumx":  value.Number(40),  // sum of values
		"pricedev__sumx2": value.Number(232), // sum of squares
		"pricedev__n":     value.Number(8),
	})

	network := rp.NewNetworkProcessor([]rp.SearchResult{{DocID: 1, Row: row}})
	tail, cursor, err := engine.Build(context.Background(), split.CoordPlan, engine.Options{NetworkRoot: network})
	require.NoError(t, err)
	require.Nil(t, cursor)

	out := drainTail(t, tail)
	require.Len(t, out, 1)

	outKey, ok := coordLk.Find("pricedev")
	require.True(t, ok)
	v, _ := out[0].Row.GetByKey(outKey)
	n, ok := v.Number()
	require.True(t, ok)
	require.InDelta(t, math.Sqrt(232.0/8-(40.0/8)*(40.0/8)), n, 1e-9)
}

func TestSplit_NoGroup_EverythingShardLocal(t *testing.T) {
	b := aggplan.NewBuilder("idx", "*", nil).
		Load("title").
		Filter("@title != \"\"").
		Limit(0, 10)
	p, err := b.Build()
	require.NoError(t, err)

	split, err := Split(p)
	require.NoError(t, err)
	require.Len(t, split.ShardPlan.Steps, len(p.Steps))
	require.Len(t, split.CoordPlan.Steps, 1) // just the DistributeStep marker
}

func TestSplit_Group_CutsAtGroupStep(t *testing.T) {
	b := aggplan.NewBuilder("idx", "*", nil).
		Load("category", "price").
		GroupBy([]string{"category"}, []aggplan.Reducer{
			{Func: "SUM", Args: []string{"price"}, Alias: "total"},
		}).
		Limit(0, 10)
	p, err := b.Build()
	require.NoError(t, err)

	split, err := Split(p)
	require.NoError(t, err)

	// shard plan: Root, Load, Group(partial)
	require.Len(t, split.ShardPlan.Steps, 3)
	shardGroup, ok := split.ShardPlan.Steps[2].(aggplan.GroupStep)
	require.True(t, ok)
	require.Equal(t, []string{"category"}, shardGroup.Keys)
	require.Len(t, shardGroup.Reducers, 1)
	require.Equal(t, "SUM", shardGroup.Reducers[0].Func)
	require.Equal(t, "total__sum", shardGroup.Reducers[0].Alias)

	// coord plan: Distribute, Group(merge), Limit
	require.Len(t, split.CoordPlan.Steps, 3)
	coordGroup, ok := split.CoordPlan.Steps[1].(aggplan.GroupStep)
	require.True(t, ok)
	require.Equal(t, "SUM", coordGroup.Reducers[0].Func)
	require.Equal(t, []string{"total__sum"}, coordGroup.Reducers[0].Args)
	require.Equal(t, "total", coordGroup.Reducers[0].Alias)
}

func TestSplit_AvgReducer_ProducesSumCountAndApply(t *testing.T) {
	b := aggplan.NewBuilder("idx", "*", nil).
		Load("category", "price").
		GroupBy([]string{"category"}, []aggplan.Reducer{
			{Func: "AVG", Args: []string{"price"}, Alias: "avgprice"},
		})
	p, err := b.Build()
	require.NoError(t, err)

	split, err := Split(p)
	require.NoError(t, err)

	shardGroup := split.ShardPlan.Steps[len(split.ShardPlan.Steps)-1].(aggplan.GroupStep)
	require.Len(t, shardGroup.Reducers, 2)

	var sawApply bool
	for _, s := range split.CoordPlan.Steps {
		if a, ok := s.(aggplan.ApplyStep); ok {
			require.Equal(t, "avgprice", a.Alias)
			require.NotNil(t, a.Expr)
			sawApply = true
		}
	}
	require.True(t, sawApply, "coordinator plan must finish AVG with an APPLY step")
}

func TestSerializeShardPlan_RoundTripsTokens(t *testing.T) {
	b := aggplan.NewBuilder("idx", "hello", nil).Load("a", "b").Limit(0, 5)
	p, err := b.Build()
	require.NoError(t, err)
	split, err := Split(p)
	require.NoError(t, err)
	require.Contains(t, split.ShardArgv, "idx")
	require.Contains(t, split.ShardArgv, "LOAD")
	require.Contains(t, split.ShardArgv, "LIMIT")
}

func TestDirectDispatcher_CallsHandler(t *testing.T) {
	var gotShard int
	var gotArgv []string
	d := NewDirectDispatcher(func(ctx context.Context, shardID int, argv []string) error {
		gotShard = shardID
		gotArgv = argv
		return nil
	})
	err := d.Dispatch(context.Background(), 3, []string{"a", "b"})
	require.NoError(t, err)
	require.Equal(t, 3, gotShard)
	require.Equal(t, []string{"a", "b"}, gotArgv)
}
