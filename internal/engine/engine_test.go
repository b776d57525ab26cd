package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"aggsearch/internal/aggplan"
	"aggsearch/internal/kvstore"
	"aggsearch/internal/rp"
	"aggsearch/internal/value"
)

type staticResolver struct {
	ids    []uint64
	scores []float64
}

func (r staticResolver) Resolve(ctx context.Context, index, query string) (rp.IndexIterator, error) {
	return kvstore.NewStaticIterator(r.ids, r.scores), nil
}

func TestBuild_SearchPlan_LoadSortLimit(t *testing.T) {
	store := kvstore.NewMemStore()
	store.Put(rp.DocKeyOf(1), map[string]value.Value{"price": value.Number(10)})
	store.Put(rp.DocKeyOf(2), map[string]value.Value{"price": value.Number(30)})
	store.Put(rp.DocKeyOf(3), map[string]value.Value{"price": value.Number(20)})

	b := aggplan.NewBuilder("idx", "*", nil).
		Load("price").
		SortBy([]aggplan.SortKey{{Field: "price", Asc: false}}, 0).
		Limit(0, 2)
	plan, err := b.Build()
	require.NoError(t, err)

	tail, cursor, err := Build(context.Background(), plan, Options{
		Resolve: staticResolver{ids: []uint64{1, 2, 3}, scores: []float64{1, 1, 1}},
		Store:   store,
	})
	require.NoError(t, err)
	require.Nil(t, cursor)

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
	require.Len(t, out, 2)
	require.Equal(t, uint64(2), out[0].DocID) // price 30, highest first
	require.Equal(t, uint64(3), out[1].DocID) // price 20
}

func TestBuild_AggregatePlan_GroupAndArrange(t *testing.T) {
	store := kvstore.NewMemStore()
	store.Put(rp.DocKeyOf(1), map[string]value.Value{"category": value.String("a"), "price": value.Number(10)})
	store.Put(rp.DocKeyOf(2), map[string]value.Value{"category": value.String("a"), "price": value.Number(5)})
	store.Put(rp.DocKeyOf(3), map[string]value.Value{"category": value.String("b"), "price": value.Number(7)})

	b := aggplan.NewBuilder("idx", "*", nil).
		Load("category", "price").
		GroupBy([]string{"category"}, []aggplan.Reducer{
			{Func: "SUM", Args: []string{"price"}, Alias: "total"},
		}).
		SortBy([]aggplan.SortKey{{Field: "total", Asc: false}}, 0)
	plan, err := b.Build()
	require.NoError(t, err)

	tail, cursor, err := Build(context.Background(), plan, Options{
		Resolve: staticResolver{ids: []uint64{1, 2, 3}, scores: []float64{1, 1, 1}},
		Store:   store,
	})
	require.NoError(t, err)
	require.Nil(t, cursor)

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
	require.Len(t, out, 2)

	categoryKey, ok := plan.Lookup.Find("category")
	require.True(t, ok)
	totalKey, ok := plan.Lookup.Find("total")
	require.True(t, ok)

	cat, _ := out[0].Row.GetByKey(categoryKey)
	total, _ := out[0].Row.GetByKey(totalKey)
	require.Equal(t, "a", cat.String())
	n, _ := total.Number()
	require.Equal(t, 15.0, n)
}

func TestBuild_CursorStep_StopsAndReturnsCursorStep(t *testing.T) {
	b := aggplan.NewBuilder("idx", "*", nil).WithCursor(10, 5000)
	plan, err := b.Build()
	require.NoError(t, err)

	tail, cursor, err := Build(context.Background(), plan, Options{
		Resolve: staticResolver{ids: []uint64{1}, scores: []float64{1}},
	})
	require.NoError(t, err)
	require.NotNil(t, tail)
	require.NotNil(t, cursor)
	require.Equal(t, 10, cursor.Count)
	require.Equal(t, 5000, cursor.MaxIdleMS)
}

func TestBuild_MissingResolver_ReturnsInternalError(t *testing.T) {
	b := aggplan.NewBuilder("idx", "*", nil)
	plan, err := b.Build()
	require.NoError(t, err)

	_, _, err = Build(context.Background(), plan, Options{})
	require.Error(t, err)
}

func TestBuild_DistributeStep_UsesNetworkRoot(t *testing.T) {
	plan := &aggplan.Plan{
		Steps:  []aggplan.Step{aggplan.DistributeStep{}},
		Lookup: nil,
	}
	network := rp.NewNetworkProcessor([]rp.SearchResult{{DocID: 7, Score: 1}})

	tail, cursor, err := Build(context.Background(), plan, Options{NetworkRoot: network})
	require.NoError(t, err)
	require.Nil(t, cursor)

	var sr rp.SearchResult
	status, err := tail.Next(context.Background(), &sr)
	require.NoError(t, err)
	require.Equal(t, rp.StatusOk, status)
	require.Equal(t, uint64(7), sr.DocID)
}
