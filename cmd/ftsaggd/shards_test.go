package main

import (
	"context"
	"testing"

	"aggsearch/internal/kvstore"
	"aggsearch/internal/rp"
)

type staticResolver struct {
	ids    []uint64
	scores []float64
}

func (r staticResolver) Resolve(ctx context.Context, index, query string) (rp.IndexIterator, error) {
	return kvstore.NewStaticIterator(r.ids, r.scores), nil
}

func drainIterator(it rp.IndexIterator) ([]uint64, []float64) {
	var ids []uint64
	var scores []float64
	for {
		id, score, ok := it.Next()
		if !ok {
			return ids, scores
		}
		ids = append(ids, id)
		scores = append(scores, score)
	}
}

func TestPartitionResolver_OnlyOwnedDocsSurvive(t *testing.T) {
	base := staticResolver{
		ids:    []uint64{0, 1, 2, 3, 4, 5},
		scores: []float64{6, 5, 4, 3, 2, 1},
	}
	const shardCount = 3

	seen := map[uint64]bool{}
	for shard := 0; shard < shardCount; shard++ {
		resolver := partitionResolver{base: base, shardIdx: shard, shardCount: shardCount}
		iter, err := resolver.Resolve(context.Background(), "idx", "*")
		if err != nil {
			t.Fatalf("shard %d: %v", shard, err)
		}
		ids, _ := drainIterator(iter)
		for _, id := range ids {
			if int(id%uint64(shardCount)) != shard {
				t.Fatalf("shard %d received doc %d owned by shard %d", shard, id, id%uint64(shardCount))
			}
			if seen[id] {
				t.Fatalf("doc %d claimed by more than one shard", id)
			}
			seen[id] = true
		}
	}
	if len(seen) != len(base.ids) {
		t.Fatalf("expected every doc to be claimed by exactly one shard, got %d of %d", len(seen), len(base.ids))
	}
}
