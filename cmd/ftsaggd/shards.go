package main

import (
	"context"
	"fmt"
	"sync"

	"aggsearch/internal/aggplan"
	"aggsearch/internal/distribute"
	"aggsearch/internal/engine"
	"aggsearch/internal/kvstore"
	"aggsearch/internal/rp"
)

// buildChain assembles a live processor chain for plan, taking the
// distributed path when Distribute.ShardCount configures more than one
// shard and the plan-local path otherwise. extraBranches are passed
// through to a HYBRID_MERGE step, if any.
func (s *server) buildChain(ctx context.Context, plan *aggplan.Plan, extraBranches []rp.Processor) (rp.Processor, *aggplan.CursorStep, error) {
	shardCount := s.cfg.Distribute.ShardCount
	if shardCount <= 1 {
		return engine.Build(ctx, plan, engine.Options{
			Resolve:             s.resolver,
			Store:               s.store,
			HybridExtraBranches: extraBranches,
		})
	}
	return s.buildDistributedChain(ctx, plan, shardCount, extraBranches)
}

// partitionResolver wraps the coordinator's IndexResolver and restricts
// its ranking to the hash-slot range one shard owns. A real deployment
// assigns slot ownership by cluster topology (SLOTS token,
// internal/slotrange); this reference server runs every shard in one
// process against one Redis instance, so slot ownership is a static
// docID%shardCount partition instead — see the shards.go entry in
// DESIGN.md's cmd/ftsaggd section.
type partitionResolver struct {
	base                 engine.IndexResolver
	shardIdx, shardCount int
}

func (p partitionResolver) Resolve(ctx context.Context, index, query string) (rp.IndexIterator, error) {
	iter, err := p.base.Resolve(ctx, index, query)
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var ids []uint64
	var scores []float64
	for {
		id, score, ok := iter.Next()
		if !ok {
			break
		}
		if int(id%uint64(p.shardCount)) == p.shardIdx {
			ids = append(ids, id)
			scores = append(scores, score)
		}
	}
	return kvstore.NewStaticIterator(ids, scores), nil
}

// buildDistributedChain splits plan into a shard-local subplan and a
// coordinator subplan (internal/distribute), runs the shard subplan once
// per shard through distribute.DirectDispatcher (in-process: this
// reference server hosts every shard in the same binary), and replays
// the merged rows through the coordinator subplan via a NetworkProcessor
// root.
func (s *server) buildDistributedChain(ctx context.Context, plan *aggplan.Plan, shardCount int, extraBranches []rp.Processor) (rp.Processor, *aggplan.CursorStep, error) {
	split, err := distribute.Split(plan)
	if err != nil {
		return nil, nil, err
	}

	var (
		mu   sync.Mutex
		rows []rp.SearchResult
		errs []error
	)
	dispatcher := distribute.NewDirectDispatcher(func(ctx context.Context, shardID int, argv []string) error {
		resolver := partitionResolver{base: s.resolver, shardIdx: shardID, shardCount: shardCount}
		tail, _, err := engine.Build(ctx, split.ShardPlan, engine.Options{Resolve: resolver, Store: s.store})
		if err != nil {
			return err
		}
		shardRows, err := drainAll(ctx, tail)
		if err != nil {
			return err
		}
		mu.Lock()
		rows = append(rows, shardRows...)
		mu.Unlock()
		return nil
	})

	var wg sync.WaitGroup
	for i := 0; i < shardCount; i++ {
		wg.Add(1)
		go func(shardID int) {
			defer wg.Done()
			if err := dispatcher.Dispatch(ctx, shardID, split.ShardArgv); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shard %d: %w", shardID, err))
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	if len(errs) > 0 {
		return nil, nil, errs[0]
	}

	network := rp.NewNetworkProcessor(rows)
	return engine.Build(ctx, split.CoordPlan, engine.Options{
		NetworkRoot:         network,
		HybridExtraBranches: extraBranches,
	})
}
