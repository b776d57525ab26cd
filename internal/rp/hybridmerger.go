package rp

import (
	"context"

	"golang.org/x/sync/errgroup"

	"aggsearch/internal/aggplan"
	"aggsearch/internal/hybrid"
	"aggsearch/internal/lookup"
)

// HybridMergerProcessor implements HYBRID_MERGE (C8): it drains each
// branch concurrently (bounded to Window rows apiece), fuses their ranked
// doc ids via internal/hybrid, and re-emits the fused order, each result
// carrying the row from whichever branch first produced that document.
type HybridMergerProcessor struct {
	branches []Processor
	step     aggplan.HybridMergeStep

	fused []SearchResult
	pos   int
	ready bool
}

func NewHybridMergerProcessor(branches []Processor, step aggplan.HybridMergeStep) *HybridMergerProcessor {
	return &HybridMergerProcessor{branches: branches, step: step}
}

func (p *HybridMergerProcessor) Kind() Kind { return KindHybridMerger }

// Upstream exposes only the first branch; FreeChain/ValidateChain walk a
// linear chain, so Free below explicitly frees every branch instead of
// relying on the Upstreamer-driven recursion for the others.
func (p *HybridMergerProcessor) Upstream() Processor {
	if len(p.branches) == 0 {
		return nil
	}
	return p.branches[0]
}

func (p *HybridMergerProcessor) drainBranch(ctx context.Context, branch Processor) ([]SearchResult, error) {
	var out []SearchResult
	for p.step.Window <= 0 || len(out) < p.step.Window {
		var sr SearchResult
		status, err := branch.Next(ctx, &sr)
		if status == StatusEof {
			break
		}
		if status == StatusErr {
			return nil, err
		}
		if status != StatusOk {
			break
		}
		out = append(out, sr)
	}
	return out, nil
}

func (p *HybridMergerProcessor) fill(ctx context.Context) (Status, error) {
	results := make([][]SearchResult, len(p.branches))
	g, gctx := errgroup.WithContext(ctx)
	for i, branch := range p.branches {
		i, branch := i, branch
		g.Go(func() error {
			rs, err := p.drainBranch(gctx, branch)
			if err != nil {
				return err
			}
			results[i] = rs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return StatusErr, err
	}

	hits := make([][]hybrid.Hit, len(results))
	byDoc := map[uint64]*lookup.Row{}
	for i, rs := range results {
		hs := make([]hybrid.Hit, len(rs))
		for j, sr := range rs {
			hs[j] = hybrid.Hit{DocID: sr.DocID, Score: sr.Score}
			if _, ok := byDoc[sr.DocID]; !ok {
				byDoc[sr.DocID] = sr.Row
			}
		}
		hits[i] = hs
	}

	var merged []hybrid.Hit
	if p.step.Mode == aggplan.FusionLinear {
		merged = hybrid.FuseLinear(hits, p.step.Alpha, p.step.Beta)
	} else {
		k := p.step.K
		if k <= 0 {
			k = p.step.Window
		}
		merged = hybrid.FuseRRF(hits, k, p.step.RRFConstant)
	}

	p.fused = make([]SearchResult, len(merged))
	for i, h := range merged {
		p.fused[i] = SearchResult{DocID: h.DocID, Score: h.Score, Row: byDoc[h.DocID]}
	}
	p.ready = true
	return StatusOk, nil
}

func (p *HybridMergerProcessor) Next(ctx context.Context, out *SearchResult) (Status, error) {
	if proceed, status, err := CheckDeadline(ctx); !proceed {
		return status, err
	}
	if !p.ready {
		if status, err := p.fill(ctx); status != StatusOk {
			return status, err
		}
	}
	if p.pos >= len(p.fused) {
		return StatusEof, nil
	}
	*out = p.fused[p.pos]
	p.pos++
	return StatusOk, nil
}

func (p *HybridMergerProcessor) Free() {
	for _, b := range p.branches {
		FreeChain(b)
	}
}
