package rp

import "context"

// LimiterProcessor implements a bare LIMIT step: skip Offset rows, then
// emit up to Count more, all streamed from upstream with no
// materialization. A Count of 0 means no cap. The engine builds one for
// every LIMIT step, including a LIMIT that follows SORTBY or GROUPBY.
type LimiterProcessor struct {
	upstream Processor
	offset   int
	count    int

	skipped bool
	emitted int
}

func NewLimiterProcessor(upstream Processor, offset, count int) *LimiterProcessor {
	return &LimiterProcessor{upstream: upstream, offset: offset, count: count}
}

func (p *LimiterProcessor) Kind() Kind          { return KindLimiter }
func (p *LimiterProcessor) Upstream() Processor { return p.upstream }

func (p *LimiterProcessor) Next(ctx context.Context, out *SearchResult) (Status, error) {
	if proceed, status, err := CheckDeadline(ctx); !proceed {
		return status, err
	}
	if !p.skipped {
		for i := 0; i < p.offset; i++ {
			var sr SearchResult
			status, err := p.upstream.Next(ctx, &sr)
			if status == StatusEof {
				p.skipped = true
				return StatusEof, nil
			}
			if status != StatusOk {
				return status, err
			}
		}
		p.skipped = true
	}
	if p.count > 0 && p.emitted >= p.count {
		return StatusEof, nil
	}
	status, err := p.upstream.Next(ctx, out)
	if status == StatusOk {
		p.emitted++
	}
	return status, err
}

func (p *LimiterProcessor) Free() { p.upstream.Free() }
