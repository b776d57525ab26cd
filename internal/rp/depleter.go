package rp

import (
	"context"
	"sync"
)

// DepleterProcessor runs its upstream on a background goroutine, buffering
// results into a bounded SPSC channel so a hybrid branch's I/O overlaps
// with its sibling branches (spec.md §4.6.7). It emits in exact upstream
// order and propagates Timeout/Err immediately.
type DepleterProcessor struct {
	upstream Processor
	queue    int

	once    sync.Once
	results chan depleterMsg
	done    chan struct{}
}

type depleterMsg struct {
	sr     SearchResult
	status Status
	err    error
}

// NewDepleterProcessor wraps upstream, buffering up to queue pending
// results (queue <= 0 defaults to 16).
func NewDepleterProcessor(upstream Processor, queue int) *DepleterProcessor {
	if queue <= 0 {
		queue = 16
	}
	return &DepleterProcessor{upstream: upstream, queue: queue}
}

func (p *DepleterProcessor) Kind() Kind          { return KindDepleter }
func (p *DepleterProcessor) Upstream() Processor { return p.upstream }

// start launches the background worker exactly once, on the first Next
// call, so a Depleter that's never pulled never spawns a goroutine.
func (p *DepleterProcessor) start(ctx context.Context) {
	p.once.Do(func() {
		p.results = make(chan depleterMsg, p.queue)
		p.done = make(chan struct{})
		go func() {
			defer close(p.results)
			for {
				var sr SearchResult
				status, err := p.upstream.Next(ctx, &sr)
				select {
				case p.results <- depleterMsg{sr: sr, status: status, err: err}:
				case <-p.done:
					return
				}
				if status != StatusOk {
					return
				}
			}
		}()
	})
}

func (p *DepleterProcessor) Next(ctx context.Context, out *SearchResult) (Status, error) {
	if proceed, status, err := CheckDeadline(ctx); !proceed {
		return status, err
	}
	p.start(ctx)
	select {
	case msg, ok := <-p.results:
		if !ok {
			return StatusEof, nil
		}
		if msg.status == StatusOk {
			*out = msg.sr
		}
		return msg.status, msg.err
	case <-ctx.Done():
		return StatusTimeout, ctx.Err()
	}
}

func (p *DepleterProcessor) Free() {
	if p.done != nil {
		select {
		case <-p.done:
		default:
			close(p.done)
		}
	}
	p.upstream.Free()
}
