package rp

import "context"

// NetworkProcessor is the coordinator-local pipeline's root for a
// DISTRIBUTE step (C5): a pull-based view over rows a Distributor has
// already collected from its shards (fan-out dispatch, per-shard reply
// decode, and any ordering across shards are the coordinator's concern;
// this processor only re-emits what it's handed, in the given order, as
// an ordinary Processor so GROUP/ARRANGE/etc above it need not know the
// rows crossed a network at all).
type NetworkProcessor struct {
	rows []SearchResult
	pos  int
}

// NewNetworkProcessor wraps rows, already merged from one or more shard
// replies, as the pipeline root.
func NewNetworkProcessor(rows []SearchResult) *NetworkProcessor {
	return &NetworkProcessor{rows: rows}
}

func (p *NetworkProcessor) Kind() Kind { return KindNetwork }

func (p *NetworkProcessor) Next(ctx context.Context, out *SearchResult) (Status, error) {
	if proceed, status, err := CheckDeadline(ctx); !proceed {
		return status, err
	}
	if p.pos >= len(p.rows) {
		return StatusEof, nil
	}
	*out = p.rows[p.pos]
	p.pos++
	return StatusOk, nil
}

func (p *NetworkProcessor) Free() {}
