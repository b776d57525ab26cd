package rp

import (
	"context"

	"aggsearch/internal/expr"
	"aggsearch/internal/lookup"
)

// FilterProcessor evaluates a boolean expression against each upstream
// row, dropping rows where it is Null or falsy (4.6.2). It keeps pulling
// upstream until a row passes or upstream reports something other than
// Ok.
type FilterProcessor struct {
	upstream Processor
	expr     expr.Node
	lk       *lookup.Lookup
}

func NewFilterProcessor(upstream Processor, node expr.Node, lk *lookup.Lookup) *FilterProcessor {
	return &FilterProcessor{upstream: upstream, expr: node, lk: lk}
}

func (p *FilterProcessor) Kind() Kind          { return KindFilter }
func (p *FilterProcessor) Upstream() Processor { return p.upstream }

func (p *FilterProcessor) Next(ctx context.Context, out *SearchResult) (Status, error) {
	for {
		if proceed, status, err := CheckDeadline(ctx); !proceed {
			return status, err
		}
		status, err := p.upstream.Next(ctx, out)
		if status != StatusOk {
			return status, err
		}
		v, err := expr.Eval(p.expr, p.lk, out.Row)
		if err != nil {
			return StatusErr, err
		}
		if v.Truthy() {
			return StatusOk, nil
		}
	}
}

func (p *FilterProcessor) Free() {}
