package rp

import (
	"context"

	"aggsearch/internal/expr"
	"aggsearch/internal/lookup"
	"aggsearch/internal/value"
)

// ErrorPolicy controls what a PROJECTOR does when expression evaluation
// fails on a given row.
type ErrorPolicy int

const (
	// ErrorPolicyWriteNull is the default: failed evaluations write Null
	// into the output slot and the row continues downstream.
	ErrorPolicyWriteNull ErrorPolicy = iota
	// ErrorPolicyReturnError fails the whole pipeline on the first error.
	ErrorPolicyReturnError
)

// ProjectorProcessor implements APPLY (4.6.3): evaluate Expr, write the
// result into OutSlot. It never drops rows.
type ProjectorProcessor struct {
	upstream Processor
	expr     expr.Node
	lk       *lookup.Lookup
	outSlot  int
	policy   ErrorPolicy
}

func NewProjectorProcessor(upstream Processor, node expr.Node, lk *lookup.Lookup, outSlot int, policy ErrorPolicy) *ProjectorProcessor {
	return &ProjectorProcessor{upstream: upstream, expr: node, lk: lk, outSlot: outSlot, policy: policy}
}

func (p *ProjectorProcessor) Kind() Kind          { return KindProjector }
func (p *ProjectorProcessor) Upstream() Processor { return p.upstream }

func (p *ProjectorProcessor) Next(ctx context.Context, out *SearchResult) (Status, error) {
	if proceed, status, err := CheckDeadline(ctx); !proceed {
		return status, err
	}
	status, err := p.upstream.Next(ctx, out)
	if status != StatusOk {
		return status, err
	}
	v, evalErr := expr.Eval(p.expr, p.lk, out.Row)
	if evalErr != nil {
		if p.policy == ErrorPolicyReturnError {
			return StatusErr, evalErr
		}
		v = value.Null
	}
	out.Row.Set(p.outSlot, v)
	return StatusOk, nil
}

func (p *ProjectorProcessor) Free() {}
