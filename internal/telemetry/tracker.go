package telemetry

import (
	"context"
	"time"

	"aggsearch/internal/rp"
)

// timingNode wraps one rp.Processor, accumulating the elapsed time and row
// count its own Next calls spend (excluding time its upstream already
// billed to itself — each wrapped node only measures the slice of time
// spent in its own wrapped.Next call).
type timingNode struct {
	wrapped rp.Processor
	up      rp.Processor // the (possibly wrapped) upstream, nil for root
	kind    rp.Kind
	elapsed time.Duration
	rowsOut int64
}

func (n *timingNode) Kind() rp.Kind { return n.kind }

func (n *timingNode) Next(ctx context.Context, out *rp.SearchResult) (rp.Status, error) {
	start := time.Now()
	status, err := n.wrapped.Next(ctx, out)
	n.elapsed += time.Since(start)
	if status == rp.StatusOk {
		n.rowsOut++
	}
	return status, err
}

func (n *timingNode) Free() { n.wrapped.Free() }

func (n *timingNode) Upstream() rp.Processor { return n.up }

// Tracker instruments a built processor chain so draining it also
// produces per-processor ProcessorTiming rows, without changing the
// chain's pull semantics: each timingNode delegates straight through to
// the wrapped processor's own Next/Free.
type Tracker struct {
	tail  rp.Processor
	nodes []*timingNode // root-to-tail order
}

// Wrap walks tail's Upstreamer chain down to the root and rebuilds it with
// one timingNode per processor, returning a Tracker whose Tail is the new,
// instrumented chain head. Use Tracker.Tail wherever the uninstrumented
// tail would have been drained.
func Wrap(tail rp.Processor) *Tracker {
	chain := []rp.Processor{tail}
	for p := tail; ; {
		u, ok := p.(rp.Upstreamer)
		if !ok {
			break
		}
		up := u.Upstream()
		if up == nil {
			break
		}
		chain = append(chain, up)
		p = up
	}
	// chain is tail-to-root; rebuild root-to-tail so each node's up
	// pointer is already the wrapped upstream.
	t := &Tracker{}
	var prevWrapped rp.Processor
	for i := len(chain) - 1; i >= 0; i-- {
		node := &timingNode{wrapped: chain[i], up: prevWrapped, kind: chain[i].Kind()}
		t.nodes = append(t.nodes, node)
		prevWrapped = node
	}
	t.tail = prevWrapped
	return t
}

// Tail is the instrumented chain's tail processor: drain this instead of
// the original tail.
func (t *Tracker) Tail() rp.Processor { return t.tail }

// Timings reports one ProcessorTiming per node in root-to-tail order,
// suitable for Record.Timings.
func (t *Tracker) Timings() []ProcessorTiming {
	out := make([]ProcessorTiming, len(t.nodes))
	for i, n := range t.nodes {
		out[i] = ProcessorTiming{Kind: n.kind.String(), Elapsed: n.elapsed, RowsOut: n.rowsOut}
	}
	return out
}
