// Package rp implements the Result Processor framework (C6/C7 in
// SPEC_FULL.md): a pull-based chain of processors, each owning its state
// and calling upstream.Next exactly as many times as it needs to produce
// one output row.
package rp

import (
	"context"
	"time"

	"aggsearch/internal/lookup"
	"aggsearch/internal/qerror"
)

// Status is the outcome of one Next call.
type Status int

const (
	StatusOk Status = iota
	StatusEof
	StatusPaused
	StatusTimeout
	StatusErr
)

func (s Status) String() string {
	switch s {
	case StatusOk:
		return "Ok"
	case StatusEof:
		return "Eof"
	case StatusPaused:
		return "Paused"
	case StatusTimeout:
		return "Timeout"
	case StatusErr:
		return "Err"
	default:
		return "Unknown"
	}
}

// Kind tags a processor's type so the pipeline builder can reject illegal
// compositions (e.g. two SORTERs sharing a lookup).
type Kind int

const (
	KindIndex Kind = iota
	KindFilter
	KindSorter
	KindGrouper
	KindLoader
	KindDepleter
	KindProjector
	KindCursorSource
	KindHybridMerger
	KindNetwork
	KindLimiter
)

func (k Kind) String() string {
	names := [...]string{"INDEX", "FILTER", "SORTER", "GROUPER", "LOADER", "DEPLETER", "PROJECTOR", "CURSOR_SOURCE", "HYBRID_MERGER", "NETWORK", "LIMITER"}
	if int(k) < len(names) {
		return names[k]
	}
	return "UNKNOWN"
}

// SearchResult is the unit of data passed between processors: a document
// id, its score, and a row of bound field values.
type SearchResult struct {
	DocID uint64
	Score float64
	Row   *lookup.Row
}

// TimeoutPolicy selects what a boundary check does once the deadline has
// elapsed.
type TimeoutPolicy int

const (
	// TimeoutReturn fails pending work with StatusTimeout.
	TimeoutReturn TimeoutPolicy = iota
	// TimeoutContinue emits what is already produced and reports Eof.
	TimeoutContinue
)

// QueryDeadline is the shared monotonic clock every processor boundary
// checks. It is propagated via context, never thread-local, so a
// DEPLETER's worker goroutine observes the same deadline as its caller.
type QueryDeadline struct {
	deadline time.Time
	policy   TimeoutPolicy
}

// NewDeadline returns a QueryDeadline that elapses after d, or never if d
// <= 0.
func NewDeadline(d time.Duration, policy TimeoutPolicy) *QueryDeadline {
	qd := &QueryDeadline{policy: policy}
	if d > 0 {
		qd.deadline = time.Now().Add(d)
	}
	return qd
}

// Elapsed reports whether the deadline has passed. A zero deadline never
// elapses.
func (qd *QueryDeadline) Elapsed() bool {
	if qd == nil || qd.deadline.IsZero() {
		return false
	}
	return time.Now().After(qd.deadline)
}

// Policy reports the configured timeout policy.
func (qd *QueryDeadline) Policy() TimeoutPolicy {
	if qd == nil {
		return TimeoutContinue
	}
	return qd.policy
}

type deadlineKey struct{}

// WithDeadline attaches qd to ctx for propagation across goroutine
// boundaries (DEPLETER workers, HYBRID_MERGER branches).
func WithDeadline(ctx context.Context, qd *QueryDeadline) context.Context {
	return context.WithValue(ctx, deadlineKey{}, qd)
}

// DeadlineFromContext recovers the QueryDeadline WithDeadline attached, or
// nil if none was set (never elapses).
func DeadlineFromContext(ctx context.Context) *QueryDeadline {
	qd, _ := ctx.Value(deadlineKey{}).(*QueryDeadline)
	return qd
}

// CheckDeadline applies ctx's QueryDeadline policy at a processor
// boundary: Ok to proceed, StatusTimeout/StatusEof otherwise.
func CheckDeadline(ctx context.Context) (proceed bool, status Status, err error) {
	qd := DeadlineFromContext(ctx)
	if !qd.Elapsed() {
		return true, StatusOk, nil
	}
	if qd.Policy() == TimeoutContinue {
		return false, StatusEof, nil
	}
	return false, StatusTimeout, qerror.New(qerror.Timeout, "query deadline elapsed")
}

// Processor is one node of a Result Processor chain. Next writes the next
// output to out and reports Status. Free releases the processor's state,
// propagating to its upstream first.
type Processor interface {
	Kind() Kind
	Next(ctx context.Context, out *SearchResult) (Status, error)
	Free()
}

// Upstreamer is implemented by every processor except the root INDEX,
// exposing the processor it pulls from so the pipeline builder can walk
// and validate the chain.
type Upstreamer interface {
	Upstream() Processor
}

// FreeChain calls Free on p and, if p has an upstream, recursively on it
// first — propagation runs upstream-to-self per SPEC_FULL.md §4.5
// ("Free propagates to the upstream before self" is the processor's own
// responsibility; FreeChain is the convenience the pipeline owner uses
// when it only holds the tail).
func FreeChain(p Processor) {
	if p == nil {
		return
	}
	if u, ok := p.(Upstreamer); ok {
		FreeChain(u.Upstream())
	}
	p.Free()
}

// ValidateChain walks from tail to root checking the "no two SORTERs
// touching the same lookup" rule (and, generally, no repeated Kind among
// {SORTER, GROUPER} which materialize/replace the row set).
func ValidateChain(tail Processor) error {
	seen := map[Kind]int{}
	for p := tail; p != nil; {
		k := p.Kind()
		if k == KindSorter || k == KindGrouper {
			seen[k]++
			if seen[k] > 1 {
				return qerror.New(qerror.Internal, "illegal pipeline: more than one "+k.String()+" in one chain")
			}
		}
		u, ok := p.(Upstreamer)
		if !ok {
			break
		}
		p = u.Upstream()
	}
	return nil
}
