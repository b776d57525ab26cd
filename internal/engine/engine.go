// Package engine assembles a live Result Processor chain from a bound
// aggplan.Plan (C4+C6/C7 in SPEC_FULL.md): the one place a logical AGGPlan
// becomes the pull-based rp.Processor tree that actually executes a
// SEARCH/AGGREGATE/HYBRID request. Grounded on spec.md §4.5's processor
// table and the one-step-one-processor mapping it and internal/aggplan's
// StepKind enum both describe.
package engine

import (
	"context"

	"aggsearch/internal/aggplan"
	"aggsearch/internal/kvstore"
	"aggsearch/internal/qerror"
	"aggsearch/internal/rp"
)

// IndexResolver resolves a ROOT step's (index, query) to a ranked
// rp.IndexIterator. Building a real inverted-index query executor is out
// of scope (kvstore/iterator.go's doc comment), so production wiring
// reads a precomputed ranking already published to a store — see
// RedisIndexResolver.
type IndexResolver interface {
	Resolve(ctx context.Context, index, query string) (rp.IndexIterator, error)
}

// Options collects the collaborators Build needs to turn a bound Plan
// into a live chain. Not every field is required by every plan:
// NetworkRoot only matters for a coordinator subplan (one headed by a
// DistributeStep, per internal/distribute's Split.CoordPlan), and
// HybridExtraBranches only for a plan ending in a HybridMergeStep.
type Options struct {
	// Resolve opens the ranked iterator a RootStep scans. Required for
	// any plan whose first step is a RootStep (i.e. every plan except a
	// distributed coordinator subplan).
	Resolve IndexResolver
	// Store fetches document fields for a LoadStep.
	Store kvstore.DocStore
	// LoaderBatchSize overrides LoaderProcessor's default batch size;
	// <= 0 keeps the processor's own default.
	LoaderBatchSize int
	// ErrorPolicy controls how an ApplyStep's expression failures are
	// handled; zero value is rp.ErrorPolicyWriteNull.
	ErrorPolicy rp.ErrorPolicy
	// NetworkRoot is the already-assembled processor a DistributeStep
	// resumes from: the coordinator's merged view of its shards' replies
	// (internal/distribute collects these; decoding shard reply bytes
	// into rp.SearchResult rows is the command/reply-codec layer's job,
	// not this package's).
	NetworkRoot rp.Processor
	// HybridExtraBranches are the additional HYBRID_MERGE branches beyond
	// the chain Build has assembled so far from the plan's own Root/Load/
	// Apply/Filter steps (that chain is always branch 0). Build a branch
	// with BuildVectorBranch (for a VSIM leg) or a nested Build call (for
	// another lexical leg), then pass its tail here.
	HybridExtraBranches []rp.Processor
}

// Build walks plan.Steps in order, constructing the matching rp.Processor
// for each and chaining it onto the running tail. It stops and returns
// early at a CURSOR step, handing back the tail built so far plus the
// CursorStep itself, so the caller decides whether to park the chain in a
// cursor.Registry — any step SPEC_FULL.md's grammar would never place
// after WITHCURSOR, since it always trails a command's other clauses.
func Build(ctx context.Context, plan *aggplan.Plan, opts Options) (rp.Processor, *aggplan.CursorStep, error) {
	var cur rp.Processor
	for i, step := range plan.Steps {
		switch s := step.(type) {
		case aggplan.RootStep:
			if opts.Resolve == nil {
				return nil, nil, qerror.New(qerror.Internal, "engine: no IndexResolver configured for ROOT")
			}
			iter, err := opts.Resolve.Resolve(ctx, s.Index, s.Query)
			if err != nil {
				return nil, nil, err
			}
			cur = rp.NewIndexProcessor(iter, 1)

		case aggplan.DistributeStep:
			if opts.NetworkRoot == nil {
				return nil, nil, qerror.New(qerror.Internal, "engine: no NetworkRoot configured for DISTRIBUTE")
			}
			cur = opts.NetworkRoot

		case aggplan.LoadStep:
			if err := requireUpstream(cur, s.Kind()); err != nil {
				return nil, nil, err
			}
			cur = rp.NewLoaderProcessor(cur, opts.Store, plan.LookupAt(i), s.Fields, opts.LoaderBatchSize)

		case aggplan.ApplyStep:
			if err := requireUpstream(cur, s.Kind()); err != nil {
				return nil, nil, err
			}
			lk := plan.LookupAt(i)
			key, ok := lk.Find(s.Alias)
			if !ok {
				return nil, nil, qerror.New(qerror.Internal, "engine: APPLY alias "+s.Alias+" was never bound")
			}
			cur = rp.NewProjectorProcessor(cur, s.Expr, lk, key.Slot, opts.ErrorPolicy)

		case aggplan.FilterStep:
			if err := requireUpstream(cur, s.Kind()); err != nil {
				return nil, nil, err
			}
			cur = rp.NewFilterProcessor(cur, s.Expr, plan.LookupAt(i))

		case aggplan.GroupStep:
			if err := requireUpstream(cur, s.Kind()); err != nil {
				return nil, nil, err
			}
			upLk := plan.LookupAt(i)
			outLk := plan.LookupAt(i + 1)
			cur = rp.NewGrouperProcessor(cur, upLk, outLk, s.Keys, s.Reducers)

		case aggplan.ArrangeStep:
			if err := requireUpstream(cur, s.Kind()); err != nil {
				return nil, nil, err
			}
			cur = rp.NewSorterProcessor(cur, plan.LookupAt(i), s.Keys, s.Max)

		case aggplan.LimitStep:
			if err := requireUpstream(cur, s.Kind()); err != nil {
				return nil, nil, err
			}
			cur = rp.NewLimiterProcessor(cur, s.Offset, s.Count)

		case aggplan.CursorStep:
			if err := requireUpstream(cur, s.Kind()); err != nil {
				return nil, nil, err
			}
			return cur, &s, nil

		case aggplan.HybridMergeStep:
			if err := requireUpstream(cur, s.Kind()); err != nil {
				return nil, nil, err
			}
			branches := append([]rp.Processor{cur}, opts.HybridExtraBranches...)
			cur = rp.NewHybridMergerProcessor(branches, s)

		default:
			return nil, nil, qerror.New(qerror.Internal, "engine: unhandled step kind "+step.Kind().String())
		}
	}
	if cur == nil {
		return nil, nil, qerror.New(qerror.Internal, "engine: empty plan")
	}
	if err := rp.ValidateChain(cur); err != nil {
		return nil, nil, err
	}
	return cur, nil, nil
}

// requireUpstream guards against a malformed Plan whose first step isn't
// ROOT or DISTRIBUTE — a Builder invariant Build relies on rather than
// re-validates.
func requireUpstream(cur rp.Processor, k aggplan.StepKind) error {
	if cur == nil {
		return qerror.New(qerror.Internal, "engine: "+k.String()+" step has no upstream (plan missing ROOT/DISTRIBUTE)")
	}
	return nil
}
