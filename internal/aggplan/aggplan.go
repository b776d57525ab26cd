// Package aggplan implements the aggregation plan (C4 in SPEC_FULL.md):
// an ordered list of logical steps built by a command parser, validated at
// bind time before any Result Processor is allocated.
package aggplan

import (
	"fmt"

	"aggsearch/internal/expr"
	"aggsearch/internal/lookup"
	"aggsearch/internal/qerror"
)

// StepKind tags the kind of a plan Step.
type StepKind int

const (
	StepRoot StepKind = iota
	StepDistribute
	StepLoad
	StepApply
	StepFilter
	StepGroup
	StepArrange
	StepLimit
	StepCursor
	StepHybridMerge
)

func (k StepKind) String() string {
	switch k {
	case StepRoot:
		return "ROOT"
	case StepDistribute:
		return "DISTRIBUTE"
	case StepLoad:
		return "LOAD"
	case StepApply:
		return "APPLY"
	case StepFilter:
		return "FILTER"
	case StepGroup:
		return "GROUP"
	case StepArrange:
		return "ARRANGE"
	case StepLimit:
		return "LIMIT"
	case StepCursor:
		return "CURSOR"
	case StepHybridMerge:
		return "HYBRID_MERGE"
	default:
		return "UNKNOWN"
	}
}

// Step is one node of an AGGPlan.
type Step interface {
	Kind() StepKind
}

// RootStep is the index scan that seeds the pipeline.
type RootStep struct {
	Index string
	Query string
}

func (RootStep) Kind() StepKind { return StepRoot }

// DistributeStep is the synthetic marker the Distributor (C5) inserts at
// the head of a coordinator-local subplan.
type DistributeStep struct{}

func (DistributeStep) Kind() StepKind { return StepDistribute }

// LoadStep fetches the named document fields from the store.
type LoadStep struct {
	Fields []string
}

func (LoadStep) Kind() StepKind { return StepLoad }

// ApplyStep evaluates Expr and writes the result to Alias.
type ApplyStep struct {
	Source string // original expression text, kept for distributed re-serialization
	Expr   expr.Node
	Alias  string
}

func (ApplyStep) Kind() StepKind { return StepApply }

// FilterStep drops rows where Expr evaluates false/Null.
type FilterStep struct {
	Source string
	Expr   expr.Node
}

func (FilterStep) Kind() StepKind { return StepFilter }

// Reducer names an aggregate function, its argument field names, and the
// output alias (defaulting to Func when empty).
type Reducer struct {
	Func  string
	Args  []string
	Alias string
}

// OutputName returns Alias, defaulting to Func when unset.
func (r Reducer) OutputName() string {
	if r.Alias != "" {
		return r.Alias
	}
	return r.Func
}

// GroupStep buckets rows by Keys and emits one row per group carrying
// Reducers' finalized state. The grouper's output lookup hides every
// upstream column not named here, which is why LOAD may never follow a
// GROUP step.
type GroupStep struct {
	Keys     []string
	Reducers []Reducer
}

func (GroupStep) Kind() StepKind { return StepGroup }

// SortKey is one (field, direction) pair in a SORTBY clause.
type SortKey struct {
	Field string
	Asc   bool
}

// ArrangeStep is SORTBY: Max bounds the sorter's heap (0 means unbounded).
type ArrangeStep struct {
	Keys []SortKey
	Max  int
}

func (ArrangeStep) Kind() StepKind { return StepArrange }

// LimitStep is LIMIT offset count. Count == 0 is the "trivial" limit that
// does not constrain anything.
type LimitStep struct {
	Offset int
	Count  int
}

func (LimitStep) Kind() StepKind { return StepLimit }

// CursorStep requests WITHCURSOR semantics for the tail of the pipeline.
type CursorStep struct {
	Count     int
	MaxIdleMS int
}

func (CursorStep) Kind() StepKind { return StepCursor }

// FusionMode selects a HYBRID_MERGE fusion algorithm.
type FusionMode int

const (
	FusionRRF FusionMode = iota
	FusionLinear
)

func (m FusionMode) String() string {
	if m == FusionLinear {
		return "LINEAR"
	}
	return "RRF"
}

// HybridMergeStep fuses N upstream branches into one ranked stream.
type HybridMergeStep struct {
	Mode        FusionMode
	K           int // RRF: KNN result count considered per branch
	Window      int // RRF: rank window per branch
	RRFConstant float64
	Alpha, Beta float64 // LINEAR weights
}

func (HybridMergeStep) Kind() StepKind { return StepHybridMerge }

// Plan is a fully bound, validated AGGPlan: an ordered step list plus the
// Lookup its APPLY/FILTER/GROUP steps were resolved against.
type Plan struct {
	Steps  []Step
	Lookup *lookup.Lookup

	// StepLookups holds, for each entry in Steps, the Lookup that was
	// active when that step was bound (GroupBy replaces the builder's
	// Lookup, so steps before a GROUP were resolved against a different
	// Lookup than Plan.Lookup). May be shorter than Steps or nil for
	// plans assembled outside Builder.Build (e.g. the Distributor's
	// synthesized coordinator/shard plans); LookupAt falls back to
	// Plan.Lookup in that case, which is correct whenever every step in
	// the synthesized plan shares one Lookup (true for any subplan that
	// doesn't itself contain a GROUP step).
	StepLookups []*lookup.Lookup
}

// LookupAt returns the Lookup that was in scope when Steps[i] was bound.
func (p *Plan) LookupAt(i int) *lookup.Lookup {
	if i >= 0 && i < len(p.StepLookups) && p.StepLookups[i] != nil {
		return p.StepLookups[i]
	}
	return p.Lookup
}

// FinalLimit returns the LIMIT step governing the plan's final output: the
// last LIMIT step after the last GROUP step, or the last LIMIT step
// overall when there is no GROUP (or no LIMIT follows it — a LIMIT that
// precedes GROUP is a push-down hint for the shard side, not the final
// bound). ok is false when the plan has no LIMIT step at all.
func (p *Plan) FinalLimit() (LimitStep, bool) {
	lastGroup := -1
	for i, s := range p.Steps {
		if s.Kind() == StepGroup {
			lastGroup = i
		}
	}
	var found LimitStep
	ok := false
	for i, s := range p.Steps {
		if i <= lastGroup {
			continue
		}
		if l, isLimit := s.(LimitStep); isLimit {
			found, ok = l, true
		}
	}
	if ok {
		return found, true
	}
	// No LIMIT follows the last GROUP (or there is no GROUP): the last
	// LIMIT anywhere in the plan is still the one in force.
	for _, s := range p.Steps {
		if l, isLimit := s.(LimitStep); isLimit {
			found, ok = l, true
		}
	}
	return found, ok
}

// PushDownLimits returns every LIMIT step that appears before the plan's
// first GROUP step — these bound a shard-local partial top-K and are
// honored by the Distributor independently of FinalLimit.
func (p *Plan) PushDownLimits() []LimitStep {
	var out []LimitStep
	for _, s := range p.Steps {
		if s.Kind() == StepGroup {
			break
		}
		if l, ok := s.(LimitStep); ok {
			out = append(out, l)
		}
	}
	return out
}

// Builder constructs a Plan step by step, validating each addition against
// the rules in SPEC_FULL.md's AGGPlan section. The zero value is not
// usable; start with NewBuilder.
type Builder struct {
	index              string
	steps              []Step
	stepLK             []*lookup.Lookup
	lk                 *lookup.Lookup
	unresolvedTolerant bool
	hasGroup           bool
	err                error
}

// pushStep appends s, recording the Lookup currently in scope (the one
// s was resolved against) in lockstep. GroupBy calls this before
// reassigning b.lk, so a GroupStep's recorded Lookup is always the
// upstream one, never the group's own output.
func (b *Builder) pushStep(s Step) {
	b.steps = append(b.steps, s)
	b.stepLK = append(b.stepLK, b.lk)
}

// NewBuilder starts a plan rooted at a SEARCH/AGGREGATE/HYBRID over index,
// evaluating query. lk may be nil, in which case a fresh Lookup is used.
func NewBuilder(index, query string, lk *lookup.Lookup) *Builder {
	if lk == nil {
		lk = lookup.New()
	}
	b := &Builder{index: index, lk: lk}
	b.pushStep(RootStep{Index: index, Query: query})
	return b
}

// UnresolvedTolerant disables bind-time field-resolution checks on
// subsequent APPLY/FILTER/GROUPBY/SORTBY steps, for shard-local subplans
// built by the Distributor whose field set is only known at the
// coordinator.
func (b *Builder) UnresolvedTolerant() *Builder {
	b.unresolvedTolerant = true
	return b
}

// Err returns the first validation error encountered so far, or nil.
func (b *Builder) Err() error { return b.err }

// Load adds a LOAD step fetching fields from the document store.
func (b *Builder) Load(fields ...string) *Builder {
	if b.err != nil {
		return b
	}
	if b.hasGroup {
		b.err = qerror.New(qerror.ParseArgs, "LOAD may not follow GROUPBY: grouper output hides upstream columns")
		return b
	}
	for _, f := range fields {
		if _, err := b.lk.GetOrAdd(f, lookup.Flags{Source: lookup.SourceDocument, Loadable: true}); err != nil {
			b.err = qerror.Wrap(qerror.Internal, "load: "+f, err)
			return b
		}
	}
	b.pushStep(LoadStep{Fields: fields})
	return b
}

// Apply adds an APPLY step: evaluate exprSrc and bind its result to alias.
func (b *Builder) Apply(exprSrc, alias string) *Builder {
	if b.err != nil {
		return b
	}
	node, err := expr.Parse(exprSrc)
	if err != nil {
		b.err = err
		return b
	}
	if !b.unresolvedTolerant {
		if err := b.checkResolved(node); err != nil {
			b.err = err
			return b
		}
	}
	if _, err := b.lk.GetOrAdd(alias, lookup.Flags{Source: lookup.SourceComputed, Loaded: true}); err != nil {
		b.err = qerror.Wrap(qerror.Internal, "apply: "+alias, err)
		return b
	}
	b.pushStep(ApplyStep{Source: exprSrc, Expr: node, Alias: alias})
	return b
}

// Filter adds a FILTER step dropping rows where exprSrc evaluates falsy.
func (b *Builder) Filter(exprSrc string) *Builder {
	if b.err != nil {
		return b
	}
	node, err := expr.Parse(exprSrc)
	if err != nil {
		b.err = err
		return b
	}
	if !b.unresolvedTolerant {
		if err := b.checkResolved(node); err != nil {
			b.err = err
			return b
		}
	}
	b.pushStep(FilterStep{Source: exprSrc, Expr: node})
	return b
}

// GroupBy adds a GROUP step. It replaces the builder's Lookup with a fresh
// one containing only the group keys and reducer outputs, matching the
// grouper's output-hides-upstream-columns semantics — any LOAD requested
// afterward is rejected.
func (b *Builder) GroupBy(keys []string, reducers []Reducer) *Builder {
	if b.err != nil {
		return b
	}
	if !b.unresolvedTolerant {
		for _, k := range keys {
			if _, ok := b.lk.Find(k); !ok {
				b.err = qerror.New(qerror.NoField, fmt.Sprintf("groupby: unresolved key %q", k))
				return b
			}
		}
	}
	out := lookup.New()
	for _, k := range keys {
		if _, err := out.GetOrAdd(k, lookup.Flags{Source: lookup.SourceComputed, Loaded: true}); err != nil {
			b.err = qerror.Wrap(qerror.Internal, "groupby key: "+k, err)
			return b
		}
	}
	for _, r := range reducers {
		if _, err := out.GetOrAdd(r.OutputName(), lookup.Flags{Source: lookup.SourceComputed, Loaded: true}); err != nil {
			b.err = qerror.Wrap(qerror.Internal, "groupby reducer: "+r.OutputName(), err)
			return b
		}
	}
	b.pushStep(GroupStep{Keys: keys, Reducers: reducers})
	b.lk = out
	b.hasGroup = true
	return b
}

// SortBy adds an ARRANGE step; max <= 0 means an unbounded sort.
func (b *Builder) SortBy(keys []SortKey, max int) *Builder {
	if b.err != nil {
		return b
	}
	if !b.unresolvedTolerant {
		for _, k := range keys {
			if _, ok := b.lk.Find(k.Field); !ok {
				b.err = qerror.New(qerror.NoField, fmt.Sprintf("sortby: unresolved field %q", k.Field))
				return b
			}
		}
	}
	b.pushStep(ArrangeStep{Keys: keys, Max: max})
	return b
}

// Limit adds a LIMIT step. Multiple LIMIT steps may be added; see
// Plan.FinalLimit/Plan.PushDownLimits for how they're reconciled.
func (b *Builder) Limit(offset, count int) *Builder {
	if b.err != nil {
		return b
	}
	b.pushStep(LimitStep{Offset: offset, Count: count})
	return b
}

// WithCursor adds a CURSOR step.
func (b *Builder) WithCursor(count, maxIdleMS int) *Builder {
	if b.err != nil {
		return b
	}
	b.pushStep(CursorStep{Count: count, MaxIdleMS: maxIdleMS})
	return b
}

// defaultRRFWindow is the compile-time fallback used when a HYBRID query
// specifies neither an explicit RRF window nor an active LIMIT.
const defaultRRFWindow = 100

// defaultRRFConstant is RRF's k parameter (spec.md §4.6.8: "default 60").
const defaultRRFConstant = 60.0

// HybridMerge adds a HYBRID_MERGE step, applying the K<=WINDOW capping
// rule from SPEC_FULL.md: an implicit (<=0) K or WINDOW takes activeLimit;
// when activeLimit is also unset, an implicit WINDOW takes
// defaultRRFWindow and an implicit K takes WINDOW. K is then capped at
// WINDOW whether either was explicit or not. The defaulting and the cap
// only apply under RRF.
func (b *Builder) HybridMerge(mode FusionMode, k, window int, rrfConstant, alpha, beta float64, activeLimit int) *Builder {
	if b.err != nil {
		return b
	}
	if rrfConstant == 0 {
		rrfConstant = defaultRRFConstant
	}
	if mode == FusionRRF {
		switch {
		case k <= 0 && window <= 0:
			fallback := activeLimit
			if fallback <= 0 {
				fallback = defaultRRFWindow
			}
			k, window = fallback, fallback
		case k <= 0:
			k = activeLimit
			if k <= 0 {
				k = window
			}
		case window <= 0:
			window = activeLimit
			if window <= 0 {
				window = defaultRRFWindow
			}
		}
		if k > window {
			k = window
		}
	}
	b.pushStep(HybridMergeStep{
		Mode: mode, K: k, Window: window, RRFConstant: rrfConstant, Alpha: alpha, Beta: beta,
	})
	return b
}

// Build finalizes the plan, returning the first bind-time error
// encountered, if any.
func (b *Builder) Build() (*Plan, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Plan{Steps: b.steps, Lookup: b.lk, StepLookups: b.stepLK}, nil
}

// checkResolved walks node's FieldRefs, failing at the first name absent
// from the builder's current Lookup.
func (b *Builder) checkResolved(node expr.Node) error {
	switch n := node.(type) {
	case *expr.FieldRef:
		if _, ok := b.lk.Find(n.Name); !ok {
			return qerror.New(qerror.NoField, fmt.Sprintf("unresolved field %q", n.Name))
		}
	case *expr.Unary:
		return b.checkResolved(n.X)
	case *expr.Binary:
		if err := b.checkResolved(n.X); err != nil {
			return err
		}
		return b.checkResolved(n.Y)
	case *expr.Logical:
		if err := b.checkResolved(n.X); err != nil {
			return err
		}
		return b.checkResolved(n.Y)
	case *expr.Call:
		for _, a := range n.Args {
			if err := b.checkResolved(a); err != nil {
				return err
			}
		}
	}
	return nil
}
