package rp

import (
	"context"
	"strings"

	"aggsearch/internal/aggplan"
	"aggsearch/internal/lookup"
	"aggsearch/internal/qerror"
	"aggsearch/internal/value"
)

// accumulator is one reducer's running state across a group's rows,
// matching the names distribute/reducer.go emits on both the shard and
// coordinator sides of a split plan.
type accumulator interface {
	add(args []value.Value)
	finalize() value.Value
}

func newAccumulator(fn string) (accumulator, error) {
	switch strings.ToUpper(fn) {
	case "COUNT":
		return &countAcc{}, nil
	case "SUM":
		return &sumAcc{}, nil
	case "MIN":
		return &minMaxAcc{max: false, best: value.Null}, nil
	case "MAX":
		return &minMaxAcc{max: true, best: value.Null}, nil
	case "SUM_SQ":
		return &sumSqAcc{}, nil
	case "TOLIST":
		return &listAcc{}, nil
	case "TOLIST_DISTINCT", "UNION_DISTINCT":
		return &distinctListAcc{seen: map[string]bool{}}, nil
	case "TOLIST_CONCAT":
		return &concatListAcc{}, nil
	default:
		return nil, qerror.New(qerror.Internal, "grouper: unknown reducer "+fn)
	}
}

type countAcc struct{ n float64 }

func (a *countAcc) add(args []value.Value) {
	if len(args) == 0 || !args[0].IsNull() {
		a.n++
	}
}
func (a *countAcc) finalize() value.Value { return value.Number(a.n) }

type sumAcc struct{ s float64 }

func (a *sumAcc) add(args []value.Value) {
	if len(args) == 0 {
		return
	}
	if f, ok := args[0].Number(); ok {
		a.s += f
	}
}
func (a *sumAcc) finalize() value.Value { return value.Number(a.s) }

type sumSqAcc struct{ s float64 }

func (a *sumSqAcc) add(args []value.Value) {
	if len(args) == 0 {
		return
	}
	if f, ok := args[0].Number(); ok {
		a.s += f * f
	}
}
func (a *sumSqAcc) finalize() value.Value { return value.Number(a.s) }

type minMaxAcc struct {
	max  bool
	best value.Value
	init bool
}

func (a *minMaxAcc) add(args []value.Value) {
	if len(args) == 0 || args[0].IsNull() {
		return
	}
	if !a.init {
		a.best, a.init = args[0], true
		return
	}
	c := value.Compare(args[0], a.best)
	if (a.max && c > 0) || (!a.max && c < 0) {
		a.best = args[0]
	}
}
func (a *minMaxAcc) finalize() value.Value { return a.best }

type listAcc struct{ items []value.Value }

func (a *listAcc) add(args []value.Value) {
	if len(args) > 0 {
		a.items = append(a.items, args[0])
	}
}
func (a *listAcc) finalize() value.Value { return value.Array(a.items) }

// distinctListAcc backs both TOLIST_DISTINCT (shard-side dedup of a raw
// field) and UNION_DISTINCT (coordinator-side dedup of already-distinct
// shard lists, which arrive as single array-valued args).
type distinctListAcc struct {
	items []value.Value
	seen  map[string]bool
}

func (a *distinctListAcc) add(args []value.Value) {
	if len(args) == 0 {
		return
	}
	v := args[0]
	if v.Kind() == value.KindArray {
		for _, e := range v.Elements() {
			a.addOne(e)
		}
		return
	}
	a.addOne(v)
}

func (a *distinctListAcc) addOne(v value.Value) {
	if v.IsNull() {
		return
	}
	k := v.String()
	if a.seen[k] {
		return
	}
	a.seen[k] = true
	a.items = append(a.items, v)
}
func (a *distinctListAcc) finalize() value.Value { return value.Array(a.items) }

// concatListAcc flattens shard-side TOLIST array args into one list,
// backing the coordinator side of a distributed TOLIST.
type concatListAcc struct{ items []value.Value }

func (a *concatListAcc) add(args []value.Value) {
	if len(args) == 0 {
		return
	}
	if args[0].Kind() == value.KindArray {
		a.items = append(a.items, args[0].Elements()...)
		return
	}
	a.items = append(a.items, args[0])
}
func (a *concatListAcc) finalize() value.Value { return value.Array(a.items) }

// groupBucket holds one group's key values and its reducers' running
// accumulators, in first-seen order.
type groupBucket struct {
	keyVals []value.Value
	accs    []accumulator
}

// GrouperProcessor implements GROUP: it hash-buckets upstream rows by
// Keys, feeding each reducer's declared args into its accumulator, and
// emits one row per bucket in first-seen order once upstream is drained.
type GrouperProcessor struct {
	upstream  Processor
	lk        *lookup.Lookup
	keys      []string
	keySlots  []int
	reducers  []aggplan.Reducer
	argSlots  [][]int
	outSlots  []int
	keyOut    []int

	order   []string
	buckets map[string]*groupBucket
	emit    []SearchResult
	pos     int
	filled  bool
}

func NewGrouperProcessor(upstream Processor, upstreamLk, outLk *lookup.Lookup, keys []string, reducers []aggplan.Reducer) *GrouperProcessor {
	g := &GrouperProcessor{
		upstream: upstream, lk: outLk, keys: keys, reducers: reducers,
		buckets: map[string]*groupBucket{},
	}
	g.keySlots = make([]int, len(keys))
	g.keyOut = make([]int, len(keys))
	for i, k := range keys {
		if src, ok := upstreamLk.Find(k); ok {
			g.keySlots[i] = src.Slot
		} else {
			g.keySlots[i] = -1
		}
		if dst, ok := outLk.Find(k); ok {
			g.keyOut[i] = dst.Slot
		} else {
			g.keyOut[i] = -1
		}
	}
	g.argSlots = make([][]int, len(reducers))
	g.outSlots = make([]int, len(reducers))
	for i, r := range reducers {
		slots := make([]int, len(r.Args))
		for j, a := range r.Args {
			if src, ok := upstreamLk.Find(a); ok {
				slots[j] = src.Slot
			} else {
				slots[j] = -1
			}
		}
		g.argSlots[i] = slots
		if dst, ok := outLk.Find(r.OutputName()); ok {
			g.outSlots[i] = dst.Slot
		} else {
			g.outSlots[i] = -1
		}
	}
	return g
}

func (p *GrouperProcessor) Kind() Kind          { return KindGrouper }
func (p *GrouperProcessor) Upstream() Processor { return p.upstream }

// routeExpanded buckets one source row, expanding a Cartesian product
// over any array-valued group keys (spec.md §1: "if any source value is
// an array, split the row and route one copy per element"). Combinations
// are visited one at a time rather than materialized as a full product
// up front.
func (p *GrouperProcessor) routeExpanded(keyVals []value.Value, args [][]value.Value) (Status, error) {
	var rowErr error
	expandCartesian(keyVals, func(combo []value.Value) {
		if rowErr != nil {
			return
		}
		if err := p.route(combo, args); err != nil {
			rowErr = err
		}
	})
	if rowErr != nil {
		return StatusErr, rowErr
	}
	return StatusOk, nil
}

// expandCartesian calls visit once per combination of keyVals, treating
// each array-valued element as a dimension and every other element as a
// fixed singleton dimension.
func expandCartesian(keyVals []value.Value, visit func([]value.Value)) {
	combo := make([]value.Value, len(keyVals))
	var rec func(i int)
	rec = func(i int) {
		if i == len(keyVals) {
			out := make([]value.Value, len(combo))
			copy(out, combo)
			visit(out)
			return
		}
		v := keyVals[i]
		if v.Kind() == value.KindArray {
			elems := v.Elements()
			if len(elems) == 0 {
				combo[i] = value.Null
				rec(i + 1)
				return
			}
			for _, e := range elems {
				combo[i] = e
				rec(i + 1)
			}
			return
		}
		combo[i] = v
		rec(i + 1)
	}
	rec(0)
}

func (p *GrouperProcessor) route(keyVals []value.Value, args [][]value.Value) error {
	bk := bucketKey(keyVals)
	bucket, ok := p.buckets[bk]
	if !ok {
		accs := make([]accumulator, len(p.reducers))
		for i, r := range p.reducers {
			acc, err := newAccumulator(r.Func)
			if err != nil {
				return err
			}
			accs[i] = acc
		}
		bucket = &groupBucket{keyVals: keyVals, accs: accs}
		p.buckets[bk] = bucket
		p.order = append(p.order, bk)
	}
	for i, a := range args {
		bucket.accs[i].add(a)
	}
	return nil
}

func bucketKey(vals []value.Value) string {
	var b strings.Builder
	for _, v := range vals {
		b.WriteString(v.String())
		b.WriteByte(0)
	}
	return b.String()
}

func (p *GrouperProcessor) fill(ctx context.Context) (Status, error) {
	for {
		var sr SearchResult
		status, err := p.upstream.Next(ctx, &sr)
		if status == StatusEof {
			break
		}
		if status != StatusOk {
			return status, err
		}
		keyVals := make([]value.Value, len(p.keys))
		for i, slot := range p.keySlots {
			if slot >= 0 {
				keyVals[i], _ = sr.Row.Get(slot)
			} else {
				keyVals[i] = value.Null
			}
		}
		args := make([][]value.Value, len(p.argSlots))
		for i, slots := range p.argSlots {
			a := make([]value.Value, len(slots))
			for j, slot := range slots {
				if slot >= 0 {
					a[j], _ = sr.Row.Get(slot)
				} else {
					a[j] = value.Null
				}
			}
			args[i] = a
		}
		if status, err := p.routeExpanded(keyVals, args); status != StatusOk {
			return status, err
		}
	}

	p.emit = make([]SearchResult, 0, len(p.order))
	for _, bk := range p.order {
		bucket := p.buckets[bk]
		row := lookup.NewRow(p.lk.Len())
		for i, slot := range p.keyOut {
			if slot >= 0 {
				row.Set(slot, bucket.keyVals[i])
			}
		}
		for i, slot := range p.outSlots {
			if slot >= 0 {
				row.Set(slot, bucket.accs[i].finalize())
			}
		}
		p.emit = append(p.emit, SearchResult{Row: row})
	}
	p.filled = true
	return StatusOk, nil
}

func (p *GrouperProcessor) Next(ctx context.Context, out *SearchResult) (Status, error) {
	if proceed, status, err := CheckDeadline(ctx); !proceed {
		return status, err
	}
	if !p.filled {
		if status, err := p.fill(ctx); status != StatusOk {
			return status, err
		}
	}
	if p.pos >= len(p.emit) {
		return StatusEof, nil
	}
	*out = p.emit[p.pos]
	p.pos++
	return StatusOk, nil
}

func (p *GrouperProcessor) Free() { p.upstream.Free() }
