// Package distribute implements the Distributor (C5 in SPEC_FULL.md): it
// rewrites an AGGPlan into a shard-local subplan and a coordinator-local
// subplan joined by a reducer rewrite table, then serializes the
// shard-local subplan back into the argv wire format shards expect.
package distribute

import (
	"fmt"
	"strings"

	"aggsearch/internal/aggplan"
	"aggsearch/internal/expr"
)

// rewrittenReducer is the output of splitting one logical Reducer into its
// shard-side partial form(s) and the coordinator-side steps that finish
// the computation. Most reducers need only one auxiliary column and a
// coordinator reducer of the same shape (SUM/MIN/MAX); AVG and STDDEV need
// more than one auxiliary and a final APPLY expression evaluated on the
// coordinator after the merge GROUP.
type rewrittenReducer struct {
	ShardReducers []aggplan.Reducer // appended to the shard-side GroupStep
	CoordReducers []aggplan.Reducer // appended to the coordinator-side merge GroupStep
	CoordApply    *aggplan.ApplyStep // optional: finishes the computation from CoordReducers' outputs
}

// aux builds the column name for a reducer's auxiliary shard output.
func aux(base, suffix string) string { return base + "__" + suffix }

// applyStep builds a finished ApplyStep, parsing src so the coordinator
// plan carries a ready-to-evaluate expr.Node rather than just source text.
func applyStep(src, alias string) (*aggplan.ApplyStep, error) {
	node, err := expr.Parse(src)
	if err != nil {
		return nil, err
	}
	return &aggplan.ApplyStep{Source: src, Expr: node, Alias: alias}, nil
}

// rewriteReducer applies the fixed table from SPEC_FULL.md §4.4 to one
// logical reducer, producing its shard/coordinator halves. Unknown
// reducer names pass through unchanged on both sides (treated as already
// commutative-associative, e.g. a future user-registered reducer).
func rewriteReducer(r aggplan.Reducer) (rewrittenReducer, error) {
	out := r.OutputName()
	switch strings.ToUpper(r.Func) {
	case "COUNT":
		shardOut := aux(out, "count")
		return rewrittenReducer{
			ShardReducers: []aggplan.Reducer{{Func: "COUNT", Args: r.Args, Alias: shardOut}},
			CoordReducers: []aggplan.Reducer{{Func: "SUM", Args: []string{shardOut}, Alias: out}},
		}, nil
	case "SUM":
		shardOut := aux(out, "sum")
		return rewrittenReducer{
			ShardReducers: []aggplan.Reducer{{Func: "SUM", Args: r.Args, Alias: shardOut}},
			CoordReducers: []aggplan.Reducer{{Func: "SUM", Args: []string{shardOut}, Alias: out}},
		}, nil
	case "MIN":
		shardOut := aux(out, "min")
		return rewrittenReducer{
			ShardReducers: []aggplan.Reducer{{Func: "MIN", Args: r.Args, Alias: shardOut}},
			CoordReducers: []aggplan.Reducer{{Func: "MIN", Args: []string{shardOut}, Alias: out}},
		}, nil
	case "MAX":
		shardOut := aux(out, "max")
		return rewrittenReducer{
			ShardReducers: []aggplan.Reducer{{Func: "MAX", Args: r.Args, Alias: shardOut}},
			CoordReducers: []aggplan.Reducer{{Func: "MAX", Args: []string{shardOut}, Alias: out}},
		}, nil
	case "AVG":
		sumOut, cntOut := aux(out, "sum"), aux(out, "count")
		tmpSum, tmpCnt := aux(out, "sum_merged"), aux(out, "count_merged")
		apply, err := applyStep(fmt.Sprintf("@%s / @%s", tmpSum, tmpCnt), out)
		if err != nil {
			return rewrittenReducer{}, err
		}
		return rewrittenReducer{
			ShardReducers: []aggplan.Reducer{
				{Func: "SUM", Args: r.Args, Alias: sumOut},
				{Func: "COUNT", Args: r.Args, Alias: cntOut},
			},
			CoordReducers: []aggplan.Reducer{
				{Func: "SUM", Args: []string{sumOut}, Alias: tmpSum},
				{Func: "SUM", Args: []string{cntOut}, Alias: tmpCnt},
			},
			CoordApply: apply,
		}, nil
	case "COUNT_DISTINCT":
		shardOut := aux(out, "distinct_partial")
		coordOut := aux(out, "distinct_union")
		apply, err := applyStep(fmt.Sprintf("arraylen(@%s)", coordOut), out)
		if err != nil {
			return rewrittenReducer{}, err
		}
		return rewrittenReducer{
			ShardReducers: []aggplan.Reducer{{Func: "TOLIST_DISTINCT", Args: r.Args, Alias: shardOut}},
			CoordReducers: []aggplan.Reducer{{Func: "UNION_DISTINCT", Args: []string{shardOut}, Alias: coordOut}},
			CoordApply:    apply,
		}, nil
	case "TOLIST":
		shardOut := aux(out, "list")
		return rewrittenReducer{
			ShardReducers: []aggplan.Reducer{{Func: "TOLIST", Args: r.Args, Alias: shardOut}},
			CoordReducers: []aggplan.Reducer{{Func: "TOLIST_CONCAT", Args: []string{shardOut}, Alias: out}},
		}, nil
	case "STDDEV":
		sumX, sumX2, n := aux(out, "sumx"), aux(out, "sumx2"), aux(out, "n")
		tmpSumX, tmpSumX2, tmpN := aux(out, "sumx_merged"), aux(out, "sumx2_merged"), aux(out, "n_merged")
		var arg string
		if len(r.Args) > 0 {
			arg = r.Args[0]
		}
		apply, err := applyStep(fmt.Sprintf("sqrt(@%s / @%s - (@%s / @%s) ^ 2)", tmpSumX2, tmpN, tmpSumX, tmpN), out)
		if err != nil {
			return rewrittenReducer{}, err
		}
		return rewrittenReducer{
			ShardReducers: []aggplan.Reducer{
				{Func: "SUM", Args: []string{arg}, Alias: sumX},
				{Func: "SUM_SQ", Args: []string{arg}, Alias: sumX2},
				{Func: "COUNT", Args: r.Args, Alias: n},
			},
			CoordReducers: []aggplan.Reducer{
				{Func: "SUM", Args: []string{sumX}, Alias: tmpSumX},
				{Func: "SUM", Args: []string{sumX2}, Alias: tmpSumX2},
				{Func: "SUM", Args: []string{n}, Alias: tmpN},
			},
			CoordApply: apply,
		}, nil
	default:
		// Unknown reducer: assume it is already commutative/associative and
		// apply it unchanged on both halves (the shard computes the true
		// partial, the coordinator combines partials the same way).
		return rewrittenReducer{
			ShardReducers: []aggplan.Reducer{r},
			CoordReducers: []aggplan.Reducer{{Func: r.Func, Args: []string{out}, Alias: out}},
		}, nil
	}
}
