package distribute

import (
	"fmt"
	"strconv"
	"strings"

	"aggsearch/internal/aggplan"
	"aggsearch/internal/lookup"
)

// Split is the output of distributing a Plan: a shard-local subplan, a
// coordinator-local subplan (headed by a synthetic DistributeStep), and
// the serialized argv a coordinator sends to each shard.
type Split struct {
	ShardPlan *aggplan.Plan
	CoordPlan *aggplan.Plan
	ShardArgv []string
}

// commutesWithGroup reports whether step k can run shard-local regardless
// of position relative to GROUP.
func commutesWithGroup(k aggplan.StepKind) bool {
	switch k {
	case aggplan.StepLoad, aggplan.StepApply, aggplan.StepFilter:
		return true
	default:
		return false
	}
}

// cutPoint finds the index (into p.Steps) of the first non-commutable
// step: the first GROUP, HYBRID_MERGE, or CURSOR step, or the second
// ARRANGE/LIMIT step (the first one is the shard's partial top-K). Returns
// len(p.Steps) when nothing forces a cut — the plan runs entirely
// shard-local and distribution is a no-op pass-through.
func cutPoint(p *aggplan.Plan) int {
	sawArrangeOrLimit := false
	for i := 1; i < len(p.Steps); i++ { // 0 is always RootStep
		k := p.Steps[i].Kind()
		switch {
		case commutesWithGroup(k):
			continue
		case k == aggplan.StepArrange || k == aggplan.StepLimit:
			if !sawArrangeOrLimit {
				sawArrangeOrLimit = true
				continue
			}
			return i
		default:
			return i
		}
	}
	return len(p.Steps)
}

// Split cuts p into a shard-local subplan, executed once per shard, and a
// coordinator subplan run by one process over the shards' merged rows.
func Split(p *aggplan.Plan) (*Split, error) {
	cut := cutPoint(p)
	shardSteps := append([]aggplan.Step(nil), p.Steps[:cut]...)

	if cut == len(p.Steps) {
		// Nothing forces a cut: the whole plan runs on each shard and a
		// trivial pass-through coordinator just re-emits shard output in
		// order (used for un-aggregated SEARCH distributed across shards).
		coordPlan := &aggplan.Plan{
			Steps:  []aggplan.Step{aggplan.DistributeStep{}},
			Lookup: p.Lookup,
		}
		argv, err := serializeShardPlan(shardSteps)
		if err != nil {
			return nil, err
		}
		return &Split{
			ShardPlan: &aggplan.Plan{Steps: shardSteps, Lookup: p.Lookup},
			CoordPlan: coordPlan,
			ShardArgv: argv,
		}, nil
	}

	cutStep := p.Steps[cut]
	coordSteps := []aggplan.Step{aggplan.DistributeStep{}}

	var coordLk *lookup.Lookup
	if g, ok := cutStep.(aggplan.GroupStep); ok {
		shardReducers := make([]aggplan.Reducer, 0, len(g.Reducers))
		coordReducers := make([]aggplan.Reducer, 0, len(g.Reducers))
		var coordApplies []aggplan.ApplyStep
		for _, r := range g.Reducers {
			rw, err := rewriteReducer(r)
			if err != nil {
				return nil, err
			}
			shardReducers = append(shardReducers, rw.ShardReducers...)
			coordReducers = append(coordReducers, rw.CoordReducers...)
			if rw.CoordApply != nil {
				coordApplies = append(coordApplies, *rw.CoordApply)
			}
		}
		shardSteps = append(shardSteps, aggplan.GroupStep{Keys: g.Keys, Reducers: shardReducers})
		coordSteps = append(coordSteps, aggplan.GroupStep{Keys: g.Keys, Reducers: coordReducers})
		for _, a := range coordApplies {
			coordSteps = append(coordSteps, a)
		}
		coordSteps = append(coordSteps, p.Steps[cut+1:]...)

		// The coordinator's merge GROUP produces a Lookup the original
		// plan never had (coordReducers' own output names, and —for
		// AVG/STDDEV/COUNT_DISTINCT— intermediate aliases finished by a
		// CoordApply): register them the same way Builder.GroupBy/Apply
		// would, so the engine can resolve every step after the cut.
		coordLk = lookup.New()
		for _, k := range g.Keys {
			coordLk.GetOrAdd(k, lookup.Flags{Source: lookup.SourceComputed, Loaded: true})
		}
		for _, r := range coordReducers {
			// The merge GROUP reads these by name off its incoming (shard-
			// reply) rows before it can write r.OutputName(), so they need
			// slots of their own — hidden, since they're merge-step
			// plumbing, not a client-visible field. Registered before the
			// output name so the widen-never-narrow rule in GetOrAdd
			// un-hides a reducer whose input and output name coincide (the
			// unknown-reducer passthrough case below).
			for _, a := range r.Args {
				coordLk.GetOrAdd(a, lookup.Flags{Source: lookup.SourceComputed, Loaded: true, Hidden: true})
			}
			coordLk.GetOrAdd(r.OutputName(), lookup.Flags{Source: lookup.SourceComputed, Loaded: true})
		}
		for _, a := range coordApplies {
			coordLk.GetOrAdd(a.Alias, lookup.Flags{Source: lookup.SourceComputed, Loaded: true})
		}
	} else {
		// HYBRID_MERGE/CURSOR/second ARRANGE|LIMIT: the cutting step and
		// everything after it is coordinator-only, unmodified — still
		// bound against the original plan's final Lookup, since these
		// steps were validated against it and never rebind fields.
		coordSteps = append(coordSteps, p.Steps[cut:]...)
		coordLk = p.Lookup
	}

	argv, err := serializeShardPlan(shardSteps)
	if err != nil {
		return nil, err
	}

	return &Split{
		ShardPlan: &aggplan.Plan{Steps: shardSteps, Lookup: p.Lookup},
		CoordPlan: &aggplan.Plan{Steps: coordSteps, Lookup: coordLk},
		ShardArgv: argv,
	}, nil
}

// serializeShardPlan renders shard steps into the stable argv token
// sequence the shard's command parser recognizes (SPEC_FULL.md §6,
// "Serialized distributed subplan"). The command verb itself
// (_FT.SEARCH/_FT.AGGREGATE/_FT.HYBRID) and the SLOTS/WITHCURSOR trailer
// are added by internal/command, which owns the full command envelope;
// this function only renders the step-level body.
func serializeShardPlan(steps []aggplan.Step) ([]string, error) {
	var argv []string
	for _, s := range steps {
		switch st := s.(type) {
		case aggplan.RootStep:
			argv = append(argv, st.Index, st.Query)
		case aggplan.LoadStep:
			argv = append(argv, "LOAD", strconv.Itoa(len(st.Fields)))
			argv = append(argv, st.Fields...)
		case aggplan.ApplyStep:
			argv = append(argv, "APPLY", st.Source, "AS", st.Alias)
		case aggplan.FilterStep:
			argv = append(argv, "FILTER", st.Source)
		case aggplan.GroupStep:
			argv = append(argv, "GROUPBY", strconv.Itoa(len(st.Keys)))
			argv = append(argv, st.Keys...)
			for _, r := range st.Reducers {
				argv = append(argv, "REDUCE", r.Func, strconv.Itoa(len(r.Args)))
				argv = append(argv, r.Args...)
				if r.Alias != "" {
					argv = append(argv, "AS", r.Alias)
				}
			}
		case aggplan.ArrangeStep:
			argv = append(argv, "SORTBY", strconv.Itoa(2*len(st.Keys)))
			for _, k := range st.Keys {
				dir := "ASC"
				if !k.Asc {
					dir = "DESC"
				}
				argv = append(argv, k.Field, dir)
			}
			if st.Max > 0 {
				argv = append(argv, "MAX", strconv.Itoa(st.Max))
			}
		case aggplan.LimitStep:
			argv = append(argv, "LIMIT", strconv.Itoa(st.Offset), strconv.Itoa(st.Count))
		default:
			return nil, fmt.Errorf("distribute: step kind %s has no shard-side serialization", s.Kind())
		}
	}
	return argv, nil
}

// FormatArgv joins argv with single spaces for logging/debugging; the
// wire format itself is a true argv (array of tokens), never this string.
func FormatArgv(argv []string) string { return strings.Join(argv, " ") }
