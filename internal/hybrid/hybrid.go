// Package hybrid implements the Fusion engine (C8 in SPEC_FULL.md): pure
// rank/score combination functions for HYBRID_MERGE, grounded on the
// reciprocal-rank-fusion algorithm of a conventional FTS+vector retrieval
// layer (rank-position maps, a tie-break on summed rank, deterministic
// ordering) but reworked around opaque uint64 document ids instead of
// string chunk ids.
package hybrid

import "sort"

// Hit is one branch's ranked result: a document id and its branch-local
// score (already in "higher is better" orientation).
type Hit struct {
	DocID uint64
	Score float64
}

// fused is one document's combined standing across all branches.
type fused struct {
	docID   uint64
	score   float64
	rankSum int
}

// FuseRRF combines branches by Reciprocal Rank Fusion: each branch
// contributes 1/(rrfConstant+rank) for documents it ranked, rank being
// 1-based branch-local position; documents absent from a branch
// contribute 0 from it. The result is sorted by fused score descending,
// ties broken by ascending summed rank then ascending DocID, and capped
// to k.
func FuseRRF(branches [][]Hit, k int, rrfConstant float64) []Hit {
	if rrfConstant <= 0 {
		rrfConstant = 60
	}
	acc := map[uint64]*fused{}
	var order []uint64
	for _, branch := range branches {
		for i, h := range branch {
			rank := i + 1
			f, ok := acc[h.DocID]
			if !ok {
				f = &fused{docID: h.DocID}
				acc[h.DocID] = f
				order = append(order, h.DocID)
			}
			f.score += 1.0 / (rrfConstant + float64(rank))
			f.rankSum += rank
		}
	}
	return finalize(acc, order, k)
}

// FuseLinear combines branches as
// alpha*normalize(branch0) + beta*normalize(branch1), per spec.md §4.6.8's
// LINEAR formula (alpha*normalized_text_score + beta*(1 -
// normalized_vector_distance)). Each branch is min-max normalized to [0,1]
// over its own hits before weighting — branch1 (the VSIM leg) arrives
// already distance-inverted by BuildVectorBranch, so normalizing it here
// is a no-op; branch0's raw lexical score is what actually gets rescaled.
// A document absent from a branch contributes 0 from it, same as FuseRRF.
// Any branch past the second is added with weight 1.
func FuseLinear(branches [][]Hit, alpha, beta float64) []Hit {
	acc := map[uint64]*fused{}
	var order []uint64
	weights := []float64{alpha, beta}
	for bi, branch := range branches {
		w := 1.0
		if bi < len(weights) {
			w = weights[bi]
		}
		norm := normalizeMinMax(branch)
		for i, h := range branch {
			f, ok := acc[h.DocID]
			if !ok {
				f = &fused{docID: h.DocID}
				acc[h.DocID] = f
				order = append(order, h.DocID)
			}
			f.score += w * norm[h.DocID]
			f.rankSum += i + 1
		}
	}
	return finalize(acc, order, 0)
}

// normalizeMinMax maps branch's scores onto [0,1] by the branch's own
// min/max, so FuseLinear can combine two branches whose raw scores live on
// unrelated scales. A branch with no spread (one hit, or every hit tied)
// normalizes every hit to 1 — there's nothing to discriminate on, so none
// of them should be penalized relative to the others.
func normalizeMinMax(branch []Hit) map[uint64]float64 {
	out := make(map[uint64]float64, len(branch))
	if len(branch) == 0 {
		return out
	}
	min, max := branch[0].Score, branch[0].Score
	for _, h := range branch[1:] {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	spread := max - min
	for _, h := range branch {
		if spread == 0 {
			out[h.DocID] = 1
			continue
		}
		out[h.DocID] = (h.Score - min) / spread
	}
	return out
}

func finalize(acc map[uint64]*fused, order []uint64, k int) []Hit {
	out := make([]fused, 0, len(order))
	for _, id := range order {
		out = append(out, *acc[id])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].rankSum != out[j].rankSum {
			return out[i].rankSum < out[j].rankSum
		}
		return out[i].docID < out[j].docID
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	hits := make([]Hit, len(out))
	for i, f := range out {
		hits[i] = Hit{DocID: f.docID, Score: f.score}
	}
	return hits
}
