package hybrid

import "testing"

func TestFuseRRF_UnionsAndRanks(t *testing.T) {
	ft := []Hit{{DocID: 1}, {DocID: 2}, {DocID: 3}}
	vec := []Hit{{DocID: 2}, {DocID: 3}, {DocID: 1}}
	out := FuseRRF([][]Hit{ft, vec}, 10, 60)
	if len(out) != 3 {
		t.Fatalf("expected 3 fused hits, got %d", len(out))
	}
	// doc 2 (rank 2 in ft, rank 1 in vec) scores 1/62+1/61, ahead of doc 1
	// (rank 1 in ft, rank 3 in vec) at 1/61+1/63 and doc 3 (ranks 3 and 2)
	// at 1/63+1/62.
	if out[0].DocID != 2 {
		t.Fatalf("expected doc 2 to rank first, got %d", out[0].DocID)
	}
}

func TestFuseRRF_CapsToK(t *testing.T) {
	branch := []Hit{{DocID: 1}, {DocID: 2}, {DocID: 3}, {DocID: 4}}
	out := FuseRRF([][]Hit{branch}, 2, 60)
	if len(out) != 2 {
		t.Fatalf("expected cap to 2, got %d", len(out))
	}
	if out[0].DocID != 1 || out[1].DocID != 2 {
		t.Fatalf("expected rank order preserved under cap, got %+v", out)
	}
}

func TestFuseRRF_AbsentFromOneBranchStillCounted(t *testing.T) {
	ft := []Hit{{DocID: 1}}
	vec := []Hit{{DocID: 2}}
	out := FuseRRF([][]Hit{ft, vec}, 10, 60)
	if len(out) != 2 {
		t.Fatalf("expected both docs present, got %d", len(out))
	}
}

func TestFuseLinear_NormalizesEachBranchBeforeWeighting(t *testing.T) {
	// ft's raw scale (10..1000) is wildly different from vec's (0.1..1.0);
	// without per-branch min-max normalization ft would dominate purely on
	// magnitude. doc1 tops ft and bottoms vec, doc2 the reverse, so after
	// normalizing both to [0,1] the unequal alpha/beta alone decides it.
	ft := []Hit{{DocID: 1, Score: 1000}, {DocID: 2, Score: 10}}
	vec := []Hit{{DocID: 2, Score: 1.0}, {DocID: 1, Score: 0.1}}
	out := FuseLinear([][]Hit{ft, vec}, 0.7, 0.3)
	if len(out) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(out))
	}
	// doc1: 0.7*1.0+0.3*0.0=0.7 ; doc2: 0.7*0.0+0.3*1.0=0.3
	if out[0].DocID != 1 {
		t.Fatalf("expected doc 1 to win on weighted normalized score, got %+v", out)
	}
}

func TestFuseLinear_TiedBranchNormalizesToOne(t *testing.T) {
	// A single-hit (zero-spread) branch has nothing to discriminate on, so
	// normalizeMinMax must not divide by zero — every hit in it scores 1.
	ft := []Hit{{DocID: 1, Score: 42}}
	vec := []Hit{{DocID: 1, Score: 7}}
	out := FuseLinear([][]Hit{ft, vec}, 0.5, 0.5)
	if len(out) != 1 || out[0].Score != 1.0 {
		t.Fatalf("expected doc 1 at score 1.0, got %+v", out)
	}
}

func TestFuseRRF_DeterministicTieBreakOnDocID(t *testing.T) {
	branch := []Hit{{DocID: 5}, {DocID: 3}}
	out := FuseRRF([][]Hit{branch}, 0, 60)
	if out[0].DocID != 5 || out[1].DocID != 3 {
		t.Fatalf("expected rank order preserved, got %+v", out)
	}

	// Mirrored ranks give docs 5 and 3 the same RRF score and rank-sum, so
	// ascending DocID decides.
	tied := FuseRRF([][]Hit{{{DocID: 5}, {DocID: 3}}, {{DocID: 3}, {DocID: 5}}}, 0, 60)
	if len(tied) != 2 || tied[0].DocID != 3 || tied[1].DocID != 5 {
		t.Fatalf("expected tie broken by ascending DocID, got %+v", tied)
	}
}
