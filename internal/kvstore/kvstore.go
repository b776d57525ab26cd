// Package kvstore defines the thin storage interfaces the Loader and
// INDEX result processors consume (SPEC_FULL.md §4.8), with a Redis-backed
// production implementation and an in-memory mock for tests.
package kvstore

import (
	"context"

	"aggsearch/internal/value"
)

// DocStore fetches document field values by key. Implementations must
// treat a missing document the same as a document with no fields: ok
// reports whether the document key exists at all, distinct from a field
// being absent within it (the caller writes Null for absent fields
// either way).
type DocStore interface {
	LoadFields(ctx context.Context, docKey string, fields []string) (map[string]value.Value, bool, error)
	FieldExists(ctx context.Context, docKey, field string) (bool, error)
}

// IndexIterator yields ranked (docID, score) pairs; the INDEX result
// processor (internal/rp) wraps one.
type IndexIterator interface {
	Next() (docID uint64, score float64, ok bool)
	Close()
}

// VectorHit is one K-nearest-neighbor result from a VectorIndex.
type VectorHit struct {
	DocID    uint64
	Distance float64
}

// VectorIndex resolves a VSIM branch's KNN search. Implemented by
// internal/qdrantidx in production.
type VectorIndex interface {
	KNN(ctx context.Context, field string, blob []byte, k int) ([]VectorHit, error)
}
