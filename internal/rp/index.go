package rp

import (
	"context"

	"aggsearch/internal/lookup"
)

// IndexIterator yields (docID, score) pairs from the underlying index in
// whatever order the index naturally produces them (relevance order for
// FTS, distance order for a KNN branch). Next returns ok=false at
// exhaustion.
type IndexIterator interface {
	Next() (docID uint64, score float64, ok bool)
	Close()
}

// IndexProcessor is the pipeline root (C6/4.6.1): it wraps an
// IndexIterator, emitting {docId, score} with an empty row — no field
// values are fetched here, that's the LOADER's job. Weight multiplies the
// iterator's native score, used by HYBRID branches that need to weight
// one leg before fusion.
type IndexProcessor struct {
	iter   IndexIterator
	weight float64
}

// NewIndexProcessor wraps iter with a score weight (1.0 for no scaling).
func NewIndexProcessor(iter IndexIterator, weight float64) *IndexProcessor {
	if weight == 0 {
		weight = 1
	}
	return &IndexProcessor{iter: iter, weight: weight}
}

func (p *IndexProcessor) Kind() Kind { return KindIndex }

func (p *IndexProcessor) Next(ctx context.Context, out *SearchResult) (Status, error) {
	if proceed, status, err := CheckDeadline(ctx); !proceed {
		return status, err
	}
	docID, score, ok := p.iter.Next()
	if !ok {
		return StatusEof, nil
	}
	out.DocID = docID
	out.Score = score * p.weight
	out.Row = lookup.NewRow(0)
	out.Row.DocKey = DocKeyOf(docID)
	return StatusOk, nil
}

func (p *IndexProcessor) Free() {
	if p.iter != nil {
		p.iter.Close()
	}
}

// DocKeyOf renders a numeric docId into the store key convention used
// throughout the pipeline (internal/kvstore, internal/docmeta). Kept as a
// single function so every processor agrees on the mapping.
func DocKeyOf(docID uint64) string {
	return "doc:" + uitoa(docID)
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// sliceIterator is a simple in-memory IndexIterator, useful for tests and
// for small/static indexes.
type sliceIterator struct {
	ids    []uint64
	scores []float64
	pos    int
}

// NewSliceIterator returns an IndexIterator over a fixed, pre-ranked list.
func NewSliceIterator(ids []uint64, scores []float64) IndexIterator {
	return &sliceIterator{ids: ids, scores: scores}
}

func (s *sliceIterator) Next() (uint64, float64, bool) {
	if s.pos >= len(s.ids) {
		return 0, 0, false
	}
	id, sc := s.ids[s.pos], s.scores[s.pos]
	s.pos++
	return id, sc, true
}

func (s *sliceIterator) Close() {}
