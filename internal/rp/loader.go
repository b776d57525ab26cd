package rp

import (
	"context"

	"aggsearch/internal/kvstore"
	"aggsearch/internal/lookup"
	"aggsearch/internal/value"
)

// LoaderProcessor implements LOAD (spec.md §4.6.4): batch up to BatchSize
// upstream results, fetch the declared fields for each source document
// key, populate the matching slots, and re-emit the batch in arrival
// order. A document or field miss writes Null rather than failing the row.
type LoaderProcessor struct {
	upstream  Processor
	store     kvstore.DocStore
	lk        *lookup.Lookup
	fields    []string
	slots     []int
	batchSize int

	buf    []SearchResult
	bufPos int
	eof    bool
}

const defaultLoaderBatchSize = 64

// NewLoaderProcessor resolves fields against lk (each must already be
// registered, e.g. by an earlier GetOrAdd) and returns a LOADER pulling
// from upstream.
func NewLoaderProcessor(upstream Processor, store kvstore.DocStore, lk *lookup.Lookup, fields []string, batchSize int) *LoaderProcessor {
	if batchSize <= 0 {
		batchSize = defaultLoaderBatchSize
	}
	slots := make([]int, len(fields))
	for i, f := range fields {
		if k, ok := lk.Find(f); ok {
			slots[i] = k.Slot
		} else {
			slots[i] = -1
		}
	}
	return &LoaderProcessor{upstream: upstream, store: store, lk: lk, fields: fields, slots: slots, batchSize: batchSize}
}

func (p *LoaderProcessor) Kind() Kind          { return KindLoader }
func (p *LoaderProcessor) Upstream() Processor { return p.upstream }

func (p *LoaderProcessor) Next(ctx context.Context, out *SearchResult) (Status, error) {
	if proceed, status, err := CheckDeadline(ctx); !proceed {
		return status, err
	}
	for p.bufPos >= len(p.buf) {
		if p.eof {
			return StatusEof, nil
		}
		status, err := p.fillBatch(ctx)
		if status != StatusOk {
			return status, err
		}
	}
	*out = p.buf[p.bufPos]
	p.bufPos++
	return StatusOk, nil
}

// fillBatch pulls up to batchSize rows from upstream and loads fields for
// each, synchronously (store fan-out/batching is the store's concern).
func (p *LoaderProcessor) fillBatch(ctx context.Context) (Status, error) {
	p.buf = p.buf[:0]
	p.bufPos = 0
	for len(p.buf) < p.batchSize {
		var sr SearchResult
		status, err := p.upstream.Next(ctx, &sr)
		if status == StatusEof {
			p.eof = true
			break
		}
		if status != StatusOk {
			return status, err
		}
		if err := p.load(ctx, &sr); err != nil {
			return StatusErr, err
		}
		p.buf = append(p.buf, sr)
	}
	if len(p.buf) == 0 && p.eof {
		return StatusEof, nil
	}
	return StatusOk, nil
}

func (p *LoaderProcessor) load(ctx context.Context, sr *SearchResult) error {
	if sr.Row == nil {
		sr.Row = lookup.NewRow(p.lk.Len())
	}
	if sr.Row.DocKey == "" || p.store == nil {
		p.writeAllNull(sr.Row)
		return nil
	}
	fetched, found, err := p.store.LoadFields(ctx, sr.Row.DocKey, p.fields)
	if err != nil {
		return err
	}
	if !found {
		p.writeAllNull(sr.Row)
		return nil
	}
	for i, f := range p.fields {
		slot := p.slots[i]
		if slot < 0 {
			continue
		}
		v, ok := fetched[f]
		if !ok {
			v = value.Null
		}
		sr.Row.Set(slot, v)
	}
	return nil
}

func (p *LoaderProcessor) writeAllNull(row *lookup.Row) {
	for _, slot := range p.slots {
		if slot >= 0 {
			row.Set(slot, value.Null)
		}
	}
}

func (p *LoaderProcessor) Free() { p.upstream.Free() }
