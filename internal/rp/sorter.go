package rp

import (
	"container/heap"
	"context"
	"sort"

	"aggsearch/internal/aggplan"
	"aggsearch/internal/lookup"
	"aggsearch/internal/value"
)

// SorterProcessor implements ARRANGE (SORTBY): it drains its upstream
// fully, keeping only the best Max rows (0 means unbounded) ordered by
// Keys, then re-emits them best-first. Ties break on ascending DocID.
type SorterProcessor struct {
	upstream Processor
	keys     []aggplan.SortKey
	slots    []int
	max      int

	sorted []SearchResult
	pos    int
	filled bool
}

func NewSorterProcessor(upstream Processor, lk *lookup.Lookup, keys []aggplan.SortKey, max int) *SorterProcessor {
	slots := make([]int, len(keys))
	for i, k := range keys {
		if key, ok := lk.Find(k.Field); ok {
			slots[i] = key.Slot
		} else {
			slots[i] = -1
		}
	}
	return &SorterProcessor{upstream: upstream, keys: keys, slots: slots, max: max}
}

func (p *SorterProcessor) Kind() Kind          { return KindSorter }
func (p *SorterProcessor) Upstream() Processor { return p.upstream }

// less reports whether a ranks strictly before b under p.keys, falling
// back to ascending DocID.
func (p *SorterProcessor) less(a, b *SearchResult) bool {
	for i, k := range p.keys {
		slot := p.slots[i]
		var av, bv value.Value
		if slot >= 0 {
			av, _ = a.Row.Get(slot)
			bv, _ = b.Row.Get(slot)
		}
		c := value.Compare(av, bv)
		if c == 0 {
			continue
		}
		if k.Asc {
			return c < 0
		}
		return c > 0
	}
	return a.DocID < b.DocID
}

// heapBuf is a container/heap max-heap over "worst kept" element, so the
// root is always the first row to evict when a new candidate beats it.
type heapBuf struct {
	items []SearchResult
	worse func(a, b *SearchResult) bool // true if a should be evicted before b
}

func (h *heapBuf) Len() int { return len(h.items) }
func (h *heapBuf) Less(i, j int) bool {
	return h.worse(&h.items[i], &h.items[j])
}
func (h *heapBuf) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *heapBuf) Push(x any)    { h.items = append(h.items, x.(SearchResult)) }
func (h *heapBuf) Pop() any {
	old := h.items
	n := len(old)
	last := old[n-1]
	h.items = old[:n-1]
	return last
}

func (p *SorterProcessor) fill(ctx context.Context) (Status, error) {
	if p.max <= 0 {
		var all []SearchResult
		for {
			var sr SearchResult
			status, err := p.upstream.Next(ctx, &sr)
			if status == StatusEof {
				break
			}
			if status != StatusOk {
				return status, err
			}
			all = append(all, sr)
		}
		sortSlice(all, p.less)
		p.sorted = all
		p.filled = true
		return StatusOk, nil
	}

	// worse(a,b): a is a weaker row than b, i.e. b "less" (ranks better)
	// than a under p.less — the heap root is the weakest kept row.
	h := &heapBuf{worse: func(a, b *SearchResult) bool { return p.less(b, a) }}
	heap.Init(h)
	for {
		var sr SearchResult
		status, err := p.upstream.Next(ctx, &sr)
		if status == StatusEof {
			break
		}
		if status != StatusOk {
			return status, err
		}
		if h.Len() < p.max {
			heap.Push(h, sr)
			continue
		}
		if p.less(&sr, &h.items[0]) {
			heap.Pop(h)
			heap.Push(h, sr)
		}
	}
	out := make([]SearchResult, h.Len())
	copy(out, h.items)
	sortSlice(out, p.less)
	p.sorted = out
	p.filled = true
	return StatusOk, nil
}

func sortSlice(s []SearchResult, less func(a, b *SearchResult) bool) {
	sort.Slice(s, func(i, j int) bool { return less(&s[i], &s[j]) })
}

func (p *SorterProcessor) Next(ctx context.Context, out *SearchResult) (Status, error) {
	if proceed, status, err := CheckDeadline(ctx); !proceed {
		return status, err
	}
	if !p.filled {
		if status, err := p.fill(ctx); status != StatusOk {
			return status, err
		}
	}
	if p.pos >= len(p.sorted) {
		return StatusEof, nil
	}
	*out = p.sorted[p.pos]
	p.pos++
	return StatusOk, nil
}

func (p *SorterProcessor) Free() { p.upstream.Free() }
