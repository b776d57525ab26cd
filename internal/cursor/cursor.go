// Package cursor implements the Cursor registry (C11 in SPEC_FULL.md
// §4.6.9 and §2.2): pausing a pipeline mid-flight and resuming it on a
// CURSOR READ, with a MAXIDLE TTL reaper.
package cursor

import (
	"context"
	"sync"
	"time"

	"aggsearch/internal/qerror"
	"aggsearch/internal/rp"
)

// entry is one parked pipeline.
type entry struct {
	mu         sync.Mutex
	index      string
	tail       rp.Processor
	lastAccess time.Time
	maxIdle    time.Duration
}

// Registry is a per-process table of parked pipelines keyed by a
// monotonic cursorId, never reused while the process lives.
type Registry struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[uint64]*entry

	reapOnce sync.Once
	stop     chan struct{}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[uint64]*entry)}
}

// Register parks tail under a new cursorId for index, with the given
// MAXIDLE. maxIdle <= 0 means "never reap".
func (r *Registry) Register(index string, tail rp.Processor, maxIdle time.Duration) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	id := r.nextID
	r.entries[id] = &entry{index: index, tail: tail, lastAccess: time.Now(), maxIdle: maxIdle}
	return id
}

// Read runs the cursor for up to count results. It returns the rows
// produced, the cursorId to hand back to the client (0 once the pipeline
// is drained and disposed), and an error. A cursor being read while
// marked for reap wins the race: reading resets its idle clock before the
// reaper can act on it (spec.md §5 "Cancellation").
func (r *Registry) Read(ctx context.Context, index string, id uint64, count int) ([]rp.SearchResult, uint64, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok || e.index != index {
		return nil, 0, qerror.New(qerror.NoCursor, "no such cursor")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastAccess = time.Now()

	var out []rp.SearchResult
	for count <= 0 || len(out) < count {
		var sr rp.SearchResult
		status, err := e.tail.Next(ctx, &sr)
		if status == rp.StatusEof {
			r.dispose(id)
			return out, 0, nil
		}
		if status != rp.StatusOk {
			r.dispose(id)
			return out, 0, err
		}
		out = append(out, sr)
	}
	e.lastAccess = time.Now()
	return out, id, nil
}

// Del explicitly closes a cursor, freeing its pipeline chain.
func (r *Registry) Del(index string, id uint64) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	r.mu.Unlock()
	if !ok || e.index != index {
		return qerror.New(qerror.NoCursor, "no such cursor")
	}
	r.dispose(id)
	return nil
}

func (r *Registry) dispose(id uint64) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()
	if ok {
		rp.FreeChain(e.tail)
	}
}

// minMaxIdle returns the smallest non-zero maxIdle across all live
// entries, or fallback if there are none (spec.md §5: "reaper samples the
// table every min(maxIdle)/4; no per-cursor timers").
func (r *Registry) minMaxIdle(fallback time.Duration) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	min := time.Duration(0)
	for _, e := range r.entries {
		if e.maxIdle <= 0 {
			continue
		}
		if min == 0 || e.maxIdle < min {
			min = e.maxIdle
		}
	}
	if min == 0 {
		return fallback
	}
	return min
}

// reapOnceNow evicts every entry idle longer than its own maxIdle.
func (r *Registry) reapOnceNow() {
	now := time.Now()
	r.mu.Lock()
	var expired []uint64
	for id, e := range r.entries {
		e.mu.Lock()
		idle := now.Sub(e.lastAccess)
		expiredEntry := e.maxIdle > 0 && idle > e.maxIdle
		e.mu.Unlock()
		if expiredEntry {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()
	for _, id := range expired {
		r.dispose(id)
	}
}

// StartReaper launches the single background sampler thread, sampling at
// min(maxIdle)/4 (recomputed every tick since cursors come and go),
// clamped to [minInterval, maxInterval]. Calling it more than once is a
// no-op; Stop halts it.
func (r *Registry) StartReaper(defaultInterval, minInterval, maxInterval time.Duration) {
	r.reapOnce.Do(func() {
		r.stop = make(chan struct{})
		go func() {
			for {
				interval := r.minMaxIdle(defaultInterval) / 4
				if interval < minInterval {
					interval = minInterval
				}
				if interval > maxInterval {
					interval = maxInterval
				}
				select {
				case <-time.After(interval):
					r.reapOnceNow()
				case <-r.stop:
					return
				}
			}
		}()
	})
}

// Stop halts the reaper goroutine, if running.
func (r *Registry) Stop() {
	if r.stop != nil {
		select {
		case <-r.stop:
		default:
			close(r.stop)
		}
	}
}

// ActiveCount reports the number of parked cursors.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
