package kvstore

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// StaticIterator walks a fixed, pre-ranked (docID, score) slice — used in
// tests and for small in-memory indexes.
type StaticIterator struct {
	ids    []uint64
	scores []float64
	pos    int
}

// NewStaticIterator returns an IndexIterator over ids/scores, already in
// the desired emission order.
func NewStaticIterator(ids []uint64, scores []float64) *StaticIterator {
	return &StaticIterator{ids: ids, scores: scores}
}

func (s *StaticIterator) Next() (uint64, float64, bool) {
	if s.pos >= len(s.ids) {
		return 0, 0, false
	}
	id, sc := s.ids[s.pos], s.scores[s.pos]
	s.pos++
	return id, sc, true
}

func (s *StaticIterator) Close() {}

var _ IndexIterator = (*StaticIterator)(nil)

// RedisSortedSetIterator walks a Redis ZSET (member=docID as decimal
// string, score=rank score) highest-score-first, as a stand-in for the
// real inverted index — building one is out of scope per spec.md §1.
// Results are paged in batches to avoid loading an entire large set.
type RedisSortedSetIterator struct {
	client  redis.UniversalClient
	key     string
	ctx     context.Context
	batch   int
	offset  int64
	buf     []redis.Z
	bufPos  int
	drained bool
}

// NewRedisSortedSetIterator pages through key (a ZSET) in descending
// score order, batch members at a time.
func NewRedisSortedSetIterator(ctx context.Context, client redis.UniversalClient, key string, batch int) *RedisSortedSetIterator {
	if batch <= 0 {
		batch = 256
	}
	return &RedisSortedSetIterator{client: client, key: key, ctx: ctx, batch: batch}
}

func (r *RedisSortedSetIterator) fill() {
	if r.drained {
		r.buf = nil
		return
	}
	stop := r.offset + int64(r.batch) - 1
	zs, err := r.client.ZRevRangeWithScores(r.ctx, r.key, r.offset, stop).Result()
	if err != nil || len(zs) == 0 {
		r.drained = true
		r.buf = nil
		return
	}
	r.buf = zs
	r.bufPos = 0
	r.offset += int64(len(zs))
	if int64(len(zs)) < int64(r.batch) {
		// short read: this page was the last one once consumed
		r.drained = true
	}
}

func (r *RedisSortedSetIterator) Next() (uint64, float64, bool) {
	for r.bufPos >= len(r.buf) {
		if r.drained && len(r.buf) == 0 {
			return 0, 0, false
		}
		r.fill()
		if len(r.buf) == 0 {
			return 0, 0, false
		}
	}
	z := r.buf[r.bufPos]
	r.bufPos++
	member, _ := z.Member.(string)
	return parseDocID(member), z.Score, true
}

func (r *RedisSortedSetIterator) Close() {}

func parseDocID(s string) uint64 {
	var v uint64
	for _, c := range s {
		if c < '0' || c > '9' {
			return v
		}
		v = v*10 + uint64(c-'0')
	}
	return v
}

var _ IndexIterator = (*RedisSortedSetIterator)(nil)
