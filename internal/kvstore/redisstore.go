package kvstore

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"aggsearch/internal/value"
)

// RedisDocStore backs DocStore with a Redis hash per document key
// (HMGET/HEXISTS), grounded on the teacher's RedisSkillsCache nil-safe
// method style in internal/skills/redis_cache.go.
type RedisDocStore struct {
	client redis.UniversalClient
}

// NewRedisDocStore wraps an already-constructed client (the caller owns
// its lifecycle — dialing, TLS, auth are config concerns, not this
// package's).
func NewRedisDocStore(client redis.UniversalClient) *RedisDocStore {
	return &RedisDocStore{client: client}
}

// LoadFields fetches fields with one HMGET. HMGET does not tell a missing
// key from a key holding none of the requested fields, so ok reports
// whether at least one requested field is present, and is false for an
// empty fields list.
func (s *RedisDocStore) LoadFields(ctx context.Context, docKey string, fields []string) (map[string]value.Value, bool, error) {
	if s == nil || s.client == nil || len(fields) == 0 {
		return map[string]value.Value{}, false, nil
	}
	vals, err := s.client.HMGet(ctx, docKey, fields...).Result()
	if err != nil {
		log.Debug().Err(err).Str("doc_key", docKey).Msg("kvstore_load_fields_error")
		return nil, false, fmt.Errorf("kvstore: HMGET %s: %w", docKey, err)
	}
	out := make(map[string]value.Value, len(fields))
	anyPresent := false
	for i, f := range fields {
		if i >= len(vals) || vals[i] == nil {
			out[f] = value.Null
			continue
		}
		s, ok := vals[i].(string)
		if !ok {
			out[f] = value.Null
			continue
		}
		anyPresent = true
		out[f] = value.FromArgv([]byte(s))
	}
	return out, anyPresent, nil
}

func (s *RedisDocStore) FieldExists(ctx context.Context, docKey, field string) (bool, error) {
	if s == nil || s.client == nil {
		return false, nil
	}
	n, err := s.client.HExists(ctx, docKey, field).Result()
	if err != nil {
		return false, fmt.Errorf("kvstore: HEXISTS %s %s: %w", docKey, field, err)
	}
	return n, nil
}

var _ DocStore = (*RedisDocStore)(nil)
