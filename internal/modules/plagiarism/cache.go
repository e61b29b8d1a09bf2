package plagiarism

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veritext/veritext-backend/internal/platform/logger"
)

// Store caches string-slice lookups (URL snippets, extracted keywords). All
// writes are last-writer-wins and a miss is always safe, so implementations
// never return errors to callers.
type Store interface {
	GetStrings(ctx context.Context, key string) ([]string, bool)
	SetStrings(ctx context.Context, key string, vals []string)
}

// MemoryStore is the default process-local cache.
type MemoryStore struct {
	m sync.Map
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) GetStrings(_ context.Context, key string) ([]string, bool) {
	v, ok := s.m.Load(key)
	if !ok {
		return nil, false
	}
	return v.([]string), true
}

func (s *MemoryStore) SetStrings(_ context.Context, key string, vals []string) {
	s.m.Store(key, vals)
}

// RedisStore shares the cache across replicas. Cache errors degrade to
// misses; the gatherer just refetches.
type RedisStore struct {
	log *logger.Logger
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(baseLog *logger.Logger, rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &RedisStore{
		log: baseLog.With("service", "RedisCache"),
		rdb: rdb,
		ttl: ttl,
	}
}

func (s *RedisStore) GetStrings(ctx context.Context, key string) ([]string, bool) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.log.Warn("Cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	var vals []string
	if err := json.Unmarshal(raw, &vals); err != nil {
		s.log.Warn("Cache entry corrupt, dropping", "key", key, "error", err)
		return nil, false
	}
	return vals, true
}

func (s *RedisStore) SetStrings(ctx context.Context, key string, vals []string) {
	raw, err := json.Marshal(vals)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.log.Warn("Cache write failed", "key", key, "error", err)
	}
}
