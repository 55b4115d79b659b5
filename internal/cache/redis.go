package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vnmchuo/hub-assistant/internal/provider"
)

const redisKeyPrefix = "assistant:cache:"

// RedisStore shares cached replies between instances. Expiry is left to Redis.
// Redis failures degrade to cache misses.
type RedisStore struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger zerolog.Logger
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With().Str("component", "redis_cache").Logger(),
	}
}

func redisKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return redisKeyPrefix + hex.EncodeToString(h[:])
}

func (s *RedisStore) Get(ctx context.Context, key string) (*provider.Response, bool) {
	data, err := s.rdb.Get(ctx, redisKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("cache get failed")
		}
		return nil, false
	}

	var resp provider.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		s.logger.Warn().Err(err).Msg("discarding undecodable cache entry")
		return nil, false
	}
	if resp.Actions == nil {
		resp.Actions = []provider.SuggestedAction{}
	}
	return &resp, true
}

func (s *RedisStore) Set(ctx context.Context, key string, resp *provider.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn().Err(err).Msg("cache encode failed")
		return
	}
	if err := s.rdb.Set(ctx, redisKey(key), data, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("cache set failed")
	}
}
