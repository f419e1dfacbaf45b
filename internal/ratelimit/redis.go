package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps a sliding window per key in a sorted set, shared by every
// instance of the service.
type Redis struct {
	client *redis.Client
	config Config
	prefix string
}

func NewRedis(client *redis.Client, config Config) *Redis {
	return &Redis{
		client: client,
		config: config,
		prefix: "momento:ratelimit:",
	}
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l.config.Limit <= 0 {
		return true, 0, nil
	}
	now := time.Now()
	redisKey := l.prefix + key
	windowStart := now.Add(-l.config.Window).UnixNano()
	member := strconv.FormatInt(now.UnixNano(), 10)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart, 10))
	zcard := pipe.ZCard(ctx, redisKey)
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now.UnixNano()), Member: member})
	pipe.Expire(ctx, redisKey, l.config.Window+time.Second)
	oldest := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("rate limit pipeline: %w", err)
	}

	if zcard.Val() < int64(l.config.Limit) {
		return true, 0, nil
	}

	// refused requests must not extend the window
	_ = l.client.ZRem(ctx, redisKey, member).Err()

	retryAfter := l.config.Window
	if z := oldest.Val(); len(z) > 0 {
		freeAt := time.Unix(0, int64(z[0].Score)).Add(l.config.Window)
		retryAfter = time.Until(freeAt)
	}
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return false, retryAfter, nil
}

func (l *Redis) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, l.prefix+key).Err(); err != nil {
		return fmt.Errorf("rate limit reset: %w", err)
	}
	return nil
}
