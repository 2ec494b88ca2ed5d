package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"boardsync/domain"
)

// RedisDeduper stores confirmed move results in Redis keyed by move token so
// all instances can answer a retried request with the original placement.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(boardID, token string) string {
	return fmt.Sprintf("move:%s:%s", boardID, token)
}

// Lookup returns the stored result for a token, if any.
func (r *RedisDeduper) Lookup(ctx context.Context, boardID, token string) (domain.MoveResult, bool, error) {
	data, err := r.client.Get(ctx, r.key(boardID, token)).Bytes()
	if err == redis.Nil {
		return domain.MoveResult{}, false, nil
	}
	if err != nil {
		return domain.MoveResult{}, false, err
	}
	var res domain.MoveResult
	if err := json.Unmarshal(data, &res); err != nil {
		return domain.MoveResult{}, false, err
	}
	return res, true, nil
}

// Record stores a confirmed move's result under its token.
func (r *RedisDeduper) Record(ctx context.Context, boardID, token string, res domain.MoveResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(boardID, token), data, r.ttl).Err()
}
