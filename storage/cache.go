package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"boardsync/domain"
)

type backend interface {
	FetchItems(ctx context.Context, boardID string) ([]domain.Item, error)
	MoveItem(ctx context.Context, req domain.MoveRequest) (domain.MoveResult, error)
}

// Cache wraps a Store with Redis-backed caching of board snapshots. Reads
// fall back to the backing store on any cache failure; writes evict.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchItems(ctx context.Context, boardID string) ([]domain.Item, error) {
	if items, ok := c.loadFromCache(ctx, boardID); ok {
		return items, nil
	}

	items, err := c.base.FetchItems(ctx, boardID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, boardID, items)
	return items, nil
}

func (c *Cache) MoveItem(ctx context.Context, req domain.MoveRequest) (domain.MoveResult, error) {
	res, err := c.base.MoveItem(ctx, req)
	if err != nil {
		return domain.MoveResult{}, err
	}

	c.evict(ctx, req.BoardID)
	return res, nil
}

func (c *Cache) loadFromCache(ctx context.Context, boardID string) ([]domain.Item, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, boardCacheKey(boardID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, boardCacheKey(boardID)).Err()
		}
		return nil, false
	}
	var items []domain.Item
	if err := json.Unmarshal(data, &items); err != nil {
		_ = c.redis.Del(ctx, boardCacheKey(boardID)).Err()
		return nil, false
	}
	return items, true
}

func (c *Cache) store(ctx context.Context, boardID string, items []domain.Item) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, boardCacheKey(boardID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, boardID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, boardCacheKey(boardID)).Result()
}

func boardCacheKey(boardID string) string {
	return "board:" + boardID
}
