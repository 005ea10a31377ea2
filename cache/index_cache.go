package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"multitrack/core/index"
	"multitrack/logger"
	"multitrack/model"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "multitrack:"

// loadTimeout bounds a shared upstream load, which outlives the caller
// that started it.
const loadTimeout = 15 * time.Second

// IndexCache serves index reads from per-owner Redis snapshots and collapses
// concurrent misses for the same key into one upstream call. With a nil
// client it only collapses.
type IndexCache struct {
	next   index.Index
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

var _ index.Index = (*IndexCache)(nil)

// NewIndexCache wraps next.
func NewIndexCache(next index.Index, client *redis.Client, ttl time.Duration) *IndexCache {
	return &IndexCache{next: next, client: client, ttl: ttl}
}

func publicationsKey(owner string) string { return keyPrefix + "pubs:" + owner }
func profilesKey(address string) string   { return keyPrefix + "profiles:" + address }
func followingKey(address string) string  { return keyPrefix + "following:" + address }

// Publications implements index.Index.
func (c *IndexCache) Publications(ctx context.Context, ownerID string) ([]model.PublicationRecord, error) {
	return cached(ctx, c, publicationsKey(ownerID), func(ctx context.Context) ([]model.PublicationRecord, error) {
		return c.next.Publications(ctx, ownerID)
	})
}

// Profiles implements index.Index.
func (c *IndexCache) Profiles(ctx context.Context, address string) ([]model.Profile, error) {
	return cached(ctx, c, profilesKey(address), func(ctx context.Context) ([]model.Profile, error) {
		return c.next.Profiles(ctx, address)
	})
}

// Following implements index.Index.
func (c *IndexCache) Following(ctx context.Context, address string) ([]model.Profile, error) {
	return cached(ctx, c, followingKey(address), func(ctx context.Context) ([]model.Profile, error) {
		return c.next.Following(ctx, address)
	})
}

// Invalidate drops the owner's publication snapshot so the next read goes
// upstream.
func (c *IndexCache) Invalidate(ctx context.Context, ownerID string) {
	c.invalidate(ctx, publicationsKey(ownerID))
}

// InvalidateFollowing drops the following snapshot of address.
func (c *IndexCache) InvalidateFollowing(ctx context.Context, address string) {
	c.invalidate(ctx, followingKey(address))
}

func (c *IndexCache) invalidate(ctx context.Context, key string) {
	c.group.Forget(key)
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		logger.Warn("[IndexCache] 缓存失效失败", logger.String("key", key), logger.ErrorField(err))
	}
}

func cached[T any](ctx context.Context, c *IndexCache, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	if items, ok := get[T](ctx, c, key); ok {
		return items, nil
	}

	// the load is shared by every caller collapsed onto key, so it must not
	// inherit any one caller's cancellation
	ch := c.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		items, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		set(loadCtx, c, key, items)
		return items, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		items := res.Val.([]T)
		if res.Shared {
			items = append([]T(nil), items...)
		}
		return items, nil
	}
}

// get reads a snapshot. Redis failures are treated as misses after one retry.
func get[T any](ctx context.Context, c *IndexCache, key string) ([]T, bool) {
	if c.client == nil {
		return nil, false
	}

	const maxRetries = 2
	retryDelay := 50 * time.Millisecond
	for attempt := 0; attempt < maxRetries; attempt++ {
		// 重试机制：网络抖动时再读一次
		data, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil, false
		}
		if err != nil {
			if attempt < maxRetries-1 && ctx.Err() == nil {
				time.Sleep(retryDelay)
				retryDelay *= 2
				continue
			}
			logger.Warn("[IndexCache] 读取缓存失败", logger.String("key", key), logger.ErrorField(err))
			return nil, false
		}

		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			logger.Warn("[IndexCache] 缓存数据损坏", logger.String("key", key), logger.ErrorField(err))
			return nil, false
		}
		logger.Debug("[IndexCache] 缓存命中", logger.String("key", key), logger.Int("items", len(items)))
		return items, true
	}
	return nil, false
}

func set[T any](ctx context.Context, c *IndexCache, key string, items []T) {
	if c.client == nil {
		return
	}
	data, err := json.Marshal(items)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warn("[IndexCache] 写入缓存失败", logger.String("key", key), logger.ErrorField(err))
	}
}
