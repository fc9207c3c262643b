// Package cache 在 KV 存储之上提供带 TTL 的泛型 JSON 缓存，目前用于文件内容指纹.
//
//	c := cache.NewCache(kvStore, cache.WithLogger(&logger))
//
//	fp, err := cache.Load(ctx, c, "fp:1f2e", 24*time.Hour, computeFingerprint, nil)
//
// 缓存只是加速：Load 在缓存读写出错时直接使用 fill 的结果，只有 fill 的错误会返回.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"github.com/yeisme/yukumo/pkg/internal/storage/kv"
)

// Cache 基于KV存储的缓存实现.
type Cache struct {
	store  kv.KVStore
	logger *zerolog.Logger
}

// Option 缓存选项.
type Option func(*Cache)

// WithLogger 记录被忽略的缓存错误（debug 级别）.
func WithLogger(l *zerolog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCache 创建一个新的缓存实例.
func NewCache(store kv.KVStore, opts ...Option) *Cache {
	nop := zerolog.Nop()
	c := &Cache{store: store, logger: &nop}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get 读取并解码 key 对应的值.未命中时 IsMiss(err) 为 true.
func Get[T any](ctx context.Context, c *Cache, key string) (T, error) {
	var value T

	data, err := c.store.Get(ctx, key)
	if err != nil {
		return value, err
	}

	if err := sonic.Unmarshal(data, &value); err != nil {
		var zero T
		return zero, fmt.Errorf("cache %s: decode: %w", key, err)
	}

	return value, nil
}

// Set 编码并写入，ttl<=0 表示不过期.
func Set[T any](ctx context.Context, c *Cache, key string, value T, ttl time.Duration) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache %s: encode: %w", key, err)
	}

	return c.store.Set(ctx, key, data, ttl)
}

// Load 读穿缓存：命中且 usable（为 nil 时视为总是可用）接受时直接返回，
// 否则调用 fill 并回写.
func Load[T any](ctx context.Context, c *Cache, key string, ttl time.Duration,
	fill func() (T, error), usable func(T) bool,
) (T, error) {
	v, err := Get[T](ctx, c, key)

	switch {
	case err == nil && (usable == nil || usable(v)):
		return v, nil
	case err != nil && !IsMiss(err):
		c.logger.Debug().Err(err).Str("key", key).Msg("cache read failed")
	}

	v, err = fill()
	if err != nil {
		return v, err
	}

	if err := Set(ctx, c, key, v, ttl); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}

	return v, nil
}

// IsMiss 判断错误是否为缓存未命中.
func IsMiss(err error) bool {
	return errors.Is(err, kv.ErrNotFound)
}

// Purge 删除匹配 pattern（glob）的键，返回删除的数量.
func (c *Cache) Purge(ctx context.Context, pattern string) (int, error) {
	keys, err := c.store.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}

	var errs []error

	n := 0

	for _, key := range keys {
		if err := c.store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
			continue
		}

		n++
	}

	return n, errors.Join(errs...)
}
