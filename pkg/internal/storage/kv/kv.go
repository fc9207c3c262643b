// Package kv 提供用于键值存储的接口和实现，目前用于缓存内容指纹.
package kv

import (
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"time"

	"github.com/yeisme/yukumo/pkg/configs"
)

// ErrNotFound 键不存在或已过期.
var ErrNotFound = errors.New("key not found")

// Client 带后端类型的 KVStore.
type Client struct {
	KVStore

	Type configs.KVType
}

// KVStore 定义键值存储接口.
type KVStore interface {
	// Get 获取键的值，不存在时返回包装了 ErrNotFound 的错误.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set 设置键的值，ttl<=0 表示不过期.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// Keys 获取匹配 glob 模式的键，空模式表示全部.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Close() error
}

// Factory 按配置创建 KVStore.
type Factory func(ctx context.Context, cfg configs.KVConfig) (KVStore, error)

var factories = map[configs.KVType]Factory{}

// RegisterKVFactory 注册后端，由各实现文件的 init 调用.
func RegisterKVFactory(t configs.KVType, f Factory) {
	factories[t] = f
}

// GetRegisteredKVTypes 返回已编译进来的 KV 类型，按名称排序.
func GetRegisteredKVTypes() []configs.KVType {
	types := make([]configs.KVType, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}

	slices.Sort(types)

	return types
}

// NewKVClient 按 cfg.Type 创建 KV 客户端.
func NewKVClient(ctx context.Context, cfg configs.KVConfig) (*Client, error) {
	f, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported kv type: %s (registered: %v)", cfg.Type, GetRegisteredKVTypes())
	}

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	store, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init kv (%s): %w", cfg.Type, err)
	}

	return &Client{KVStore: store, Type: cfg.Type}, nil
}

// matchPattern 使用 glob 语义匹配键，与 Redis SCAN MATCH 一致.
func matchPattern(pattern, key string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}

	ok, err := path.Match(pattern, key)

	return err == nil && ok
}

func notFound(key string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, key)
}
