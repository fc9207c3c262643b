// Package servicetest 为测试构建基于内存 SQLite 与内存后端的 service.Runtime.
package servicetest

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/spf13/viper"

	"github.com/yeisme/yukumo/pkg/configs"
	"github.com/yeisme/yukumo/pkg/internal/model"
	"github.com/yeisme/yukumo/pkg/internal/service"
	"github.com/yeisme/yukumo/pkg/internal/storage"
	dbc "github.com/yeisme/yukumo/pkg/internal/storage/db"
	"github.com/yeisme/yukumo/pkg/internal/storage/db/dbtest"
	kvc "github.com/yeisme/yukumo/pkg/internal/storage/kv"
	"github.com/yeisme/yukumo/pkg/internal/upload"
)

// MemBackend 把内容保存在内存中，按块 id 取回.
type MemBackend struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemBackend 创建空的内存后端.
func NewMemBackend() *MemBackend {
	return &MemBackend{blobs: map[string][]byte{}}
}

func (b *MemBackend) Name() string { return "mem" }

func (b *MemBackend) Upload(_ context.Context, r io.Reader, dest upload.Destination) (model.Placement, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return model.Placement{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	id := fmt.Sprintf("block-%d", len(b.blobs)+1)
	b.blobs[id] = data

	return model.Placement{FileURL: "mem://" + id + "/" + dest.FileName, SpaceID: "mem", BlockID: id}, nil
}

func (b *MemBackend) Download(_ context.Context, p model.Placement, w io.Writer) (int64, error) {
	b.mu.Lock()
	data, ok := b.blobs[p.BlockID]
	b.mu.Unlock()

	if !ok {
		return 0, fmt.Errorf("no blob %s", p.BlockID)
	}

	n, err := w.Write(data)

	return int64(n), err
}

// Uploads 已上传的次数.
func (b *MemBackend) Uploads() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.blobs)
}

// Config 返回默认配置的副本，关闭限流、熔断与事件.
func Config(t testing.TB) *configs.AppConfig {
	t.Helper()

	if err := configs.LoadFromViper(viper.New()); err != nil {
		t.Fatalf("load config: %v", err)
	}

	cfg := *configs.GetConfig()
	cfg.Upload.RateLimit.Enabled = false
	cfg.Upload.CircuitBreaker.Enabled = false
	cfg.Events.Enabled = false
	cfg.Sync.Workers = 2

	return &cfg
}

// Manager 返回只含内存 SQLite 与内存 KV 的存储管理器.
func Manager(t testing.TB) *storage.Manager {
	t.Helper()

	return &storage.Manager{
		DB: dbc.Wrap(dbtest.Open(t)),
		KV: &kvc.Client{KVStore: kvc.NewMemoryKV(), Type: configs.KVTypeMemory},
	}
}

// Open 使用 cfg（nil 时为 Config 的结果）打开运行时，上传走 backend.
func Open(t testing.TB, cfg *configs.AppConfig, backend service.Backend, opts ...service.Option) *service.Runtime {
	t.Helper()

	if cfg == nil {
		cfg = Config(t)
	}

	opts = append([]service.Option{
		service.WithBackendFactory(func(*configs.AppConfig, *storage.Manager) (service.Backend, error) {
			return backend, nil
		}),
	}, opts...)

	rt, err := service.Open(context.Background(), cfg, Manager(t), opts...)
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}

	return rt
}
