// Package service 组合目录、迁移、扫描与对账，提供 CLI 与 HTTP 共用的业务用例.
//
// Runtime 在进程内只构建一次：校验迁移台账、确定身份方案、打开目录存储.
// 上传后端按需懒加载，query/migrate 等只读命令不需要 Notion 凭据.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/yeisme/yukumo/pkg/cache"
	"github.com/yeisme/yukumo/pkg/configs"
	"github.com/yeisme/yukumo/pkg/internal/catalog"
	"github.com/yeisme/yukumo/pkg/internal/identity"
	"github.com/yeisme/yukumo/pkg/internal/migrate"
	"github.com/yeisme/yukumo/pkg/internal/scan"
	"github.com/yeisme/yukumo/pkg/internal/storage"
	"github.com/yeisme/yukumo/pkg/internal/upload"
	"github.com/yeisme/yukumo/pkg/internal/upload/notion"
	"github.com/yeisme/yukumo/pkg/internal/upload/objectstore"
	nlog "github.com/yeisme/yukumo/pkg/log"
	"github.com/yeisme/yukumo/pkg/metrics"
	"github.com/yeisme/yukumo/pkg/queue"
)

// ErrNoBackend 上传后端未配置或无法创建.
var ErrNoBackend = errors.New("upload backend not available")

// Backend 同时支持上传与下载的后端.
type Backend interface {
	upload.Uploader
	upload.Downloader
}

// BackendFactory 按配置创建上传后端.
type BackendFactory func(cfg *configs.AppConfig, mgr *storage.Manager) (Backend, error)

// DefaultBackendFactory 按 upload.backend 选择 Notion 或 S3.
func DefaultBackendFactory(cfg *configs.AppConfig, mgr *storage.Manager) (Backend, error) {
	switch cfg.Upload.Backend {
	case configs.UploadBackendS3:
		if mgr == nil || mgr.S3 == nil {
			return nil, fmt.Errorf("%w: s3 client not initialized", ErrNoBackend)
		}

		return objectstore.New(mgr.S3), nil
	case configs.UploadBackendNotion, "":
		client, err := notion.NewClient(cfg.Notion)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoBackend, err)
		}

		up, err := notion.NewUploader(client, cfg.Notion.PageID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoBackend, err)
		}

		return up, nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrNoBackend, cfg.Upload.Backend)
	}
}

// Option 配置 Runtime.
type Option func(*Runtime)

// WithBackendFactory 替换上传后端，测试中使用.
func WithBackendFactory(f BackendFactory) Option {
	return func(r *Runtime) { r.factory = f }
}

// WithPublisher 指定事件发布者，默认使用 storage.Manager 的 MQ.
func WithPublisher(p queue.Publisher) Option {
	return func(r *Runtime) { r.publisher = p }
}

// Runtime 一个进程内共享的组件.
type Runtime struct {
	Config   *configs.AppConfig
	Storage  *storage.Manager
	Migrator *migrate.Manager
	Resolver *identity.Resolver
	Store    *catalog.Store
	Scanner  *scan.Scanner
	Events   *queue.Emitter
	// Peers groupcache 节点协议处理器，未配置节点时为 nil
	Peers http.Handler

	// SchemaVersion 打开时的 schema 版本
	SchemaVersion int

	factory   BackendFactory
	publisher queue.Publisher
	logger    *zerolog.Logger

	// batchMu 串行化同一进程内的批次，watch、定时任务与 HTTP 可能同时触发
	batchMu sync.Mutex

	backendOnce sync.Once
	backend     Backend
	guard       *upload.Guard
	backendErr  error
}

// NewMigrator 创建迁移管理器，成功的迁移会计入指标并发布事件.
func NewMigrator(db *gorm.DB, cfg *configs.AppConfig, events *queue.Emitter) (*migrate.Manager, error) {
	policy, err := migrate.ParseCollisionPolicy(cfg.Sync.CollisionPolicy)
	if err != nil {
		return nil, err
	}

	return migrate.NewManager(db,
		migrate.WithCollisionPolicy(policy),
		migrate.WithOnApplied(func(ctx context.Context, m migrate.Migration, took time.Duration) {
			metrics.MigrationApplied()
			events.MigrationApplied(ctx, queue.MigrationAppliedPayload{
				Version:    m.Version,
				Name:       m.Name,
				DurationMS: took.Milliseconds(),
			})
		}),
	), nil
}

// NewEmitter 使用 mgr 的 MQ 创建事件发布器，MQ 未启用时返回的发布器什么也不做.
func NewEmitter(cfg *configs.AppConfig, mgr *storage.Manager) *queue.Emitter {
	var pub queue.Publisher
	if mgr != nil && mgr.MQ != nil {
		pub = mgr.MQ
	}

	return queue.NewEmitter(pub, cfg.Events)
}

// Open 校验（或应用）迁移并打开目录.台账不连续时返回 *migrate.MigrationGapError，
// 身份方案与 schema 版本不符时返回 identity.ErrSchemeMismatch.
func Open(ctx context.Context, cfg *configs.AppConfig, mgr *storage.Manager, opts ...Option) (*Runtime, error) {
	if mgr == nil || mgr.DB == nil {
		return nil, errors.New("service: storage manager with db is required")
	}

	r := &Runtime{
		Config:  cfg,
		Storage: mgr,
		factory: DefaultBackendFactory,
		logger:  nlog.Component("service"),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.publisher != nil {
		r.Events = queue.NewEmitter(r.publisher, cfg.Events)
	} else {
		r.Events = NewEmitter(cfg, mgr)
	}

	migrator, err := NewMigrator(mgr.DB.GetDB(), cfg, r.Events)
	if err != nil {
		return nil, err
	}

	r.Migrator = migrator

	if cfg.Sync.AutoMigrate {
		if _, err := migrator.Up(ctx); err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	} else if err := migrator.Verify(ctx); err != nil {
		return nil, fmt.Errorf("verify migrations: %w", err)
	}

	version, err := migrator.Current(ctx)
	if err != nil {
		return nil, err
	}

	if version == 0 {
		return nil, errors.New("catalog schema not initialized: run `yukumo migrate up`")
	}

	r.SchemaVersion = version

	scheme, err := ResolveScheme(cfg.Sync.IdentityScheme, version)
	if err != nil {
		return nil, err
	}

	staleness, err := identity.ParseStaleness(cfg.Sync.Staleness)
	if err != nil {
		return nil, err
	}

	r.Resolver = identity.NewResolver(scheme, staleness)

	r.Store, err = catalog.New(mgr.DB.GetDB(), r.Resolver, catalog.WithPageSize(cfg.Sync.ScanPageSize))
	if err != nil {
		return nil, err
	}

	scanOpts := scan.Options{
		Recursive:  cfg.Sync.Recursive,
		SkipHidden: cfg.Sync.SkipHidden,
		Hash:       staleness == identity.StalenessHash,
		CacheTTL:   cfg.Sync.FingerprintCacheTTL,
	}

	switch {
	case cfg.KV.Type == configs.KVTypeGroupcache:
		gc := cfg.KV.Groupcache
		r.Scanner = scan.NewWithGroup(scan.Group(gc.CacheBytes), scanOpts)

		if len(gc.Peers) > 0 {
			r.Peers = scan.Peers(gc.Self, gc.Peers...)
		}
	case mgr.KV != nil:
		r.Scanner = scan.New(cache.NewCache(mgr.KV, cache.WithLogger(nlog.Component("cache"))), scanOpts)
	default:
		r.Scanner = scan.New(nil, scanOpts)
	}

	r.logger.Info().
		Int("schema_version", version).
		Str("scheme", scheme.String()).
		Str("staleness", string(staleness)).
		Bool("legacy_layout", r.Store.Legacy()).
		Msg("catalog opened")

	return r, nil
}

// ResolveScheme 把配置值转换为身份方案，auto 按 schema 版本推导，并检查二者一致.
func ResolveScheme(configured string, version int) (identity.Scheme, error) {
	scheme, explicit, err := identity.ParseScheme(configured)
	if err != nil {
		return 0, err
	}

	if !explicit {
		scheme = identity.SchemeForVersion(version)
	}

	if err := scheme.CheckSchema(version); err != nil {
		return 0, err
	}

	return scheme, nil
}

// Backend 懒加载上传后端.
func (r *Runtime) Backend() (Backend, error) {
	r.backendOnce.Do(func() {
		r.backend, r.backendErr = r.factory(r.Config, r.Storage)
		if r.backendErr == nil {
			r.guard = upload.NewGuard(r.backend, r.Config.Upload.RateLimit, r.Config.Upload.CircuitBreaker)
		}
	})

	return r.backend, r.backendErr
}

// Uploader 返回带限流与熔断的上传器.
func (r *Runtime) Uploader() (*upload.Guard, error) {
	if _, err := r.Backend(); err != nil {
		return nil, err
	}

	return r.guard, nil
}
