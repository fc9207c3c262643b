// Package app 组装运行时：存储、目录、调度器与 serve 子命令的 HTTP 服务.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yeisme/yukumo/pkg/configs"
	"github.com/yeisme/yukumo/pkg/internal/jobs"
	"github.com/yeisme/yukumo/pkg/internal/router"
	"github.com/yeisme/yukumo/pkg/internal/scan"
	"github.com/yeisme/yukumo/pkg/internal/service"
	"github.com/yeisme/yukumo/pkg/internal/storage"
	"github.com/yeisme/yukumo/pkg/log"
	"github.com/yeisme/yukumo/pkg/metrics"
	"github.com/yeisme/yukumo/pkg/middleware"
	"github.com/yeisme/yukumo/pkg/scheduler"
)

const shutdownTimeout = 10 * time.Second

// App serve 子命令的应用.
type App struct {
	Engine    *gin.Engine
	Runtime   *service.Runtime
	Scheduler *scheduler.Scheduler
	config    *configs.AppConfig
}

// OpenRuntime 按配置打开存储并校验（或应用）迁移.调用方负责 rt.Storage.Close().
func OpenRuntime(ctx context.Context, cfg *configs.AppConfig) (*service.Runtime, error) {
	mgr, err := storage.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	rt, err := service.Open(ctx, cfg, mgr)
	if err != nil {
		return nil, errors.Join(err, mgr.Close())
	}

	return rt, nil
}

// NewScheduler 注册全量重扫与目录审计任务.scheduler.enabled=false 时返回 nil.
// roots 为空时使用 sync.roots；两者都为空时不注册重扫任务.
func NewScheduler(ctx context.Context, cfg *configs.AppConfig, rt *service.Runtime, roots []string) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.Enabled {
		return nil, nil
	}

	sched, err := scheduler.NewScheduler()
	if err != nil {
		return nil, err
	}

	deps := jobs.Deps{
		Sync:      service.NewSyncService(rt),
		Catalog:   service.NewCatalogService(rt),
		Roots:     roots,
		AuditCron: jobs.CronCatalogAudit,
	}

	if len(roots) > 0 || len(cfg.Sync.Roots) > 0 {
		deps.ResyncCron = cfg.Scheduler.ResyncCron
	}

	if err := jobs.Register(ctx, sched, deps); err != nil {
		return nil, errors.Join(err, sched.Stop())
	}

	return sched, nil
}

// NewApp 创建 serve 应用.配置、日志、追踪与指标已由根命令初始化.
func NewApp(ctx context.Context, cfg *configs.AppConfig) (*App, error) {
	rt, err := OpenRuntime(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sched, err := NewScheduler(ctx, cfg, rt, nil)
	if err != nil {
		return nil, errors.Join(err, rt.Storage.Close())
	}

	l := log.Logger()
	gin.DefaultWriter = log.NewGinWriter(l, zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(l, zerolog.ErrorLevel)

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.GinLoggerMiddleware(),
		middleware.TracingMiddleware(),
		middleware.PrometheusMiddleware(),
		middleware.CORSMiddleware(cfg.Server),
		gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`/content$`})),
		middleware.RateLimitMiddleware(cfg.Server.RateLimit),
		middleware.CircuitBreakerMiddleware(cfg.Server.CircuitBreaker),
		middleware.RuntimeMiddleware(rt, sched),
	)

	router.Register(engine)

	if rt.Peers != nil {
		engine.Any(scan.PeersPath+"*key", gin.WrapH(rt.Peers))
	}

	if err := metrics.StartMetricsServer(cfg.Metrics, engine); err != nil {
		return nil, errors.Join(err, rt.Storage.Close())
	}

	return &App{
		Engine:    engine,
		Runtime:   rt,
		Scheduler: sched,
		config:    cfg,
	}, nil
}

// Run 启动调度器与 HTTP 服务，ctx 结束时优雅关闭.
func (a *App) Run(ctx context.Context) error {
	logger := log.Component("app")

	if a.Scheduler != nil {
		a.Scheduler.Start()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port),
		Handler:           a.Engine,
		ReadHeaderTimeout: a.config.Server.GetTimeoutDuration(),
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http server listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	var runErr error

	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	logger.Info().Msg("shutting down")

	return errors.Join(runErr, srv.Shutdown(shutdownCtx), a.Close())
}

// Close 停止调度器并关闭存储连接.
func (a *App) Close() error {
	var errs []error

	if a.Scheduler != nil {
		errs = append(errs, a.Scheduler.Stop())
	}

	if a.Runtime != nil {
		errs = append(errs, a.Runtime.Storage.Close())
	}

	return errors.Join(errs...)
}
