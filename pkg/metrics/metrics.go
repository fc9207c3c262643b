// Package metrics 提供监控指标功能.
// 支持Prometheus标准，收集同步引擎、上传后端、迁移和 HTTP 指标.
//
// Example:
//
//	import "github.com/yeisme/yukumo/pkg/metrics"
//
//	err := metrics.InitMetrics(config.Metrics)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// 记录指标
//	metrics.ObserveOutcome("uploaded_new")
//	metrics.ObserveUpload("notion", 2*time.Second, 1024)
package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yeisme/yukumo/pkg/configs"
	nlog "github.com/yeisme/yukumo/pkg/log"
)

// Namespace 所有业务指标的前缀.
const Namespace = "yukumo"

// 全局指标变量.
var (
	// RequestCounter HTTP请求计数器.
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration HTTP请求持续时间.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// ReconcileOutcomes 按结果统计的文件数.
	ReconcileOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "reconcile_outcomes_total",
			Help:      "Reconciled files by outcome status",
		},
		[]string{"status"},
	)

	// UploadDuration 单次上传耗时.
	UploadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "upload_duration_seconds",
			Help:      "Upload call duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"backend"},
	)

	// UploadBytes 成功上传的字节数.
	UploadBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes uploaded successfully",
		},
		[]string{"backend"},
	)

	// MigrationsApplied 已应用的 schema 迁移数.
	MigrationsApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "migrations_applied_total",
			Help:      "Schema migrations applied by this process",
		},
	)

	// registry Prometheus注册表.
	registry = prometheus.NewRegistry()

	initOnce sync.Once
	initErr  error
)

// InitMetrics 初始化Metrics，重复调用只生效一次.
func InitMetrics(config configs.MetricsConfig) error {
	if !config.Enabled {
		return nil
	}

	initOnce.Do(func() {
		reg := prometheus.WrapRegistererWith(prometheus.Labels(config.Labels), registry)

		// 注册标准收集器
		if config.RuntimeMetrics {
			initErr = errors.Join(
				reg.Register(collectors.NewGoCollector()),
				reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})),
			)
		}

		for _, c := range []prometheus.Collector{
			RequestCounter, RequestDuration,
			ReconcileOutcomes, UploadDuration, UploadBytes, MigrationsApplied,
		} {
			initErr = errors.Join(initErr, reg.Register(c))
		}
	})

	return initErr
}

// ObserveOutcome 记录一个文件的同步结果.
func ObserveOutcome(status string) {
	ReconcileOutcomes.WithLabelValues(status).Inc()
}

// ObserveUpload 记录一次上传调用，bytes 小于 0 表示失败或未知，不计入字节数.
func ObserveUpload(backend string, d time.Duration, bytes int64) {
	UploadDuration.WithLabelValues(backend).Observe(d.Seconds())

	if bytes >= 0 {
		UploadBytes.WithLabelValues(backend).Add(float64(bytes))
	}
}

// MigrationApplied 记录一次成功的迁移.
func MigrationApplied() {
	MigrationsApplied.Inc()
}

// Handler 返回 /metrics 的 http.Handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// StartMetricsServer 在 gin 引擎上挂载 /metrics 与 pprof.
func StartMetricsServer(config configs.MetricsConfig, debugEngine *gin.Engine) error {
	if !config.Enabled {
		return nil
	}

	debugEngine.GET("/metrics", gin.WrapH(Handler()))

	// 如果启用pprof，注册pprof端点
	if config.Pprof {
		debugEngine.GET("/debug/pprof/*any", gin.WrapH(pprofMux()))
	}

	return nil
}

// Serve 在 config.Endpoint 上独立暴露指标，用于 put/watch 等非 serve 命令.
// ctx 结束时关闭服务器.
func Serve(ctx context.Context, config configs.MetricsConfig) error {
	if !config.Enabled || config.Endpoint == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	if config.Pprof {
		mux.Handle("/debug/pprof/", pprofMux())
	}

	srv := &http.Server{
		Addr:              config.Endpoint,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			nlog.Component("metrics").Error().Err(err).Str("addr", config.Endpoint).Msg("metrics server stopped")
		}
	}()

	return nil
}

func pprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return mux
}

// GetRegistry 获取Prometheus注册表.
func GetRegistry() *prometheus.Registry {
	return registry
}
