// Package context 在请求上下文中传递运行时与调度器，并给日志补上追踪字段.
package context

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/yukumo/pkg/internal/service"
	"github.com/yeisme/yukumo/pkg/internal/storage"
	"github.com/yeisme/yukumo/pkg/scheduler"
)

type (
	runtimeKey   struct{}
	schedulerKey struct{}
)

// WithRuntime 注入运行时.
func WithRuntime(ctx context.Context, rt *service.Runtime) context.Context {
	return context.WithValue(ctx, runtimeKey{}, rt)
}

// GetRuntime 取出运行时，未注入时返回 nil.
func GetRuntime(ctx context.Context) *service.Runtime {
	rt, _ := ctx.Value(runtimeKey{}).(*service.Runtime)

	return rt
}

// GetStorage 取出运行时持有的存储连接.
func GetStorage(ctx context.Context) *storage.Manager {
	if rt := GetRuntime(ctx); rt != nil {
		return rt.Storage
	}

	return nil
}

func WithScheduler(ctx context.Context, sched *scheduler.Scheduler) context.Context {
	return context.WithValue(ctx, schedulerKey{}, sched)
}

// GetScheduler 未启用调度器时返回 nil.
func GetScheduler(ctx context.Context) *scheduler.Scheduler {
	sched, _ := ctx.Value(schedulerKey{}).(*scheduler.Scheduler)

	return sched
}

// WithTraceContext 给 logger 加上当前 span 的 trace_id 与 span_id.
func WithTraceContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}

	return logger.With().
		Str("trace_id", sc.TraceID().String()).
		Str("span_id", sc.SpanID().String()).
		Logger()
}
