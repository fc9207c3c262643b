package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/yukumo/pkg/context"
	"github.com/yeisme/yukumo/pkg/internal/service"
	"github.com/yeisme/yukumo/pkg/scheduler"
)

// RuntimeMiddleware 把运行时、存储管理器与调度器注入请求上下文.sched 可以为 nil.
func RuntimeMiddleware(rt *service.Runtime, sched *scheduler.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithRuntime(c.Request.Context(), rt)
		if sched != nil {
			ctx = context.WithScheduler(ctx, sched)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
