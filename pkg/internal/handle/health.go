package handle

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	ctxPkg "github.com/yeisme/yukumo/pkg/context"
	"github.com/yeisme/yukumo/pkg/internal/types"
)

const timeout = 2 * time.Second

func health(c *gin.Context, component string, check func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	if err := check(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, types.HealthResponse{Component: component, Status: "unhealthy", Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, types.HealthResponse{Component: component, Status: "ok"})
}

func notInitialized(component string) func(context.Context) error {
	return func(context.Context) error {
		return fmt.Errorf("%s client not initialized", component)
	}
}

// HealthDB 目录数据库健康检查.
func HealthDB(c *gin.Context) {
	mgr := ctxPkg.GetStorage(c.Request.Context())
	if mgr == nil || mgr.DB == nil || mgr.DB.DB == nil {
		health(c, "db", notInitialized("db"))
		return
	}

	health(c, "db", mgr.DB.Ping)
}

// HealthS3 对象存储健康检查，未启用 S3 时返回 503.
func HealthS3(c *gin.Context) {
	mgr := ctxPkg.GetStorage(c.Request.Context())
	if mgr == nil || mgr.S3 == nil || mgr.S3.Client == nil {
		health(c, "s3", notInitialized("s3"))
		return
	}

	health(c, "s3", mgr.S3.HealthCheck)
}

// HealthMQ 事件队列只检查是否已连接，events.enabled=false 时返回 503.
func HealthMQ(c *gin.Context) {
	mgr := ctxPkg.GetStorage(c.Request.Context())
	if mgr == nil || mgr.MQ == nil {
		health(c, "mq", notInitialized("mq"))
		return
	}

	health(c, "mq", func(context.Context) error { return nil })
}
