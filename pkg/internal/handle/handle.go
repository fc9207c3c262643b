// Package handle 提供 serve 子命令的 HTTP 处理器.
//
// 运行时、存储与调度器由中间件注入请求上下文，处理器通过 pkg/context 取用.
package handle

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	ctxPkg "github.com/yeisme/yukumo/pkg/context"
	"github.com/yeisme/yukumo/pkg/internal/catalog"
	"github.com/yeisme/yukumo/pkg/internal/service"
	"github.com/yeisme/yukumo/pkg/internal/types"
	nlog "github.com/yeisme/yukumo/pkg/log"
)

var errNoRuntime = errors.New("runtime not initialized")

// runtime 取出注入的运行时，缺失时写入 503 并返回 nil.
func runtime(c *gin.Context) *service.Runtime {
	rt := ctxPkg.GetRuntime(c.Request.Context())
	if rt == nil {
		fail(c, errNoRuntime)
	}

	return rt
}

// statusOf 把业务错误映射为 HTTP 状态码.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNoPaths):
		return http.StatusBadRequest
	case errors.Is(err, catalog.ErrStoreUnavailable),
		errors.Is(err, service.ErrNoBackend),
		errors.Is(err, errNoRuntime):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		nlog.Component("http").Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	}

	_ = c.Error(err)
	c.AbortWithStatusJSON(status, types.ErrorResponse{Error: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
}
