package handle

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/yukumo/pkg/internal/service"
	"github.com/yeisme/yukumo/pkg/internal/types"
)

// Sync 扫描并对账请求中的路径（为空时使用 sync.roots）.
// 单个文件失败不影响状态码，结果在 outcomes 中逐个给出.
func Sync(c *gin.Context) {
	rt := runtime(c)
	if rt == nil {
		return
	}

	var req types.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}

	res, err := service.NewSyncService(rt).Put(c.Request.Context(), req.Paths, service.PutOptions{
		DryRun:  req.DryRun,
		Workers: req.Workers,
	})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, types.NewSyncResponse(res))
}
