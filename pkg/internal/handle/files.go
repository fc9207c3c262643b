package handle

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/yukumo/pkg/internal/model"
	"github.com/yeisme/yukumo/pkg/internal/service"
	"github.com/yeisme/yukumo/pkg/internal/types"
)

const defaultListLimit = 100

// ListFiles 按文件名前缀（或子串）查询目录.
func ListFiles(c *gin.Context) {
	rt := runtime(c)
	if rt == nil {
		return
	}

	var q types.ListFilesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	svc := service.NewCatalogService(rt)

	var (
		recs []model.FileRecord
		err  error
	)

	if q.Prefix == "" && !q.Contains {
		limit := q.Limit
		if limit == 0 {
			limit = defaultListLimit
		}

		recs, err = svc.List(c.Request.Context(), limit)
	} else {
		recs, err = svc.Query(c.Request.Context(), q.Prefix, q.Contains)
		if err == nil && q.Limit > 0 && len(recs) > q.Limit {
			recs = recs[:q.Limit]
		}
	}

	if err != nil {
		fail(c, err)
		return
	}

	if recs == nil {
		recs = []model.FileRecord{}
	}

	c.JSON(http.StatusOK, types.ListFilesResponse{Files: recs, Total: len(recs)})
}

// GetFile 按完整文件名返回记录.
func GetFile(c *gin.Context) {
	rt := runtime(c)
	if rt == nil {
		return
	}

	rec, err := service.NewCatalogService(rt).Find(c.Request.Context(), c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// DownloadFile 通过上传后端取回内容并写入响应.
func DownloadFile(c *gin.Context) {
	rt := runtime(c)
	if rt == nil {
		return
	}

	rec, err := service.NewCatalogService(rt).Find(c.Request.Context(), c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}

	backend, err := rt.Backend()
	if err != nil {
		fail(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+strconv.Quote(rec.FileName))
	c.Header("Content-Type", "application/octet-stream")

	if rec.Size > 0 {
		c.Header("Content-Length", strconv.FormatInt(rec.Size, 10))
	}

	c.Status(http.StatusOK)

	if _, err := backend.Download(c.Request.Context(), rec.Placement, c.Writer); err != nil {
		// 响应头已发出，只能记录错误
		_ = c.Error(err)
	}
}

// CatalogInfo 返回 schema 版本、身份方案与记录数.
func CatalogInfo(c *gin.Context) {
	rt := runtime(c)
	if rt == nil {
		return
	}

	n, err := service.NewCatalogService(rt).Count(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, types.CatalogInfo{
		SchemaVersion:  rt.SchemaVersion,
		IdentityScheme: rt.Resolver.Scheme().String(),
		Staleness:      rt.Config.Sync.Staleness,
		LegacyLayout:   rt.Store.Legacy(),
		Records:        n,
	})
}

// MigrationStatus 返回迁移台账.
func MigrationStatus(c *gin.Context) {
	rt := runtime(c)
	if rt == nil {
		return
	}

	st, err := service.Status(c.Request.Context(), rt.Migrator)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, st)
}
