// Package router 把 handle 中的处理器绑定到 gin 引擎.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/yukumo/pkg/internal/handle"
)

// APIPrefix 接口前缀.
const APIPrefix = "/api/v1"

// Register 注册全部业务路由：
//
//	GET  /api/v1/health/{db,s3,mq}
//	GET  /api/v1/catalog
//	GET  /api/v1/migrations
//	GET  /api/v1/files?prefix=&contains=&limit=
//	GET  /api/v1/files/:name
//	GET  /api/v1/files/:name/content
//	POST /api/v1/sync
//	GET  /api/v1/scheduler/jobs
//	POST /api/v1/scheduler/jobs/:name/run
func Register(r gin.IRouter) {
	v1 := r.Group(APIPrefix)

	health := v1.Group("/health")
	{
		health.GET("/db", handle.HealthDB)
		health.GET("/s3", handle.HealthS3)
		health.GET("/mq", handle.HealthMQ)
	}

	v1.GET("/catalog", handle.CatalogInfo)
	v1.GET("/migrations", handle.MigrationStatus)

	files := v1.Group("/files")
	{
		files.GET("", handle.ListFiles)
		files.GET("/:name", handle.GetFile)
		files.GET("/:name/content", handle.DownloadFile)
	}

	v1.POST("/sync", handle.Sync)

	jobs := v1.Group("/scheduler/jobs")
	{
		jobs.GET("", handle.SchedulerJobs)
		jobs.POST("/:name/run", handle.SchedulerRunJob)
	}
}
