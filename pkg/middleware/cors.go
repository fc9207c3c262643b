package middleware

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/yukumo/pkg/configs"
)

// CORSMiddleware CORS中间件.接口只读加一个 POST /sync，不需要携带凭证.
func CORSMiddleware(cfg configs.ServerConfig) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Traceparent", "Tracestate"},
		ExposeHeaders: []string{"X-Trace-Id", "Retry-After", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}

	if cfg.Debug || len(cfg.CORSOrigins) == 0 || slices.Contains(cfg.CORSOrigins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = cfg.CORSOrigins
	}

	return cors.New(config)
}
