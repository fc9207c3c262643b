package configs

import (
	"time"

	"github.com/spf13/viper"
)

// UploadBackend 上传后端类型.
type UploadBackend string

const (
	UploadBackendNotion UploadBackend = "notion"
	UploadBackendS3     UploadBackend = "s3"
)

const (
	DefaultUploadBackend = UploadBackendNotion // 默认上传到 Notion

	// 默认熔断器配置.
	DefaultCBEnabled           = true
	DefaultCBFailureRate       = 0.5
	DefaultCBMinRequests       = 10
	DefaultCBIntervalSeconds   = 60
	DefaultCBTimeoutSeconds    = 30
	DefaultCBMaxRequestsInHalf = 2

	// 默认速率限制配置.
	DefaultRateLimitEnabled = true
	DefaultRateLimitRPS     = 3.0
	DefaultRateLimitBurst   = 3
	DefaultRateLimitKey     = "global"
)

// UploadConfig 上传协作方配置.
type UploadConfig struct {
	Backend        UploadBackend        `mapstructure:"backend"         rule:"oneof=notion s3"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
}

// CircuitBreakerConfig 熔断器配置.
type CircuitBreakerConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	FailureRate       float64 `mapstructure:"failure_rate"         rule:"min=0,max=1"` // 连续窗口失败比例阈值 [0,1]
	MinRequests       uint32  `mapstructure:"min_requests"`                            // 进入统计的最小请求数
	IntervalSeconds   int     `mapstructure:"interval_seconds"     rule:"min=0"`       // 滑动窗口统计周期
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"      rule:"min=0"`       // 打开状态持续时间（自动半开）
	MaxRequestsInHalf uint32  `mapstructure:"max_requests_in_half"`                    // 半开状态允许的并发请求数
}

// Interval 返回统计窗口.
func (c CircuitBreakerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Timeout 返回打开状态持续时间.
func (c CircuitBreakerConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RateLimitConfig 速率限制配置.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"   rule:"min=0"` // 每秒允许的请求数
	Burst   int     `mapstructure:"burst" rule:"min=0"` // 突发容量
	// Key 选择限流维度：global（全局）、ip（按客户端IP）、header:Header-Name（按请求头）
	// 仅 HTTP 中间件使用，上传限流总是全局
	Key string `mapstructure:"key"`
}

func (c *UploadConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("upload.backend", DefaultUploadBackend)

	c.CircuitBreaker.setDefaults(v, "upload.circuit_breaker")
	c.RateLimit.setDefaults(v, "upload.rate_limit")
}

func (c *CircuitBreakerConfig) setDefaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".enabled", DefaultCBEnabled)
	v.SetDefault(prefix+".failure_rate", DefaultCBFailureRate)
	v.SetDefault(prefix+".min_requests", DefaultCBMinRequests)
	v.SetDefault(prefix+".interval_seconds", DefaultCBIntervalSeconds)
	v.SetDefault(prefix+".timeout_seconds", DefaultCBTimeoutSeconds)
	v.SetDefault(prefix+".max_requests_in_half", DefaultCBMaxRequestsInHalf)
}

func (c *RateLimitConfig) setDefaults(v *viper.Viper, prefix string) {
	v.SetDefault(prefix+".enabled", DefaultRateLimitEnabled)
	v.SetDefault(prefix+".rps", DefaultRateLimitRPS)
	v.SetDefault(prefix+".burst", DefaultRateLimitBurst)
	v.SetDefault(prefix+".key", DefaultRateLimitKey)
}
