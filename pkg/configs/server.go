package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPort         = 8080        // 监听端口
	DefaultHost         = "127.0.0.1" // 监听地址
	DefaultReloadConfig = false       // 是否启用配置热重载
	DefaultDebug        = false       // 是否启用调试模式
	DefaultTimeout      = 30          // 超时时间，单位秒
)

type (
	// ServerConfig 服务器配置（serve 子命令使用）.
	ServerConfig struct {
		Port         int    `mapstructure:"port"          rule:"min=1,max=65535"`
		Host         string `mapstructure:"host"          rule:"ip"`
		ReloadConfig bool   `mapstructure:"reload_config"`
		Debug        bool   `mapstructure:"debug"`
		Timeout      int    `mapstructure:"timeout"       rule:"min=1,max=300"`
		// CORSOrigins 允许跨域的来源，包含 "*" 时允许任意来源
		CORSOrigins []string `mapstructure:"cors_origins"`

		CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
		RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	}
)

// GetTimeoutDuration 返回超时时间作为time.Duration.
func (s *ServerConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// setDefaults 设置服务器配置的默认值.
func (s *ServerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.host", DefaultHost)
	v.SetDefault("server.reload_config", DefaultReloadConfig)
	v.SetDefault("server.debug", DefaultDebug)
	v.SetDefault("server.timeout", DefaultTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	s.CircuitBreaker.setDefaults(v, "server.circuit_breaker")
	s.RateLimit.setDefaults(v, "server.rate_limit")
	// HTTP 接口默认按 IP 限流，且比上传宽松
	v.SetDefault("server.rate_limit.rps", 50.0)
	v.SetDefault("server.rate_limit.burst", 100)
	v.SetDefault("server.rate_limit.key", "ip")
	v.SetDefault("server.circuit_breaker.enabled", false)
}
