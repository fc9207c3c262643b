package configs

import "github.com/spf13/viper"

// MetricsConfig Prometheus 指标.serve 挂在 /metrics，其余命令在 endpoint 上单独暴露.
type MetricsConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	Endpoint       string            `mapstructure:"endpoint"`        // 例如 :9464，空则非 serve 命令不暴露
	RuntimeMetrics bool              `mapstructure:"runtime_metrics"` // go/process collector
	Labels         map[string]string `mapstructure:"labels"`          // 附加到所有指标的常量标签
	Pprof          bool              `mapstructure:"pprof"`
}

func (c *MetricsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.endpoint", "")
	v.SetDefault("metrics.runtime_metrics", true)
	v.SetDefault("metrics.labels", map[string]string{"version": AppVersion})
	v.SetDefault("metrics.pprof", false)
}
