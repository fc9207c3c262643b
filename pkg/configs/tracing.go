package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultTracingExporter  = "otlp-http"
	DefaultTracingEndpoint  = "http://localhost:4318"
	DefaultMaxBatchSize     = 512
	DefaultMaxQueueSize     = 2048
	DefaultTracingBatchWait = 5 * time.Second
)

// TracingConfig OpenTelemetry 追踪配置.对账批次、单个文件、上传、迁移与 HTTP 请求各有一个 span.
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	ServiceName    string  `mapstructure:"service_name"    rule:"required_if=Enabled true"`
	ServiceVersion string  `mapstructure:"service_version"`
	ExporterType   string  `mapstructure:"exporter_type"   rule:"oneof=otlp-http otlp-grpc zipkin"`
	Endpoint       string  `mapstructure:"endpoint"        rule:"required_if=Enabled true"`
	SampleRate     float64 `mapstructure:"sample_rate"     rule:"min=0,max=1"`
	// 批量导出参数，0 使用 SDK 默认值
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	MaxBatchSize int           `mapstructure:"max_batch_size" rule:"min=0"`
	MaxQueueSize int           `mapstructure:"max_queue_size" rule:"min=0"`
	// ResourceLabels 附加的资源属性，例如 deployment.environment、host.name
	ResourceLabels map[string]string `mapstructure:"resource_labels"`
}

func (c *TracingConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", AppName)
	v.SetDefault("tracing.service_version", AppVersion)
	v.SetDefault("tracing.exporter_type", DefaultTracingExporter)
	v.SetDefault("tracing.endpoint", DefaultTracingEndpoint)
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.batch_timeout", DefaultTracingBatchWait)
	v.SetDefault("tracing.max_batch_size", DefaultMaxBatchSize)
	v.SetDefault("tracing.max_queue_size", DefaultMaxQueueSize)
	v.SetDefault("tracing.resource_labels", map[string]string{})
}
