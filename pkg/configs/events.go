package configs

import "github.com/spf13/viper"

// EventsConfig 控制事件发布的开关（全局与分主题）。
type EventsConfig struct {
	Enabled bool              `mapstructure:"enabled"` // 总开关
	File    FileEventsConfig  `mapstructure:"file"`
	Batch   BatchEventsConfig `mapstructure:"batch"`
	// MigrationApplied 迁移成功后发布
	MigrationApplied bool `mapstructure:"migration_applied"`
}

// FileEventsConfig 单文件对账结果事件开关。
type FileEventsConfig struct {
	Uploaded bool `mapstructure:"uploaded"`
	Updated  bool `mapstructure:"updated"`
	Failed   bool `mapstructure:"failed"`
}

// BatchEventsConfig 批次事件开关。
type BatchEventsConfig struct {
	Completed bool `mapstructure:"completed"`
}

func (c *EventsConfig) setDefaults(v *viper.Viper) {
	// 总开关：默认启用事件系统
	v.SetDefault("events.enabled", true)

	v.SetDefault("events.file.uploaded", true)
	v.SetDefault("events.file.updated", true)
	v.SetDefault("events.file.failed", true)

	v.SetDefault("events.batch.completed", true)
	v.SetDefault("events.migration_applied", true)
}
