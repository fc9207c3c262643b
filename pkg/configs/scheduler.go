package configs

import (
	"time"

	"github.com/spf13/viper"
)

// SchedulerConfig 定时同步配置，watch 与 serve 子命令使用.
type SchedulerConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	ResyncCron string        `mapstructure:"resync_cron"`
	Debounce   time.Duration `mapstructure:"debounce"`
}

func (c *SchedulerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.resync_cron", "*/30 * * * *")
	v.SetDefault("scheduler.debounce", 2*time.Second)
}
