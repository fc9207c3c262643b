// Package configs 管理应用程序配置，包括数据库、上传后端、同步策略和事件队列的配置信息.
// configs 包支持多种配置格式（YAML、JSON、TOML、dotenv）并启用热重载.
//
// Example:
//
//	import "path/to/configs"
//
//	err := configs.InitConfig("./")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	config := configs.GetConfig()
//	fmt.Println(config.Sync.IdentityScheme)
//
// Example accessing DB config:
//
//	config := configs.GetConfig()
//	dbConfig := config.DB
//	dsn := dbConfig.GetDSN()
//	fmt.Println("DSN:", dsn)
//
// Example accessing Notion config:
//
//	config := configs.GetConfig()
//	pageID := config.Notion.PageID
//	fmt.Println("page:", pageID)
package configs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/yeisme/yukumo/pkg/rule"
)

const (
	// EnvPrefix 环境变量前缀，例如 YUKUMO_DB_HOST.
	EnvPrefix = "YUKUMO"
	// AppName 应用名称.
	AppName = "yukumo"
)

// AppVersion 由构建时 -ldflags 注入.
var AppVersion = "dev"

type (
	// AppConfig 全局应用程序配置.
	AppConfig struct {
		DB        DBConfig        `mapstructure:"db"`        // DBConfig 目录数据库配置
		S3        S3Config        `mapstructure:"s3"`        // S3Config 对象存储配置
		Notion    NotionConfig    `mapstructure:"notion"`    // NotionConfig Notion 上传后端
		Upload    UploadConfig    `mapstructure:"upload"`    // UploadConfig 上传后端选择、熔断与限流
		Sync      SyncConfig      `mapstructure:"sync"`      // SyncConfig 身份方案、过期判断与并发
		KV        KVConfig        `mapstructure:"kv"`        // KVConfig 指纹缓存
		MQ        MQConfig        `mapstructure:"mq"`        // MQConfig 消息队列配置
		Events    EventsConfig    `mapstructure:"events"`    // EventsConfig 事件开关
		Server    ServerConfig    `mapstructure:"server"`    // ServerConfig 其它服务器配置，调试模式、服务器端口等
		Log       LogConfig       `mapstructure:"log"`       // LogConfig 日志相关配置
		Metrics   MetricsConfig   `mapstructure:"metrics"`   // MetricsConfig 监控
		Tracing   TracingConfig   `mapstructure:"tracing"`   // TracingConfig 追踪
		Scheduler SchedulerConfig `mapstructure:"scheduler"` // SchedulerConfig 定时同步
	}
)

var (
	// globalConfig 全局配置实例.
	globalConfig AppConfig
	// appViper 全局 Viper 实例.
	appViper *viper.Viper
)

// legacyConfigNames 兼容旧版工具的配置文件名.
var legacyConfigNames = []string{"yukumo.toml", "Yukumo.toml"}

// InitConfig 加载应用程序配置，支持多种格式(yaml、json、toml、dotenv)并启用热重载.
func InitConfig(path string) error {
	appViper = viper.New()
	// 设置默认值
	setAllDefaults(appViper)

	// 检查path是否是文件
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		// 是文件，使用SetConfigFile，Viper会自动检测类型
		appViper.SetConfigFile(path)
	} else {
		// 是目录，设置配置名和路径
		appViper.SetConfigName("config")
		appViper.AddConfigPath(path)
		appViper.AddConfigPath(path + "/configs")

		if cfg := findConfigFile(path); cfg != "" {
			appViper.SetConfigFile(cfg)
		}
	}

	appViper.SetEnvPrefix(EnvPrefix)
	appViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	appViper.AutomaticEnv()

	// 读取配置；找不到配置文件时使用默认值与环境变量
	if err := appViper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	return loadGlobal(appViper)
}

// LoadFromViper 使用已有 viper 实例加载配置，主要用于测试.
func LoadFromViper(v *viper.Viper) error {
	setAllDefaults(v)

	appViper = v

	return loadGlobal(v)
}

func loadGlobal(v *viper.Viper) error {
	var cfg AppConfig

	// 解析到全局配置
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := rule.ValidateStruct(&cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	globalConfig = cfg

	reloadConfigs(v, globalConfig.Server.ReloadConfig)

	return nil
}

// findConfigFile 在目录中查找 config.* 或旧版 Yukumo.toml.
func findConfigFile(dir string) string {
	exts := []string{"yaml", "yml", "json", "toml", "env", "dotenv"}

	for _, ext := range exts {
		cfg := filepath.Join(dir, "config."+ext)
		if _, err := os.Stat(cfg); err == nil {
			return cfg
		}
	}

	for _, name := range legacyConfigNames {
		cfg := filepath.Join(dir, name)
		if _, err := os.Stat(cfg); err == nil {
			return cfg
		}
	}

	if home, err := os.UserHomeDir(); err == nil {
		for _, name := range legacyConfigNames {
			cfg := filepath.Join(home, name)
			if _, err := os.Stat(cfg); err == nil {
				return cfg
			}
		}
	}

	return ""
}

// setAllDefaults 设置所有配置的默认值.
func setAllDefaults(v *viper.Viper) {
	var (
		serverConfig    ServerConfig
		dbConfig        DBConfig
		s3Config        S3Config
		notionConfig    NotionConfig
		uploadConfig    UploadConfig
		syncConfig      SyncConfig
		kvConfig        KVConfig
		mqConfig        MQConfig
		eventsConfig    EventsConfig
		logConfig       LogConfig
		metricsConfig   MetricsConfig
		tracingConfig   TracingConfig
		schedulerConfig SchedulerConfig
	)

	serverConfig.setDefaults(v)
	dbConfig.setDefaults(v)
	s3Config.setDefaults(v)
	notionConfig.setDefaults(v)
	uploadConfig.setDefaults(v)
	syncConfig.setDefaults(v)
	kvConfig.setDefaults(v)
	mqConfig.setDefaults(v)
	eventsConfig.setDefaults(v)
	logConfig.setDefaults(v)
	metricsConfig.setDefaults(v)
	tracingConfig.setDefaults(v)
	schedulerConfig.setDefaults(v)
}

func reloadConfigs(v *viper.Viper, isHotReload bool) {
	if !isHotReload || v.ConfigFileUsed() == "" {
		return
	}
	// 启用配置热重载
	v.OnConfigChange(func(e fsnotify.Event) {
		fmt.Println("Config file changed:", e.Name)
		fmt.Println("Reloading configuration...")

		var cfg AppConfig
		if err := v.Unmarshal(&cfg); err != nil {
			fmt.Printf("Error reloading config: %v\n", err)
			return
		}

		if err := rule.ValidateStruct(&cfg); err != nil {
			fmt.Printf("Rejected invalid config: %v\n", err)
			return
		}

		globalConfig = cfg
	})
	v.WatchConfig()
}

// GetConfig 返回全局配置实例.
func GetConfig() *AppConfig {
	return &globalConfig
}

func GetViper() *viper.Viper {
	return appViper
}

const redacted = "******"

func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

// Redacted 返回隐藏了令牌、密码与 DSN 的副本，用于打印.
func (c AppConfig) Redacted() AppConfig {
	redact(&c.Notion.TokenV2)
	redact(&c.Notion.FileToken)
	redact(&c.S3.SecretAccessKey)
	redact(&c.DB.DSN)
	redact(&c.DB.Password)
	redact(&c.KV.Redis.Password)
	redact(&c.KV.NATS.Password)
	redact(&c.MQ.NATS.Password)
	redact(&c.MQ.NATS.NKey)
	redact(&c.MQ.Redis.Password)

	return c
}
