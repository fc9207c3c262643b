package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultIdentityScheme      = "auto"          // 根据 schema 版本推导
	DefaultStaleness           = "hash"          // 优先比较内容哈希
	DefaultCollisionPolicy     = "keep-latest"   // V1→V2 重键冲突策略
	DefaultSyncWorkers         = 4               // 并发处理的文件组数
	DefaultUploadTimeout       = 5 * time.Minute // 单次上传超时
	DefaultStoreTimeout        = 30 * time.Second
	DefaultFingerprintCacheTTL = 24 * time.Hour
	DefaultScanPageSize        = 500
)

// SyncConfig 同步（对账）配置.
type SyncConfig struct {
	// IdentityScheme auto | v1（远端三元组） | v2（文件名）
	IdentityScheme string `mapstructure:"identity_scheme" rule:"oneof=auto v1 v2"`
	// Staleness hash | mtime
	Staleness       string `mapstructure:"staleness"        rule:"oneof=hash mtime"`
	CollisionPolicy string `mapstructure:"collision_policy" rule:"oneof=keep-latest fail"`
	Workers         int    `mapstructure:"workers"          rule:"min=1,max=64"`
	// DedupByKey 同批次同键的后续文件直接失败，而不是按输入顺序覆盖
	DedupByKey    bool          `mapstructure:"dedup_by_key"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout"`
	StoreTimeout  time.Duration `mapstructure:"store_timeout"`
	// AutoMigrate 启动时自动执行待处理迁移，否则只校验
	AutoMigrate         bool          `mapstructure:"auto_migrate"`
	Roots               []string      `mapstructure:"roots"`
	Recursive           bool          `mapstructure:"recursive"`
	SkipHidden          bool          `mapstructure:"skip_hidden"`
	FingerprintCacheTTL time.Duration `mapstructure:"fingerprint_cache_ttl"`
	ScanPageSize        int           `mapstructure:"scan_page_size"   rule:"min=1"`
}

func (c *SyncConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("sync.identity_scheme", DefaultIdentityScheme)
	v.SetDefault("sync.staleness", DefaultStaleness)
	v.SetDefault("sync.collision_policy", DefaultCollisionPolicy)
	v.SetDefault("sync.workers", DefaultSyncWorkers)
	v.SetDefault("sync.dedup_by_key", false)
	v.SetDefault("sync.upload_timeout", DefaultUploadTimeout)
	v.SetDefault("sync.store_timeout", DefaultStoreTimeout)
	v.SetDefault("sync.auto_migrate", true)
	v.SetDefault("sync.roots", []string{})
	v.SetDefault("sync.recursive", true)
	v.SetDefault("sync.skip_hidden", true)
	v.SetDefault("sync.fingerprint_cache_ttl", DefaultFingerprintCacheTTL)
	v.SetDefault("sync.scan_page_size", DefaultScanPageSize)
}
