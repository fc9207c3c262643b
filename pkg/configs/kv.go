package configs

import (
	"time"

	"github.com/spf13/viper"
)

// KVType 指纹缓存后端.
type KVType string

const (
	KVTypeMemory KVType = "memory" // 进程内，重启即失效
	KVTypeRedis  KVType = "redis"
	KVTypeNATS   KVType = "nats" // JetStream KV bucket
	// KVTypeGroupcache 指纹由 groupcache 组读穿计算，可在 serve 节点间共享
	KVTypeGroupcache KVType = "groupcache"
)

// DefaultKVTimeout 建立连接的默认超时.
const DefaultKVTimeout = 3 * time.Second

// KVConfig 键值存储配置，只用于缓存内容指纹，丢失不影响正确性.
type KVConfig struct {
	Type       KVType             `mapstructure:"type"       rule:"oneof=memory redis nats groupcache"`
	Timeout    time.Duration      `mapstructure:"timeout"    rule:"min=0"`
	Redis      RedisKVConfig      `mapstructure:"redis"`
	NATS       NATSKVConfig       `mapstructure:"nats"`
	Groupcache GroupcacheKVConfig `mapstructure:"groupcache"`
}

type RedisKVConfig struct {
	Addr     string `mapstructure:"addr"     rule:"hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"       rule:"min=0,max=15"`
}

type NATSKVConfig struct {
	URL      string `mapstructure:"url"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Bucket   string `mapstructure:"bucket"   rule:"required,excludesall=.*>"`
}

// GroupcacheKVConfig groupcache 指纹组.peers 为空时只在进程内缓存.
type GroupcacheKVConfig struct {
	CacheBytes int64    `mapstructure:"cache_bytes" rule:"min=1"`
	Self       string   `mapstructure:"self"        rule:"required_with=Peers,omitempty,url"`
	Peers      []string `mapstructure:"peers"       rule:"dive,url"`
}

// DefaultGroupcacheBytes 指纹组默认容量.
const DefaultGroupcacheBytes = 64 << 20

// Shared 指纹是否由进程外的存储保存.
func (c KVConfig) Shared() bool {
	return c.Type == KVTypeRedis || c.Type == KVTypeNATS
}

func (c *KVConfig) setDefaults(v *viper.Viper) {
	for key, val := range map[string]any{
		"kv.type":                   KVTypeMemory,
		"kv.timeout":                DefaultKVTimeout,
		"kv.redis.addr":             "localhost:6379",
		"kv.redis.password":         "",
		"kv.redis.db":               0,
		"kv.nats.url":               "nats://localhost:4222",
		"kv.nats.user":              "",
		"kv.nats.password":          "",
		"kv.nats.bucket":            "yukumo-fingerprints",
		"kv.groupcache.cache_bytes": DefaultGroupcacheBytes,
		"kv.groupcache.self":        "",
		"kv.groupcache.peers":       []string{},
	} {
		v.SetDefault(key, val)
	}
}
