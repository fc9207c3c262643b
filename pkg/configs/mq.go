package configs

import (
	"time"

	"github.com/spf13/viper"
)

// MQType 事件队列类型.
type MQType string

const (
	MQTypeNATS      MQType = "nats"
	MQTypeRedis     MQType = "redis"
	MQTypeGoChannel MQType = "gochannel" // 进程内，无需外部服务
)

const (
	DefaultMQNATSURL       = "nats://localhost:4222"
	DefaultMQMaxReconnects = 5
	DefaultMQReconnectWait = 5 * time.Second
	DefaultMQPingInterval  = 20 * time.Second
	DefaultMQReconnectBuf  = 32 * 1024
)

// MQConfig 事件发布所用的消息队列.
type MQConfig struct {
	Type  MQType        `mapstructure:"type"  rule:"oneof=gochannel nats redis"`
	NATS  MQNATSConfig  `mapstructure:"nats"`
	Redis MQRedisConfig `mapstructure:"redis"`
}

// MQNATSConfig NATS 连接与 JetStream 设置.
type MQNATSConfig struct {
	URL         string   `mapstructure:"url"`
	ClusterURLs []string `mapstructure:"cluster_urls"` // 非空时覆盖 url
	ClientName  string   `mapstructure:"client_name"`

	// 认证：jwt 优先，其次 user/password
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	JWT      string `mapstructure:"jwt"`
	NKey     string `mapstructure:"nkey"`

	MaxReconnects int           `mapstructure:"max_reconnects" rule:"min=-1,max=100"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait" rule:"min=0"`
	PingInterval  time.Duration `mapstructure:"ping_interval"  rule:"min=0"`
	ReconnectBuf  int           `mapstructure:"reconnect_buf"  rule:"min=0"`
	StrictConnect bool          `mapstructure:"strict_connect"` // false 时首次连接失败也会后台重试

	JetStream     bool   `mapstructure:"jetstream"`
	AutoProvision bool   `mapstructure:"auto_provision"`
	TrackMsgID    bool   `mapstructure:"track_msg_id"`
	AckAsync      bool   `mapstructure:"ack_async"`
	DurablePrefix string `mapstructure:"durable_prefix"`
	QueueGroup    string `mapstructure:"queue_group"` // 非空时同组订阅者分摊消息
}

// MQRedisConfig Redis pub/sub.
type MQRedisConfig struct {
	Addr     string `mapstructure:"addr"     rule:"hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"       rule:"min=0,max=15"`
}

func (c *MQConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("mq.type", MQTypeGoChannel)

	v.SetDefault("mq.nats.url", DefaultMQNATSURL)
	v.SetDefault("mq.nats.cluster_urls", []string{})
	v.SetDefault("mq.nats.client_name", AppName)
	v.SetDefault("mq.nats.user", "")
	v.SetDefault("mq.nats.password", "")
	v.SetDefault("mq.nats.jwt", "")
	v.SetDefault("mq.nats.nkey", "")
	v.SetDefault("mq.nats.max_reconnects", DefaultMQMaxReconnects)
	v.SetDefault("mq.nats.reconnect_wait", DefaultMQReconnectWait)
	v.SetDefault("mq.nats.ping_interval", DefaultMQPingInterval)
	v.SetDefault("mq.nats.reconnect_buf", DefaultMQReconnectBuf)
	v.SetDefault("mq.nats.strict_connect", false)
	v.SetDefault("mq.nats.jetstream", true)
	v.SetDefault("mq.nats.auto_provision", true)
	v.SetDefault("mq.nats.track_msg_id", true)
	v.SetDefault("mq.nats.ack_async", false)
	v.SetDefault("mq.nats.durable_prefix", AppName)
	v.SetDefault("mq.nats.queue_group", "")

	v.SetDefault("mq.redis.addr", "localhost:6379")
	v.SetDefault("mq.redis.password", "")
	v.SetDefault("mq.redis.db", 0)
}
