package configs

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultNotionBaseURL    = "https://www.notion.so/api/v3"
	DefaultNotionUserAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.0.0 Safari/537.36"
	DefaultNotionMaxRetries = 3                      // 429/5xx 最大重试次数
	DefaultNotionBaseDelay  = 500 * time.Millisecond // 首次重试等待
	DefaultNotionMaxDelay   = 10 * time.Second       // 重试等待上限
	DefaultNotionTimeout    = 60 * time.Second       // 单次 HTTP 请求超时
)

// NotionConfig Notion 上传后端配置.
//
// token_v2 与 file_token 来自浏览器 cookie，page_id 为存放附件块的页面.
type NotionConfig struct {
	TokenV2    string        `mapstructure:"token_v2"`
	FileToken  string        `mapstructure:"file_token"`
	PageID     string        `mapstructure:"page_id"     rule:"omitempty,notion_id"`
	UserAgent  string        `mapstructure:"user_agent"`
	BaseURL    string        `mapstructure:"base_url"    rule:"omitempty,url"`
	MaxRetries int           `mapstructure:"max_retries" rule:"min=0,max=10"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func (c *NotionConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("notion.token_v2", "")
	v.SetDefault("notion.file_token", "")
	v.SetDefault("notion.page_id", "")
	v.SetDefault("notion.user_agent", DefaultNotionUserAgent)
	v.SetDefault("notion.base_url", DefaultNotionBaseURL)
	v.SetDefault("notion.max_retries", DefaultNotionMaxRetries)
	v.SetDefault("notion.base_delay", DefaultNotionBaseDelay)
	v.SetDefault("notion.max_delay", DefaultNotionMaxDelay)
	v.SetDefault("notion.timeout", DefaultNotionTimeout)
}
