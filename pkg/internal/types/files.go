// Package types 定义应用程序中使用的各种数据类型和结构体. 主要为 Request 和 Response 结构体.
package types

import "github.com/yeisme/yukumo/pkg/internal/model"

// ListFilesQuery GET /files 查询参数.
// 默认按 file_name 前缀匹配；Contains 为 true 时按子串匹配.prefix 为空时列出全部（受 Limit 限制）.
type ListFilesQuery struct {
	Prefix   string `form:"prefix"`
	Contains bool   `form:"contains"`
	Limit    int    `form:"limit"    binding:"omitempty,min=1,max=1000"`
}

// ListFilesResponse 目录记录列表.
type ListFilesResponse struct {
	Files []model.FileRecord `json:"files"`
	Total int                `json:"total"`
}

// CatalogInfo 目录概况.
type CatalogInfo struct {
	SchemaVersion  int    `json:"schema_version"`
	IdentityScheme string `json:"identity_scheme"`
	Staleness      string `json:"staleness"`
	LegacyLayout   bool   `json:"legacy_layout"`
	Records        int64  `json:"records"`
}

// HealthResponse 单个组件的健康状态.
type HealthResponse struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// ErrorResponse 错误响应.
type ErrorResponse struct {
	Error string `json:"error"`
}
