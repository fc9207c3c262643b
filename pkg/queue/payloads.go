package queue

import "time"

// EventHeader 定义所有事件的通用头部元数据.
type EventHeader struct {
	// Topic 冗余记录消息主题，便于离线处理或转储后定位来源主题.
	Topic string `json:"topic"`
	// TraceID 分布式追踪/关联 ID.
	TraceID string `json:"trace_id,omitempty"`
	// Producer 生产者服务名或节点标识.
	Producer string `json:"producer,omitempty"`
	// OccurredAt 事件发生时间（UTC，RFC3339）.
	OccurredAt time.Time `json:"occurred_at"`
	// Version 事件负载版本.
	Version string `json:"version,omitempty"`
}

// Message 是统一的消息封装，Header + Payload.
type Message[T any] struct {
	Header  EventHeader `json:"header"`
	Payload T           `json:"payload"`
}

// -------------------------- 文件领域 --------------------------

// FileRef 本地文件与其远端位置.
type FileRef struct {
	FileName    string `json:"file_name"`
	Path        string `json:"path"`
	Size        int64  `json:"size,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
	ContentType string `json:"content_type,omitempty"`

	FileURL string `json:"file_url,omitempty"`
	SpaceID string `json:"space_id,omitempty"`
	BlockID string `json:"block_id,omitempty"`
}

// FileUploadedPayload 首次上传或更新成功.
type FileUploadedPayload struct {
	RunID   string  `json:"run_id"`
	File    FileRef `json:"file"`
	Backend string  `json:"backend,omitempty"`
	// Reason 更新的原因：path 或 content，首次上传为空
	Reason string `json:"reason,omitempty"`
	// PrevFileURL 更新前的地址
	PrevFileURL string `json:"prev_file_url,omitempty"`
}

// FileFailedPayload 单个文件失败.
type FileFailedPayload struct {
	RunID  string  `json:"run_id"`
	File   FileRef `json:"file"`
	Reason string  `json:"reason"`
	Error  string  `json:"error"`
}

// -------------------------- 批次 --------------------------

// BatchCompletedPayload 一次对账的汇总.
type BatchCompletedPayload struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Total      int            `json:"total"`
	Counts     map[string]int `json:"counts"`
}

// -------------------------- 迁移 --------------------------

// MigrationAppliedPayload 迁移版本提交.
type MigrationAppliedPayload struct {
	Version    int    `json:"version"`
	Name       string `json:"name"`
	DurationMS int64  `json:"duration_ms"`
}
