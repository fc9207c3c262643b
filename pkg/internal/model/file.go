// Package model 定义目录数据库中的持久化模型.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/yeisme/yukumo/pkg/rule"
)

// ErrIncompletePlacement 远端位置三个字段必须同时存在.
var ErrIncompletePlacement = errors.New("incomplete placement: file_url, space_id and block_id must be set together")

// Placement 上传成功后远端返回的位置，三字段总是一起写入.
type Placement struct {
	FileURL string `gorm:"column:file_url;size:2048;not null" json:"file_url"`
	SpaceID string `gorm:"column:space_id;size:255;not null"  json:"space_id"`
	BlockID string `gorm:"column:block_id;size:255;not null"  json:"block_id"`
}

// IsZero 三个字段都为空.
func (p Placement) IsZero() bool {
	return p.FileURL == "" && p.SpaceID == "" && p.BlockID == ""
}

// IsComplete 三个字段都已填写.
func (p Placement) IsComplete() bool {
	return p.FileURL != "" && p.SpaceID != "" && p.BlockID != ""
}

// Validate 校验位置完整.
func (p Placement) Validate() error {
	if !p.IsComplete() {
		return fmt.Errorf("%w (file_url=%q space_id=%q block_id=%q)", ErrIncompletePlacement, p.FileURL, p.SpaceID, p.BlockID)
	}

	return nil
}

// FileRecord 目录中的一条上传记录，每个 file_name 一行.
//
// 主键随 schema 版本变化：版本 1 为 (file_url, space_id, block_id)，
// 版本 2 起为 file_name. 键列由 identity 包决定，这里的 primaryKey 标签对应当前布局.
type FileRecord struct {
	FileName       string `gorm:"column:file_name;primaryKey;size:255"        json:"file_name"        rule:"required,max=255"`
	Placement      `gorm:"embedded"`
	OriginFilePath string `gorm:"column:origin_file_path;size:4096;not null" json:"origin_file_path" rule:"required"`

	// 上传时的内容指纹（schema 版本 3）
	ContentHash string `gorm:"column:content_hash;size:16" json:"content_hash,omitempty" rule:"omitempty,xxhash64"`
	Size        int64  `gorm:"column:size"                 json:"size"`
	ModTime     int64  `gorm:"column:mod_time"             json:"mod_time"` // unix 纳秒

	CreatedAt time.Time `gorm:"column:created_at;not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at"          json:"updated_at"`
}

// TableName 目录表名.
func (FileRecord) TableName() string {
	return "files"
}

// HasFingerprint 记录是否带有上传时的指纹；旧版本写入的行没有.
func (r *FileRecord) HasFingerprint() bool {
	return r.ContentHash != "" || r.ModTime != 0
}

// ModTimeAt 以 time.Time 返回 ModTime.
func (r *FileRecord) ModTimeAt() time.Time {
	if r.ModTime == 0 {
		return time.Time{}
	}

	return time.Unix(0, r.ModTime)
}

// Validate 校验记录可写入目录.
func (r *FileRecord) Validate() error {
	if err := r.Placement.Validate(); err != nil {
		return err
	}

	if err := rule.ValidateStruct(r); err != nil {
		return fmt.Errorf("invalid file record %q: %w", r.FileName, err)
	}

	return nil
}
