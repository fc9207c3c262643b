package migrate

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	filesTable   = "files"
	stagingTable = "files_v2"
	insertBatch  = 200
)

// filesV1 版本 1 的目录表：以远端三元组为主键.
type filesV1 struct {
	FileURL        string    `gorm:"column:file_url;primaryKey;size:255"`
	SpaceID        string    `gorm:"column:space_id;primaryKey;size:255"`
	BlockID        string    `gorm:"column:block_id;primaryKey;size:255"`
	FileName       string    `gorm:"column:file_name;size:255;not null;index"`
	OriginFilePath string    `gorm:"column:origin_file_path;size:4096;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

func (filesV1) TableName() string { return filesTable }

// filesV2 版本 2 的目录表：以 file_name 为主键，先建为暂存表再改名.
type filesV2 struct {
	FileName       string    `gorm:"column:file_name;primaryKey;size:255"`
	FileURL        string    `gorm:"column:file_url;size:2048;not null"`
	SpaceID        string    `gorm:"column:space_id;size:255;not null"`
	BlockID        string    `gorm:"column:block_id;size:255;not null"`
	OriginFilePath string    `gorm:"column:origin_file_path;size:4096;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

func (filesV2) TableName() string { return stagingTable }

// filesV3 版本 3 新增的指纹列.
type filesV3 struct {
	ContentHash string     `gorm:"column:content_hash;size:16;not null;default:''"`
	Size        int64      `gorm:"column:size;not null;default:0"`
	ModTime     int64      `gorm:"column:mod_time;not null;default:0"`
	UpdatedAt   *time.Time `gorm:"column:updated_at"`
}

func (filesV3) TableName() string { return filesTable }

// Builtin 返回内置迁移列表.
func Builtin(policy CollisionPolicy, logger *zerolog.Logger) []Migration {
	return []Migration{
		{Version: 1, Name: "create_files_triple_key", Up: createFilesTripleKey},
		{Version: 2, Name: "rekey_files_by_file_name", Up: rekeyFilesByFileName(policy, logger)},
		{Version: 3, Name: "add_fingerprint_columns", Up: addFingerprintColumns},
	}
}

func createFilesTripleKey(_ context.Context, tx *gorm.DB) error {
	// 旧工具创建的库已有 files 表但没有台账，直接接管
	if tx.Migrator().HasTable(filesTable) {
		return nil
	}

	return tx.Migrator().CreateTable(&filesV1{})
}

func rekeyFilesByFileName(policy CollisionPolicy, logger *zerolog.Logger) func(context.Context, *gorm.DB) error {
	return func(_ context.Context, tx *gorm.DB) error {
		var rows []Row

		err := tx.Table(filesTable).
			Select("file_name", "file_url", "space_id", "block_id", "origin_file_path", "created_at").
			Order("created_at").
			Find(&rows).Error
		if err != nil {
			return fmt.Errorf("read v1 rows: %w", err)
		}

		out, resolutions, err := Rekey(rows, policy)
		if err != nil {
			return err
		}

		for _, r := range resolutions {
			dropped := make([]string, 0, len(r.Dropped))
			for _, d := range r.Dropped {
				dropped = append(dropped, d.FileURL)
			}

			logger.Warn().
				Str("file_name", r.FileName).
				Str("kept_file_url", r.Kept.FileURL).
				Time("kept_created_at", r.Kept.CreatedAt).
				Strs("dropped_file_urls", dropped).
				Msg("resolved file_name collision")
		}

		m := tx.Migrator()
		if m.HasTable(stagingTable) {
			if err := m.DropTable(stagingTable); err != nil {
				return fmt.Errorf("drop stale staging table: %w", err)
			}
		}

		if err := m.CreateTable(&filesV2{}); err != nil {
			return fmt.Errorf("create staging table: %w", err)
		}

		if len(out) > 0 {
			if err := tx.Table(stagingTable).CreateInBatches(out, insertBatch).Error; err != nil {
				return fmt.Errorf("copy rows: %w", err)
			}
		}

		if err := m.DropTable(filesTable); err != nil {
			return fmt.Errorf("drop v1 table: %w", err)
		}

		if err := m.RenameTable(stagingTable, filesTable); err != nil {
			return fmt.Errorf("rename staging table: %w", err)
		}

		logger.Info().Int("rows_in", len(rows)).Int("rows_out", len(out)).Int("collisions", len(resolutions)).Msg("files re-keyed by file_name")

		return nil
	}
}

func addFingerprintColumns(_ context.Context, tx *gorm.DB) error {
	m := tx.Migrator()

	for _, col := range []string{"content_hash", "size", "mod_time", "updated_at"} {
		if m.HasColumn(&filesV3{}, col) {
			continue
		}

		if err := m.AddColumn(&filesV3{}, col); err != nil {
			return fmt.Errorf("add column %s: %w", col, err)
		}
	}

	return nil
}
