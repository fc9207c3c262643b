package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/yeisme/yukumo/pkg/internal/migrate"
	"github.com/yeisme/yukumo/pkg/internal/model"
)

// ErrRecordNotFound 目录中没有该文件名.
var ErrRecordNotFound = errors.New("file not found in catalog")

// CatalogService 目录查询、下载与审计.
type CatalogService struct {
	rt *Runtime
}

// NewCatalogService 创建目录服务.
func NewCatalogService(rt *Runtime) *CatalogService {
	return &CatalogService{rt: rt}
}

// Query 按 file_name 前缀查询，contains 为 true 时按子串查询.
func (s *CatalogService) Query(ctx context.Context, pattern string, contains bool) ([]model.FileRecord, error) {
	if contains {
		return s.rt.Store.Search(ctx, pattern)
	}

	return s.rt.Store.Query(ctx, pattern)
}

// List 按身份列顺序返回最多 limit 条记录，limit<=0 表示全部.
func (s *CatalogService) List(ctx context.Context, limit int) ([]model.FileRecord, error) {
	var out []model.FileRecord

	for rec, err := range s.rt.Store.Scan(ctx) {
		if err != nil {
			return out, err
		}

		out = append(out, *rec)

		if limit > 0 && len(out) >= limit {
			break
		}
	}

	return out, nil
}

// Count 记录总数.
func (s *CatalogService) Count(ctx context.Context) (int64, error) {
	return s.rt.Store.Count(ctx)
}

// Find 按完整文件名查找.三元组布局下同名记录可能有多条，返回 Latest 选出的一条.
func (s *CatalogService) Find(ctx context.Context, name string) (*model.FileRecord, error) {
	recs, err := s.rt.Store.ByName(ctx, name)
	if err != nil {
		return nil, err
	}

	found := Latest(recs)
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, name)
	}

	return found, nil
}

// Latest 返回最近写入的记录：优先比较 updated_at，没有该列（schema 3 之前）
// 或值为零时使用 created_at.时间相同时取靠后的一条.
func Latest(recs []model.FileRecord) *model.FileRecord {
	var (
		found *model.FileRecord
		at    time.Time
	)

	for i := range recs {
		t := recs[i].UpdatedAt
		if t.IsZero() {
			t = recs[i].CreatedAt
		}

		if found == nil || !t.Before(at) {
			found, at = &recs[i], t
		}
	}

	return found
}

// Download 把 name 对应的远端内容写入 outDir/name，返回目标路径与字节数.
// 先写临时文件，成功后再改名，失败不会留下半个文件.
func (s *CatalogService) Download(ctx context.Context, name, outDir string) (string, int64, error) {
	rec, err := s.Find(ctx, name)
	if err != nil {
		return "", 0, err
	}

	backend, err := s.rt.Backend()
	if err != nil {
		return "", 0, err
	}

	if outDir == "" {
		outDir = "."
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", 0, err
	}

	dst := filepath.Join(outDir, filepath.Base(rec.FileName))

	tmp, err := os.CreateTemp(outDir, ".yukumo-*")
	if err != nil {
		return "", 0, err
	}

	n, err := backend.Download(ctx, rec.Placement, tmp)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, fmt.Errorf("download %s: %w", rec.FileName, err)
	}

	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return "", 0, err
	}

	s.rt.logger.Info().Str("file_name", rec.FileName).Str("path", dst).Int64("bytes", n).Msg("file downloaded")

	return dst, n, nil
}

// Orphans 返回 origin_file_path 已不存在的记录.
func (s *CatalogService) Orphans(ctx context.Context) ([]model.FileRecord, error) {
	var out []model.FileRecord

	for rec, err := range s.rt.Store.Scan(ctx) {
		if err != nil {
			return out, err
		}

		if originGone(rec) {
			out = append(out, *rec)
		}
	}

	return out, nil
}

// Missing 从 recs 中过滤出 origin_file_path 已不存在的记录.
func Missing(recs []model.FileRecord) []model.FileRecord {
	var out []model.FileRecord

	for i := range recs {
		if originGone(&recs[i]) {
			out = append(out, recs[i])
		}
	}

	return out
}

func originGone(rec *model.FileRecord) bool {
	_, err := os.Stat(rec.OriginFilePath)

	return errors.Is(err, fs.ErrNotExist)
}

// Prune 删除 recs 对应的记录，返回成功删除的数量.这是目录唯一的删除路径.
func (s *CatalogService) Prune(ctx context.Context, recs []model.FileRecord) (int, error) {
	var (
		n    int
		errs []error
	)

	for i := range recs {
		key := s.rt.Resolver.KeyOf(&recs[i])
		if err := s.rt.Store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
			continue
		}

		n++

		s.rt.logger.Info().Str("file_name", recs[i].FileName).Str("key", key.String()).Msg("catalog record pruned")
	}

	return n, errors.Join(errs...)
}

// MigrationStatus 迁移台账状态.
type MigrationStatus struct {
	Current int                     `json:"current"`
	Latest  int                     `json:"latest"`
	Applied []model.SchemaMigration `json:"applied"`
	Pending []PendingMigration      `json:"pending"`
	// Unfingerprinted 没有指纹的目录行，内容变化对它们不可见
	Unfingerprinted int64 `json:"unfingerprinted"`
}

// PendingMigration 尚未应用的迁移.
type PendingMigration struct {
	Version int    `json:"version"`
	Name    string `json:"name"`
}

// Status 读取迁移台账，不做任何修改.
func Status(ctx context.Context, m *migrate.Manager) (*MigrationStatus, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := m.Pending(ctx)
	if err != nil {
		return nil, err
	}

	unfp, err := m.Unfingerprinted(ctx)
	if err != nil {
		return nil, err
	}

	st := &MigrationStatus{Current: len(applied), Latest: m.Latest(), Applied: applied, Unfingerprinted: unfp}

	for _, p := range pending {
		st.Pending = append(st.Pending, PendingMigration{Version: p.Version, Name: p.Name})
	}

	return st, nil
}
