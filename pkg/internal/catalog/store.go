// Package catalog 持久化上传记录.
//
// 写入使用数据库原生的条件写（INSERT ... ON CONFLICT DO UPDATE），
// 同一个键的并发写入由数据库串行化，后写者覆盖，created_at 始终保留首次插入的值.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yeisme/yukumo/pkg/internal/identity"
	"github.com/yeisme/yukumo/pkg/internal/model"
	nlog "github.com/yeisme/yukumo/pkg/log"
)

const (
	// DefaultPageSize Scan 每页行数.
	DefaultPageSize = 500

	tableName = "files"
)

var (
	baseColumns        = []string{"file_name", "file_url", "space_id", "block_id", "origin_file_path", "created_at"}
	fingerprintColumns = []string{"content_hash", "size", "mod_time", "updated_at"}
)

// Option 配置 Store.
type Option func(*Store)

// WithPageSize 设置 Scan 的分页大小.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithLogger 设置日志.
func WithLogger(l *zerolog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Store 基于 gorm 的目录存储.
type Store struct {
	db       *gorm.DB
	resolver *identity.Resolver
	pageSize int
	logger   *zerolog.Logger

	// legacy 表处于 schema 版本 1/2，没有指纹列
	legacy bool
}

// New 创建目录存储.调用前 files 表必须已由迁移创建.
func New(db *gorm.DB, resolver *identity.Resolver, opts ...Option) (*Store, error) {
	if db == nil || resolver == nil {
		return nil, errors.New("catalog: db and resolver are required")
	}

	s := &Store{
		db:       db,
		resolver: resolver,
		pageSize: DefaultPageSize,
		logger:   nlog.Component("catalog"),
	}

	for _, opt := range opts {
		opt(s)
	}

	m := db.Migrator()
	if !m.HasTable(tableName) {
		return nil, storeErr("open", "", fmt.Errorf("table %q does not exist, run migrations first", tableName))
	}

	s.legacy = !m.HasColumn(&model.FileRecord{}, "content_hash")
	if s.legacy {
		s.logger.Warn().Msg("catalog has no fingerprint columns, staleness falls back to path comparison")
	}

	return s, nil
}

// Legacy 表是否缺少指纹列.
func (s *Store) Legacy() bool {
	return s.legacy
}

// Resolver 返回存储使用的身份解析器.
func (s *Store) Resolver() *identity.Resolver {
	return s.resolver
}

func (s *Store) columns() []string {
	if s.legacy {
		return baseColumns
	}

	return append(slices.Clone(baseColumns), fingerprintColumns...)
}

// mutableColumns 冲突时更新的列：除身份列与 created_at 外的全部列.
func (s *Store) mutableColumns() []string {
	keys := s.resolver.KeyColumns()

	var out []string

	for _, c := range s.columns() {
		if c == "created_at" || slices.Contains(keys, c) {
			continue
		}

		out = append(out, c)
	}

	return out
}

func (s *Store) table(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Table(tableName)
}

func (s *Store) checkKey(k identity.Key) error {
	if k.Scheme() != s.resolver.Scheme() {
		return fmt.Errorf("%w: key scheme %s, store scheme %s", identity.ErrSchemeMismatch, k.Scheme(), s.resolver.Scheme())
	}

	return nil
}

// Get 按身份键读取记录，未命中返回 nil, nil.
func (s *Store) Get(ctx context.Context, key identity.Key) (*model.FileRecord, error) {
	if key.IsZero() {
		return nil, nil
	}

	if err := s.checkKey(key); err != nil {
		return nil, err
	}

	var rec model.FileRecord

	err := s.table(ctx).Select(s.columns()).Where(key.Conditions()).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, storeErr("get", key.String(), err)
	}

	return &rec, nil
}

// Upsert 插入记录，键已存在时覆盖可变列并保留 created_at.
func (s *Store) Upsert(ctx context.Context, rec *model.FileRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	return s.upsert(s.db.WithContext(ctx), rec)
}

func (s *Store) upsert(tx *gorm.DB, rec *model.FileRecord) error {
	keys := s.resolver.KeyColumns()

	conflict := clause.OnConflict{
		Columns:   make([]clause.Column, 0, len(keys)),
		DoUpdates: clause.AssignmentColumns(s.mutableColumns()),
	}
	for _, c := range keys {
		conflict.Columns = append(conflict.Columns, clause.Column{Name: c})
	}

	q := tx.Table(tableName).Clauses(conflict)
	if s.legacy {
		q = q.Omit(fingerprintColumns...)
	}

	key := s.resolver.KeyOf(rec)
	if err := q.Create(rec).Error; err != nil {
		return storeErr("upsert", key.String(), err)
	}

	// 冲突更新时 gorm 仍会把 rec.CreatedAt 填为当前时间，回读实际保存的值.
	// 写入已经成功，回读失败只影响 rec 上的 created_at
	var stored model.FileRecord
	if err := tx.Table(tableName).Select("created_at").Where(key.Conditions()).Take(&stored).Error; err != nil {
		s.logger.Warn().Err(err).Str("key", key.String()).Msg("read back created_at after upsert")
	} else {
		rec.CreatedAt = stored.CreatedAt
	}

	s.logger.Debug().Str("file_name", rec.FileName).Str("block_id", rec.BlockID).Msg("catalog upsert")

	return nil
}

// Replace 在一个事务内删除旧键并写入新记录，沿用旧记录的 created_at.
// 用于 triple 方案下重新上传改变了身份的情况.
func (s *Store) Replace(ctx context.Context, old identity.Key, rec *model.FileRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	if old.IsZero() {
		return s.Upsert(ctx, rec)
	}

	if err := s.checkKey(old); err != nil {
		return err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var prev model.FileRecord

		err := tx.Table(tableName).Select("created_at").Where(old.Conditions()).Take(&prev).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return storeErr("replace", old.String(), err)
		default:
			rec.CreatedAt = prev.CreatedAt

			if err := tx.Table(tableName).Where(old.Conditions()).Delete(&model.FileRecord{}).Error; err != nil {
				return storeErr("replace", old.String(), err)
			}
		}

		return s.upsert(tx, rec)
	})

	var se *StoreError
	if err != nil && !errors.As(err, &se) {
		return storeErr("replace", old.String(), err)
	}

	return err
}

// Delete 显式删除记录，正常对账流程不会调用.
func (s *Store) Delete(ctx context.Context, key identity.Key) error {
	if key.IsZero() {
		return nil
	}

	if err := s.checkKey(key); err != nil {
		return err
	}

	if err := s.table(ctx).Where(key.Conditions()).Delete(&model.FileRecord{}).Error; err != nil {
		return storeErr("delete", key.String(), err)
	}

	return nil
}

// Count 返回记录总数.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.table(ctx).Count(&n).Error; err != nil {
		return 0, storeErr("count", "", err)
	}

	return n, nil
}

// Scan 按身份列顺序分页遍历全部记录.每次迭代都从头开始.
// 不保证快照一致，但每行由单条 SELECT 读出，不会读到写了一半的行.
func (s *Store) Scan(ctx context.Context) iter.Seq2[*model.FileRecord, error] {
	return func(yield func(*model.FileRecord, error) bool) {
		keys := s.resolver.KeyColumns()
		order := strings.Join(keys, ", ")

		var last []any

		for {
			page := make([]model.FileRecord, 0, s.pageSize)

			q := s.table(ctx).Select(s.columns()).Order(order).Limit(s.pageSize)
			if last != nil {
				q = q.Where(afterClause(keys), last...)
			}

			if err := q.Find(&page).Error; err != nil {
				yield(nil, storeErr("scan", "", err))
				return
			}

			for i := range page {
				if !yield(&page[i], nil) {
					return
				}
			}

			if len(page) < s.pageSize {
				return
			}

			last = s.resolver.KeyOf(&page[len(page)-1]).Values()
		}
	}
}

// afterClause 生成键集分页条件，例如 (a, b) > (?, ?).
func afterClause(cols []string) string {
	if len(cols) == 1 {
		return cols[0] + " > ?"
	}

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	return "(" + strings.Join(cols, ", ") + ") > (" + marks + ")"
}

// Query 按 file_name 前缀查询.
func (s *Store) Query(ctx context.Context, prefix string) ([]model.FileRecord, error) {
	return s.like(ctx, "query", escapeLike(prefix)+"%")
}

// ByName 按完整 file_name 精确查询.三元组方案下同名记录可能有多条，按 created_at 排序.
func (s *Store) ByName(ctx context.Context, name string) ([]model.FileRecord, error) {
	var out []model.FileRecord

	err := s.table(ctx).
		Select(s.columns()).
		Where("file_name = ?", name).
		Order("created_at").
		Find(&out).Error
	if err != nil {
		return nil, storeErr("by_name", name, err)
	}

	return out, nil
}

// Search 按 file_name 子串查询.
func (s *Store) Search(ctx context.Context, substr string) ([]model.FileRecord, error) {
	return s.like(ctx, "search", "%"+escapeLike(substr)+"%")
}

func (s *Store) like(ctx context.Context, op, pattern string) ([]model.FileRecord, error) {
	var out []model.FileRecord

	err := s.table(ctx).
		Select(s.columns()).
		Where("file_name LIKE ? ESCAPE '!'", pattern).
		Order("file_name").
		Find(&out).Error
	if err != nil {
		return nil, storeErr(op, pattern, err)
	}

	return out, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}
