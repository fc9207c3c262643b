// Package migrate 按顺序、恰好一次地演进目录 schema.
//
// 每个迁移在一个事务中执行 Up 并写入台账 schema_migrations，失败时两者一起回滚.
// MySQL 的 DDL 会隐式提交，在该后端上迁移中途失败需要人工检查.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/yeisme/yukumo/pkg/internal/model"
	nlog "github.com/yeisme/yukumo/pkg/log"
	"github.com/yeisme/yukumo/pkg/tracing"
)

// Migration 一个 schema 版本.
type Migration struct {
	Version int
	Name    string
	Up      func(ctx context.Context, tx *gorm.DB) error
}

// AppliedFunc 迁移成功提交后的回调.
type AppliedFunc func(ctx context.Context, m Migration, took time.Duration)

// Option 配置 Manager.
type Option func(*Manager)

// WithMigrations 替换内置迁移列表，测试中使用.
func WithMigrations(ms []Migration) Option {
	return func(m *Manager) { m.migrations = ms }
}

// WithCollisionPolicy 设置 V1→V2 重键冲突策略.
func WithCollisionPolicy(p CollisionPolicy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithLogger 设置日志.
func WithLogger(l *zerolog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithOnApplied 注册提交后的回调，用于指标与事件.
func WithOnApplied(fn AppliedFunc) Option {
	return func(m *Manager) { m.onApplied = append(m.onApplied, fn) }
}

// Manager 迁移管理器.
type Manager struct {
	db         *gorm.DB
	migrations []Migration
	policy     CollisionPolicy
	logger     *zerolog.Logger
	onApplied  []AppliedFunc
}

// NewManager 创建迁移管理器，默认使用 Builtin 迁移.
func NewManager(db *gorm.DB, opts ...Option) *Manager {
	m := &Manager{
		db:     db,
		policy: PolicyKeepLatest,
		logger: nlog.Component("migrate"),
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.migrations == nil {
		m.migrations = Builtin(m.policy, m.logger)
	}

	sort.Slice(m.migrations, func(i, j int) bool { return m.migrations[i].Version < m.migrations[j].Version })

	return m
}

// Migrations 已知的迁移，按版本升序.
func (m *Manager) Migrations() []Migration {
	return m.migrations
}

// Latest 已知的最高版本.
func (m *Manager) Latest() int {
	if len(m.migrations) == 0 {
		return 0
	}

	return m.migrations[len(m.migrations)-1].Version
}

func (m *Manager) lookup(version int) (Migration, bool) {
	for _, mg := range m.migrations {
		if mg.Version == version {
			return mg, true
		}
	}

	return Migration{}, false
}

// Init 确保台账表存在.
func (m *Manager) Init(ctx context.Context) error {
	db := m.db.WithContext(ctx)
	if db.Migrator().HasTable(&model.SchemaMigration{}) {
		return nil
	}

	if err := db.Migrator().CreateTable(&model.SchemaMigration{}); err != nil {
		return fmt.Errorf("create migration ledger: %w", err)
	}

	return nil
}

// Applied 返回台账中的记录，按版本升序.
func (m *Manager) Applied(ctx context.Context) ([]model.SchemaMigration, error) {
	if err := m.Init(ctx); err != nil {
		return nil, err
	}

	var rows []model.SchemaMigration
	if err := m.db.WithContext(ctx).Order("version").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("read migration ledger: %w", err)
	}

	return rows, nil
}

// Current 返回当前 schema 版本（台账为连续的 1..n 时为 n）.
func (m *Manager) Current(ctx context.Context) (int, error) {
	applied, err := m.Applied(ctx)
	if err != nil {
		return 0, err
	}

	if err := m.verify(applied); err != nil {
		return 0, err
	}

	return len(applied), nil
}

// Pending 返回尚未应用的迁移.
func (m *Manager) Pending(ctx context.Context) ([]Migration, error) {
	current, err := m.Current(ctx)
	if err != nil {
		return nil, err
	}

	var out []Migration

	for _, mg := range m.migrations {
		if mg.Version > current {
			out = append(out, mg)
		}
	}

	return out, nil
}

// Unfingerprinted 统计没有上传指纹的目录行.这些行的内容变化检测不到，
// 需要用 put --refingerprint 重新上传一次.指纹列尚未加入时所有行都计入.
func (m *Manager) Unfingerprinted(ctx context.Context) (int64, error) {
	db := m.db.WithContext(ctx)
	if !db.Migrator().HasTable(filesTable) {
		return 0, nil
	}

	q := db.Table(filesTable)
	if db.Migrator().HasColumn(filesTable, "content_hash") {
		q = q.Where("(content_hash = '' OR content_hash IS NULL) AND (mod_time = 0 OR mod_time IS NULL)")
	}

	var n int64
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count unfingerprinted rows: %w", err)
	}

	return n, nil
}

// Verify 确认台账恰为 1..n 且每个版本都为本程序所知.
func (m *Manager) Verify(ctx context.Context) error {
	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}

	return m.verify(applied)
}

func (m *Manager) verify(applied []model.SchemaMigration) error {
	for i, row := range applied {
		if row.Version != i+1 {
			return &MigrationGapError{Current: i, Requested: row.Version}
		}

		if _, ok := m.lookup(row.Version); !ok {
			return fmt.Errorf("%w: ledger has version %d (%s), this binary knows up to %d",
				ErrUnknownMigration, row.Version, row.Name, m.Latest())
		}
	}

	return nil
}

// Apply 应用单个版本.已应用为空操作；跳过版本返回 MigrationGapError.
func (m *Manager) Apply(ctx context.Context, version int) (err error) {
	mg, ok := m.lookup(version)
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownMigration, version)
	}

	applied, err := m.Applied(ctx)
	if err != nil {
		return err
	}

	for _, row := range applied {
		if row.Version == version {
			m.logger.Debug().Int("version", version).Msg("migration already applied")
			return nil
		}
	}

	if err := m.verify(applied); err != nil {
		return err
	}

	if current := len(applied); version != current+1 {
		return &MigrationGapError{Current: current, Requested: version}
	}

	ctx, span := tracing.StartSpan(ctx, "migrate.apply")
	span.SetAttributes(attribute.Int("migration.version", mg.Version), attribute.String("migration.name", mg.Name))

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}

		span.End()
	}()

	start := time.Now()

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := mg.Up(ctx, tx); err != nil {
			return err
		}

		return tx.Create(&model.SchemaMigration{
			Version:   mg.Version,
			Name:      mg.Name,
			AppliedAt: time.Now().UTC(),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("apply migration %d (%s): %w", mg.Version, mg.Name, err)
	}

	took := time.Since(start)
	m.logger.Info().Int("version", mg.Version).Str("name", mg.Name).Dur("took", took).Msg("migration applied")

	for _, fn := range m.onApplied {
		fn(ctx, mg, took)
	}

	return nil
}

// Up 依次应用全部待处理迁移，返回本次应用的迁移.
func (m *Manager) Up(ctx context.Context) ([]Migration, error) {
	return m.UpTo(ctx, m.Latest())
}

// UpTo 依次应用待处理迁移直到 target（含）.
func (m *Manager) UpTo(ctx context.Context, target int) ([]Migration, error) {
	if _, ok := m.lookup(target); !ok && target != 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnknownMigration, target)
	}

	pending, err := m.Pending(ctx)
	if err != nil {
		return nil, err
	}

	var done []Migration

	for _, mg := range pending {
		if mg.Version > target {
			break
		}

		if err := m.Apply(ctx, mg.Version); err != nil {
			return done, err
		}

		done = append(done, mg)
	}

	return done, nil
}

// IsFatal 迁移错误是否应终止启动.
func IsFatal(err error) bool {
	var gap *MigrationGapError

	var collision *KeyCollisionError

	return errors.As(err, &gap) || errors.As(err, &collision) || errors.Is(err, ErrUnknownMigration)
}
