// Package db 打开目录数据库连接，按 db.type 选择 dialector.
//
// 各 dialector 通过构建标签裁剪，例如 -tags no_mysql,no_postgres 只保留 SQLite.
package db

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormPrometheus "gorm.io/plugin/prometheus"

	"github.com/yeisme/yukumo/pkg/configs"
	nlog "github.com/yeisme/yukumo/pkg/log"
)

// DialectorFactory 定义创建 dialector 的函数类型.
type DialectorFactory func(dsn string) gorm.Dialector

// dialectorFactories 存储数据库类型到 dialector 工厂的映射.
var dialectorFactories = map[configs.DBType]DialectorFactory{}

// RegisterDialectorFactory 注册数据库 dialector 工厂函数.
func RegisterDialectorFactory(factory DialectorFactory, dbTypes ...configs.DBType) {
	for _, t := range dbTypes {
		dialectorFactories[t] = factory
	}
}

// GetRegisteredDBTypes 返回已注册的数据库类型列表（有序）.
func GetRegisteredDBTypes() []configs.DBType {
	types := make([]configs.DBType, 0, len(dialectorFactories))
	for dbType := range dialectorFactories {
		types = append(types, dbType)
	}

	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	return types
}

// Client 包装 GORM DB 客户端.
type Client struct {
	*gorm.DB
}

// Open 按给定配置打开数据库并配置连接池.
func Open(ctx context.Context, cfg *configs.DBConfig, withMetrics bool) (*Client, error) {
	dsn := cfg.GetDSN()
	if dsn == "" {
		return nil, fmt.Errorf("cannot build dsn for db type %q", cfg.Type)
	}

	factory, exists := dialectorFactories[cfg.Type]
	if !exists {
		return nil, fmt.Errorf("unsupported database type: %s (registered: %v)", cfg.Type, GetRegisteredDBTypes())
	}

	log := nlog.Component("db")

	db, err := gorm.Open(factory(dsn), &gorm.Config{
		Logger: logger.New(log, logger.Config{
			SlowThreshold:             cfg.SlowThreshold,
			LogLevel:                  parseGormLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
		}),
		// 迁移会重命名表，预编译语句缓存在 SQLite 上会指向旧表
		PrepareStmt: false,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Dialect(), err)
	}

	client := &Client{DB: db}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := client.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Dialect(), err)
	}

	if withMetrics {
		if err := client.Use(gormPrometheus.New(gormPrometheus.Config{
			DBName:          cfg.Database,
			RefreshInterval: gormMetricsRefreshSeconds,
		})); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("gorm prometheus plugin: %w", err)
		}
	}

	log.Debug().Str("dialect", cfg.Dialect()).Str("database", cfg.Database).Bool("metrics", withMetrics).Msg("catalog database opened")

	return client, nil
}

// Wrap 包装已有的 *gorm.DB，测试中使用.
func Wrap(db *gorm.DB) *Client {
	return &Client{DB: db}
}

// GetDB 返回 GORM DB 实例.
func (c *Client) GetDB() *gorm.DB {
	return c.DB
}

// Ping 检查连接可用.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

// Close 关闭底层连接池.
func (c *Client) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// gormMetricsRefreshSeconds 连接池指标的刷新间隔.
const gormMetricsRefreshSeconds = 15

func parseGormLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
