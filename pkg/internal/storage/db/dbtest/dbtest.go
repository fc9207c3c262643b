// Package dbtest 为测试提供独立的 SQLite 数据库.
package dbtest

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// Open 打开一个只属于当前测试的内存数据库，测试结束时关闭.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}

	// 内存库随最后一个连接关闭而消失，固定为单连接
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// OpenFile 打开 dir 下的文件数据库（WAL，busy_timeout 5s）.同一 dir 多次调用得到
// 互相独立的连接池，用于模拟多个进程写同一个目录.
func OpenFile(t testing.TB, dir string) *gorm.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(dir, "catalog.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("open sqlite file: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}

	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}
