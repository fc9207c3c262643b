package configs

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DBType 目录数据库方言.postgresql/postgre/pg 与 mysql/mariadb 互为别名.
type DBType string

const (
	PostgreSQL DBType = "postgresql"
	Postgres   DBType = "postgre"
	Pg         DBType = "pg"
	MySQL      DBType = "mysql"
	MariaDB    DBType = "mariadb"
	SQLite     DBType = "sqlite"
)

const (
	DefaultDatabaseType    = SQLite // 本地文件，无需外部服务
	DefaultDatabaseName    = AppName
	DefaultMaxOpenConns    = 10
	DefaultMaxIdleConns    = 5
	DefaultDBLogLevel      = "warn"
	DefaultSlowThreshold   = 500 * time.Millisecond
	DefaultSQLiteBusyMS    = 5000
	sqliteBusyTimeoutParam = "_pragma=busy_timeout(%d)"
)

// DBConfig 目录数据库连接.
type DBConfig struct {
	Type DBType `mapstructure:"type"           rule:"oneof=postgresql postgre pg mysql mariadb sqlite"`
	// DSN 完整连接串，设置后忽略 host/port 等字段
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"           rule:"min=0,max=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	// Database 库名；SQLite 下为文件名或路径，不带 .db 后缀时自动补上
	Database string `mapstructure:"database"       rule:"required_without=DSN"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxOpenConns  int           `mapstructure:"max_open_conns" rule:"min=0"`
	MaxIdleConns  int           `mapstructure:"max_idle_conns" rule:"min=0"`
	LogLevel      string        `mapstructure:"log_level"      rule:"oneof=silent error warn info"`
	SlowThreshold time.Duration `mapstructure:"slow_threshold" rule:"min=0"` // 0 关闭慢查询日志
}

// Dialect 返回方言的规范名称，别名归一.
func (c *DBConfig) Dialect() string {
	switch c.Type {
	case PostgreSQL, Postgres, Pg:
		return "postgres"
	case MySQL, MariaDB:
		return "mysql"
	case SQLite:
		return "sqlite"
	default:
		return ""
	}
}

// GetDSN 按方言拼接连接串；设置了 dsn 时原样返回.
func (c *DBConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}

	switch c.Dialect() {
	case "postgres":
		port := c.Port
		if port == 0 {
			port = 5432
		}

		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, port, c.User, c.Password, c.Database, c.SSLMode)
	case "mysql":
		port := c.Port
		if port == 0 {
			port = 3306
		}

		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			c.User, c.Password, c.Host, port, c.Database)
	case "sqlite":
		return sqliteDSN(c.Database)
	default:
		return ""
	}
}

// sqliteDSN 补全 .db 后缀并设置 busy_timeout，并发写入时等待而不是立即报 SQLITE_BUSY.
func sqliteDSN(name string) string {
	dsn := name
	if !strings.HasPrefix(dsn, "file:") {
		if !strings.HasSuffix(dsn, ".db") {
			dsn += ".db"
		}

		dsn = "file:" + dsn
	}

	if strings.Contains(dsn, "busy_timeout") {
		return dsn
	}

	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}

	return dsn + sep + fmt.Sprintf(sqliteBusyTimeoutParam, DefaultSQLiteBusyMS)
}

func (c *DBConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("db.type", DefaultDatabaseType)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 0)
	v.SetDefault("db.user", "")
	v.SetDefault("db.password", "")
	v.SetDefault("db.database", DefaultDatabaseName)
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_open_conns", DefaultMaxOpenConns)
	v.SetDefault("db.max_idle_conns", DefaultMaxIdleConns)
	v.SetDefault("db.log_level", DefaultDBLogLevel)
	v.SetDefault("db.slow_threshold", DefaultSlowThreshold)
}
