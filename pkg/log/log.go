// Package log 提供基于 zerolog 的日志工具，支持 stderr 和文件输出（lumberjack 轮转）.
//
// CLI 的逐文件结果写到 stdout，日志始终写到 stderr，二者互不干扰.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/natefinch/lumberjack"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yeisme/yukumo/pkg/configs"
)

var (
	logger   zerolog.Logger
	initOnce sync.Once
)

// Init 按全局配置初始化 logger，只生效一次.
func Init() {
	initOnce.Do(func() {
		cfg := configs.GetConfig()

		logger = New(cfg.Log, cfg.Server.Debug, os.Stderr)
		log.Logger = logger

		if cfg.Server.Debug {
			gin.SetMode(gin.DebugMode)
		} else {
			gin.SetMode(gin.ReleaseMode)
		}
	})
}

// New 创建 logger.out 收到 console 或 json 格式的输出，enable_file 时另写一份 json 到轮转文件.
func New(cfg configs.LogConfig, debug bool, out io.Writer) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		if cfg.Level != "" {
			fmt.Fprintf(os.Stderr, "invalid log level %q, using info\n", cfg.Level)
		}

		lvl = zerolog.InfoLevel
	}

	if cfg.Format != configs.LogFormatJSON {
		out = zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = out
			w.TimeFormat = time.Kitchen
		})
	}

	if cfg.EnableFile {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}

	zctx := zerolog.New(out).Level(lvl).With().Timestamp()
	if debug {
		zctx = zctx.Caller()
	}

	return zctx.Logger()
}

// Logger 返回全局 logger，首次使用时初始化.
func Logger() *zerolog.Logger {
	Init()

	return &logger
}

// Component 返回带 component 字段的子 logger，例如 reconcile、migrate、notion.
func Component(name string) *zerolog.Logger {
	l := Logger().With().Str("component", name).Logger()

	return &l
}

// Nop 返回丢弃所有输出的 logger.
func Nop() *zerolog.Logger {
	l := zerolog.Nop()

	return &l
}

// GinWriter 把 gin 的文本输出转为 zerolog 事件.
type GinWriter struct {
	logger *zerolog.Logger
	level  zerolog.Level
}

func NewGinWriter(logger *zerolog.Logger, level zerolog.Level) *GinWriter {
	return &GinWriter{logger: logger, level: level}
}

func (w *GinWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}

	lvl := w.level
	if lvl < zerolog.WarnLevel && strings.Contains(msg, "[WARNING]") {
		lvl = zerolog.WarnLevel
	}

	w.logger.WithLevel(lvl).Str("source", "gin").Msg(strings.TrimPrefix(msg, "[GIN-debug] "))

	return len(p), nil
}
