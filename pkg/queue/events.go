package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/yukumo/pkg/configs"
	nlog "github.com/yeisme/yukumo/pkg/log"
)

// Publisher 发布消息，storage/mq.Client 满足该接口.
type Publisher interface {
	Publish(ctx context.Context, topic string, msgs ...*message.Message) error
}

// Publish 构造并发布单条事件.
func Publish[T any](ctx context.Context, pub Publisher, topic string, payload T, opts ...func(*EventHeader)) error {
	msg, err := NewWatermillMessage(topic, payload, opts...)
	if err != nil {
		return err
	}

	msg.SetContext(ctx)

	return pub.Publish(ctx, topic, msg)
}

// ParseFileUploaded 解析 yk.file.uploaded / yk.file.updated.
func ParseFileUploaded(msg *message.Message) (Message[FileUploadedPayload], error) {
	return ParseWatermillMessage[FileUploadedPayload](msg)
}

// ParseFileFailed 解析 yk.file.failed.
func ParseFileFailed(msg *message.Message) (Message[FileFailedPayload], error) {
	return ParseWatermillMessage[FileFailedPayload](msg)
}

// ParseBatchCompleted 解析 yk.batch.completed.
func ParseBatchCompleted(msg *message.Message) (Message[BatchCompletedPayload], error) {
	return ParseWatermillMessage[BatchCompletedPayload](msg)
}

// ParseMigrationApplied 解析 yk.migration.applied.
func ParseMigrationApplied(msg *message.Message) (Message[MigrationAppliedPayload], error) {
	return ParseWatermillMessage[MigrationAppliedPayload](msg)
}

// Emitter 按配置开关发布事件.pub 为 nil 时全部跳过.发布失败只记录日志.
type Emitter struct {
	pub    Publisher
	cfg    configs.EventsConfig
	logger *zerolog.Logger
}

// NewEmitter 创建事件发布器.
func NewEmitter(pub Publisher, cfg configs.EventsConfig) *Emitter {
	return &Emitter{pub: pub, cfg: cfg, logger: nlog.Component("events")}
}

func (e *Emitter) enabled(topic string) bool {
	if e == nil || e.pub == nil || !e.cfg.Enabled {
		return false
	}

	switch topic {
	case TopicFileUploaded:
		return e.cfg.File.Uploaded
	case TopicFileUpdated:
		return e.cfg.File.Updated
	case TopicFileFailed:
		return e.cfg.File.Failed
	case TopicBatchCompleted:
		return e.cfg.Batch.Completed
	case TopicMigrationApplied:
		return e.cfg.MigrationApplied
	default:
		return false
	}
}

func emit[T any](ctx context.Context, e *Emitter, topic string, payload T) {
	if !e.enabled(topic) {
		return
	}

	opts := []func(*EventHeader){WithProducer(configs.AppName)}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		opts = append(opts, WithTraceID(sc.TraceID().String()))
	}

	if err := Publish(ctx, e.pub, topic, payload, opts...); err != nil {
		e.logger.Warn().Err(err).Str("topic", topic).Msg("publish event failed")
	}
}

// FileUploaded 发布首次上传事件.
func (e *Emitter) FileUploaded(ctx context.Context, p FileUploadedPayload) {
	emit(ctx, e, TopicFileUploaded, p)
}

// FileUpdated 发布更新事件.
func (e *Emitter) FileUpdated(ctx context.Context, p FileUploadedPayload) {
	emit(ctx, e, TopicFileUpdated, p)
}

// FileFailed 发布失败事件.
func (e *Emitter) FileFailed(ctx context.Context, p FileFailedPayload) {
	emit(ctx, e, TopicFileFailed, p)
}

// BatchCompleted 发布批次汇总.
func (e *Emitter) BatchCompleted(ctx context.Context, p BatchCompletedPayload) {
	emit(ctx, e, TopicBatchCompleted, p)
}

// MigrationApplied 发布迁移事件.
func (e *Emitter) MigrationApplied(ctx context.Context, p MigrationAppliedPayload) {
	emit(ctx, e, TopicMigrationApplied, p)
}

// Describe 把事件格式化为一行文本，未知主题返回错误.
func Describe(msg *message.Message) (string, error) {
	topic := msg.Metadata.Get("topic")

	switch topic {
	case TopicFileUploaded, TopicFileUpdated:
		env, err := ParseFileUploaded(msg)
		if err != nil {
			return "", err
		}

		p := env.Payload
		line := fmt.Sprintf("%s %s -> %s", topic, p.File.Path, p.File.FileURL)

		if p.Reason != "" {
			line += " (" + p.Reason + ")"
		}

		return line, nil
	case TopicFileFailed:
		env, err := ParseFileFailed(msg)
		if err != nil {
			return "", err
		}

		return fmt.Sprintf("%s %s: %s: %s", topic, env.Payload.File.Path, env.Payload.Reason, env.Payload.Error), nil
	case TopicBatchCompleted:
		env, err := ParseBatchCompleted(msg)
		if err != nil {
			return "", err
		}

		p := env.Payload
		parts := make([]string, 0, len(p.Counts))

		for _, status := range []string{"uploaded_new", "uploaded_updated", "skipped", "failed"} {
			parts = append(parts, fmt.Sprintf("%s=%d", status, p.Counts[status]))
		}

		return fmt.Sprintf("%s run=%s total=%d %s", topic, p.RunID, p.Total, strings.Join(parts, " ")), nil
	case TopicMigrationApplied:
		env, err := ParseMigrationApplied(msg)
		if err != nil {
			return "", err
		}

		return fmt.Sprintf("%s %d %s (%dms)", topic, env.Payload.Version, env.Payload.Name, env.Payload.DurationMS), nil
	default:
		return "", fmt.Errorf("unknown topic %q", topic)
	}
}
