// Package queue 发布对账与迁移事件.
//
// 概览
//   - 采用发布/订阅模型，下游（通知、审计、索引）订阅上传结果
//   - 统一的消息封装：Message[Payload] = Header + Payload
//   - 主题常量见 topics.go，负载结构体见 payloads.go
//   - JSON 编解码（bytedance/sonic）
//
// 消息信封 JSON 结构
//
//	{
//	  "header": {
//	    "topic": "yk.file.uploaded",
//	    "producer": "yukumo",
//	    "occurred_at": "2025-01-02T03:04:05.123456Z",
//	    "version": "v1"
//	  },
//	  "payload": { "run_id": "01J...", "file": { "file_name": "a.txt", ... } }
//	}
//
// 发布/订阅示例
//
//	msg, _ := queue.NewWatermillMessage(queue.TopicFileUploaded, payload, queue.WithProducer("yukumo"))
//	_ = client.Publish(ctx, queue.TopicFileUploaded, msg)
//
//	ch, _ := client.Subscribe(ctx, queue.TopicFileUploaded)
//	for m := range ch {
//		env, _ := queue.ParseWatermillMessage[queue.FileUploadedPayload](m)
//		// env.Header / env.Payload
//		m.Ack()
//	}
//
// 事件只是通知：发布失败只记录日志，不影响对账结果.
package queue

import (
	"time"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
)

// PayloadVersionV1 负载结构的版本，不兼容变更时递增.
const PayloadVersionV1 = "v1"

// NewEventHeader 创建事件头.
func NewEventHeader(topic string, opts ...func(*EventHeader)) EventHeader {
	hdr := EventHeader{
		Topic:      topic,
		OccurredAt: time.Now().UTC(),
		Version:    PayloadVersionV1,
	}
	for _, opt := range opts {
		opt(&hdr)
	}

	return hdr
}

// WithTraceID 设置 TraceID.
func WithTraceID(id string) func(*EventHeader) { return func(h *EventHeader) { h.TraceID = id } }

// WithProducer 设置 Producer.
func WithProducer(p string) func(*EventHeader) { return func(h *EventHeader) { h.Producer = p } }

// NewWatermillMessage 把负载封装为信封并编码.头部字段同时写入 metadata，订阅方无需解码即可路由.
func NewWatermillMessage[T any](topic string, payload T, opts ...func(*EventHeader)) (*message.Message, error) {
	header := NewEventHeader(topic, opts...)

	data, err := sonic.Marshal(Message[T]{Header: header, Payload: payload})
	if err != nil {
		return nil, err
	}

	msg := message.NewMessage(watermill.NewUUID(), data)

	for k, v := range map[string]string{
		"topic":       topic,
		"trace_id":    header.TraceID,
		"producer":    header.Producer,
		"version":     header.Version,
		"occurred_at": header.OccurredAt.Format(time.RFC3339Nano),
	} {
		if v != "" {
			msg.Metadata.Set(k, v)
		}
	}

	return msg, nil
}

// ParseWatermillMessage 解出信封.
func ParseWatermillMessage[T any](msg *message.Message) (Message[T], error) {
	var m Message[T]

	err := sonic.Unmarshal(msg.Payload, &m)

	return m, err
}
