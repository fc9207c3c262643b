package mq

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/yeisme/yukumo/pkg/configs"
)

// DefaultGoChannelBuffer 进程内订阅通道的缓冲区大小.
const DefaultGoChannelBuffer = 256

func init() {
	RegisterFactory(configs.MQTypeGoChannel, goChannelFactory)
}

// goChannelFactory 创建进程内 Pub/Sub，同一实例同时作为 Publisher 与 Subscriber.
// 没有订阅者时消息直接丢弃，CLI 单次运行不需要持久化.
func goChannelFactory(
	_ context.Context,
	_ *configs.MQConfig,
	logger watermill.LoggerAdapter) (
	message.Publisher, message.Subscriber, error) {
	ps := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            DefaultGoChannelBuffer,
		BlockPublishUntilSubscriberAck: false,
	}, logger)

	return ps, ps, nil
}
