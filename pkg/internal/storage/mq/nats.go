package mq

import (
	"context"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/yeisme/yukumo/pkg/configs"
)

const (
	natsDrainTimeout   = 30 * time.Second
	natsFlusherTimeout = 10 * time.Second
)

func init() {
	RegisterFactory(configs.MQTypeNATS, natsFactory)
}

// natsConnOptions 连接与认证选项.jwt 优先于 user/password.
func natsConnOptions(cfg configs.MQNATSConfig) []nc.Option {
	opts := []nc.Option{
		nc.Name(cfg.ClientName),
		nc.MaxReconnects(cfg.MaxReconnects),
		nc.ReconnectWait(cfg.ReconnectWait),
		nc.PingInterval(cfg.PingInterval),
		nc.ReconnectBufSize(cfg.ReconnectBuf),
		nc.DrainTimeout(natsDrainTimeout),
		nc.FlusherTimeout(natsFlusherTimeout),
		nc.RetryOnFailedConnect(!cfg.StrictConnect),
	}

	switch {
	case cfg.JWT != "":
		opts = append(opts, nc.UserJWTAndSeed(cfg.JWT, cfg.NKey))
	case cfg.User != "":
		opts = append(opts, nc.UserInfo(cfg.User, cfg.Password))
	}

	return opts
}

func natsURL(cfg configs.MQNATSConfig) string {
	if len(cfg.ClusterURLs) > 0 {
		return strings.Join(cfg.ClusterURLs, ",")
	}

	return cfg.URL
}

// natsFactory 创建 NATS Publisher 与 Subscriber，各自持有连接.
// JetStream 开启时事件落盘，tail 晚于发布启动也能读到.
func natsFactory(
	_ context.Context,
	cfg *configs.MQConfig,
	logger watermill.LoggerAdapter) (
	message.Publisher, message.Subscriber, error) {
	n := cfg.NATS
	opts := natsConnOptions(n)
	marshaler := &nats.JSONMarshaler{}

	js := nats.JetStreamConfig{Disabled: !n.JetStream}
	if n.JetStream {
		js.AutoProvision = n.AutoProvision
		js.TrackMsgId = n.TrackMsgID
		js.AckAsync = n.AckAsync
		js.DurablePrefix = n.DurablePrefix
	}

	logger.Debug("nats mq", watermill.LogFields{
		"url":         natsURL(n),
		"jetstream":   n.JetStream,
		"queue_group": n.QueueGroup,
	})

	pub, err := nats.NewPublisher(nats.PublisherConfig{
		URL:         natsURL(n),
		NatsOptions: opts,
		JetStream:   js,
		Marshaler:   marshaler,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	sub, err := nats.NewSubscriber(nats.SubscriberConfig{
		URL:              natsURL(n),
		NatsOptions:      opts,
		JetStream:        js,
		Unmarshaler:      marshaler,
		QueueGroupPrefix: n.QueueGroup,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, nil, err
	}

	return pub, sub, nil
}
