package cmd

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/spf13/cobra"

	"github.com/yeisme/yukumo/pkg/configs"
	mqc "github.com/yeisme/yukumo/pkg/internal/storage/mq"
	nlog "github.com/yeisme/yukumo/pkg/log"
	"github.com/yeisme/yukumo/pkg/queue"
)

var (
	eventTopics []string

	eventsCmd = &cobra.Command{
		Use:   "events",
		Short: "inspect published sync events",
	}

	eventsTailCmd = &cobra.Command{
		Use:   "tail",
		Short: "print events as they are published",
		Long: `Subscribe to the configured message queue and print one line per event until
interrupted. The in-process gochannel queue only carries events inside a single
process, so tail needs mq.type nats or redis.`,
		RunE: runEventsTail,
	}
)

func registerEventsCommands() {
	eventsTailCmd.Flags().StringSliceVarP(&eventTopics, "topic", "t", queue.AllTopics, "topics to subscribe to")

	eventsCmd.AddCommand(eventsTailCmd)
	rootCmd.AddCommand(eventsCmd)
}

func runEventsTail(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := configs.GetConfig()
	logger := nlog.Component("events")

	if cfg.MQ.Type == configs.MQTypeGoChannel {
		return errors.New("events tail needs an out-of-process queue (mq.type nats or redis)")
	}

	client, err := mqc.New(ctx, cfg.MQ, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	merged := make(chan *message.Message)

	for _, topic := range eventTopics {
		ch, err := client.Subscribe(ctx, topic)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}

		go func() {
			for msg := range ch {
				select {
				case merged <- msg:
				case <-ctx.Done():
					msg.Nack()
					return
				}
			}
		}()
	}

	logger.Info().Strs("topics", eventTopics).Msg("tailing events")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-merged:
			line, err := queue.Describe(msg)
			if err != nil {
				logger.Warn().Err(err).Str("uuid", msg.UUID).Msg("skip undecodable event")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}

			msg.Ack()
		}
	}
}
