package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yeisme/yukumo/pkg/configs"
	dbc "github.com/yeisme/yukumo/pkg/internal/storage/db"
	kvc "github.com/yeisme/yukumo/pkg/internal/storage/kv"
	mqc "github.com/yeisme/yukumo/pkg/internal/storage/mq"
)

const pingTimeout = 5 * time.Second

// backendCommand 创建 `<name> ls` 与 `<name> ping` 子命令.
// ls 列出编译进二进制的类型并标出当前配置的那个；ping 按配置建立一次连接.
func backendCommand(name, short string, current func(*configs.AppConfig) string, registered func() []string,
	ping func(ctx context.Context, cfg *configs.AppConfig) error,
) *cobra.Command {
	parent := &cobra.Command{Use: name, Short: short}

	parent.AddCommand(&cobra.Command{
		Use:     "ls",
		Short:   "list registered " + name + " types",
		Aliases: []string{"list", "l"},
		Run: func(cmd *cobra.Command, _ []string) {
			active := current(configs.GetConfig())
			w := cmd.OutOrStdout()

			fmt.Fprintf(w, "Registered %s types:\n", name)

			for _, t := range registered() {
				mark := " "
				if t == active {
					mark = "*"
				}

				fmt.Fprintf(w, " %s %s\n", mark, t)
			}
		},
	})

	parent.AddCommand(&cobra.Command{
		Use:   "ping",
		Short: "connect to the configured " + name + " backend",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), pingTimeout)
			defer cancel()

			cfg := configs.GetConfig()
			if err := ping(ctx, cfg); err != nil {
				return fmt.Errorf("%s %s: %w", name, current(cfg), err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: ok\n", name, current(cfg))

			return nil
		},
	})

	return parent
}

func stringsOf[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}

	return out
}

// registerBackendCommands 注册 db、kv、mq 子命令.
func registerBackendCommands() {
	rootCmd.AddCommand(
		backendCommand("db", "catalog database backends",
			func(c *configs.AppConfig) string { return string(c.DB.Type) },
			func() []string { return stringsOf(dbc.GetRegisteredDBTypes()) },
			func(ctx context.Context, c *configs.AppConfig) error {
				client, err := dbc.Open(ctx, &c.DB, false)
				if err != nil {
					return err
				}
				defer client.Close()

				return client.Ping(ctx)
			}),
		backendCommand("kv", "fingerprint cache backends",
			func(c *configs.AppConfig) string { return string(c.KV.Type) },
			func() []string {
				return append(stringsOf(kvc.GetRegisteredKVTypes()), string(configs.KVTypeGroupcache))
			},
			func(ctx context.Context, c *configs.AppConfig) error {
				if c.KV.Type == configs.KVTypeGroupcache {
					// 进程内组，没有可连接的服务端
					return nil
				}

				client, err := kvc.NewKVClient(ctx, c.KV)
				if err != nil {
					return err
				}
				defer client.Close()

				_, err = client.Exists(ctx, "yukumo:ping")

				return err
			}),
		backendCommand("mq", "event queue backends",
			func(c *configs.AppConfig) string { return string(c.MQ.Type) },
			func() []string { return stringsOf(mqc.GetRegisteredMQTypes()) },
			func(ctx context.Context, c *configs.AppConfig) error {
				client, err := mqc.New(ctx, c.MQ, nil)
				if err != nil {
					return err
				}

				return client.Close()
			}),
	)
}
