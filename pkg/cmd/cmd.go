// Package cmd contains the command line applications for the project.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yeisme/yukumo/pkg/configs"
	nlog "github.com/yeisme/yukumo/pkg/log"
	"github.com/yeisme/yukumo/pkg/metrics"
	"github.com/yeisme/yukumo/pkg/tracing"
)

var (
	configPath string
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "yukumo",
		Short: "Upload local files to a block store and keep a catalog of what was uploaded",
		Long: `yukumo scans local paths, uploads files that are new or changed since the last
upload, and records where each file went in a SQL catalog. Re-running over the
same files only uploads what changed.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), 5*time.Second)
			defer cancel()

			return tracing.ShutdownTracer(ctx)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".",
		"config file or directory (falls back to $HOME/Yukumo.toml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	registerPutCommand()
	registerQueryCommand()
	registerGetCommand()
	registerMigrateCommands()
	registerWatchCommand()
	registerServeCommand()
	registerConfigsCommands()
	registerBackendCommands()
	registerCacheCommands()
	registerEventsCommands()
}

// setup 加载配置并初始化日志、追踪与指标.
func setup(cmd *cobra.Command, _ []string) error {
	if err := configs.InitConfig(configPath); err != nil {
		return err
	}

	cfg := configs.GetConfig()
	if debug {
		cfg.Server.Debug = true
		cfg.Log.Level = "debug"
	}

	nlog.Init()

	if err := tracing.InitTracer(cmd.Context(), cfg.Tracing); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	if err := metrics.InitMetrics(cfg.Metrics); err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	nlog.Logger().Debug().Str("config", configs.GetViper().ConfigFileUsed()).Msg("configuration loaded")

	return nil
}

// Execute runs the root command. SIGINT/SIGTERM cancel the command context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}
