package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/yeisme/yukumo/pkg/app"
	"github.com/yeisme/yukumo/pkg/configs"
	"github.com/yeisme/yukumo/pkg/internal/reconcile"
	"github.com/yeisme/yukumo/pkg/internal/service"
	"github.com/yeisme/yukumo/pkg/internal/types"
	"github.com/yeisme/yukumo/pkg/internal/watch"
	nlog "github.com/yeisme/yukumo/pkg/log"
	"github.com/yeisme/yukumo/pkg/metrics"
)

var (
	watchInitial bool

	watchCmd = &cobra.Command{
		Use:   "watch [path]...",
		Short: "upload files as they change",
		Long: `Watch the given paths (or sync.roots) and reconcile changed files after they
settle for scheduler.debounce. A full resync also runs on scheduler.resync_cron.
Stops on SIGINT or SIGTERM.`,
		RunE: runWatch,
	}
)

func registerWatchCommand() {
	watchCmd.Flags().BoolVar(&watchInitial, "initial", true, "run a full sync before watching")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := configs.GetConfig()
	logger := nlog.Component("watch")

	if err := metrics.Serve(ctx, cfg.Metrics); err != nil {
		return err
	}

	rt, err := app.OpenRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Storage.Close()

	svc := service.NewSyncService(rt)

	roots, err := svc.Roots(args)
	if err != nil {
		return err
	}

	w, err := watch.New(watch.Options{
		Recursive:  cfg.Sync.Recursive,
		SkipHidden: cfg.Sync.SkipHidden,
		Debounce:   cfg.Scheduler.Debounce,
	})
	if err != nil {
		return err
	}

	if err := w.Add(roots...); err != nil {
		return err
	}

	sched, err := app.NewScheduler(ctx, cfg, rt, roots)
	if err != nil {
		return err
	}

	if sched != nil {
		sched.Start()

		defer func() {
			if err := sched.Stop(); err != nil {
				logger.Warn().Err(err).Msg("stop scheduler")
			}
		}()
	}

	batch := func(ctx context.Context, paths []string) {
		res, err := svc.Put(ctx, paths, service.PutOptions{})
		if err != nil {
			logger.Error().Err(err).Strs("paths", paths).Msg("sync failed")
			return
		}

		if res.ScanErr != nil {
			logger.Warn().Err(res.ScanErr).Msg("some paths could not be scanned")
		}

		resp := types.NewSyncResponse(res)
		if resp.Counts[reconcile.StatusSkipped.String()] == len(resp.Outcomes) {
			return
		}

		printSync(cmd.OutOrStdout(), resp)
	}

	if watchInitial {
		batch(ctx, roots)
	}

	logger.Info().Strs("roots", roots).Int("dirs", len(w.Dirs())).Msg("watching for changes")

	return w.Run(ctx, batch)
}
