package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/yukumo/pkg/app"
	"github.com/yeisme/yukumo/pkg/configs"
	"github.com/yeisme/yukumo/pkg/internal/reconcile"
	"github.com/yeisme/yukumo/pkg/internal/service"
	"github.com/yeisme/yukumo/pkg/internal/types"
	"github.com/yeisme/yukumo/pkg/metrics"
)

var (
	putDryRun        bool
	putWorkers       int
	putJSON          bool
	putRecursive     bool
	putRefingerprint bool

	putCmd = &cobra.Command{
		Use:   "put [path]...",
		Short: "upload new or changed files and record them in the catalog",
		Long: `Scan the given files and directories (or sync.roots when none are given),
upload every file that is missing from the catalog or changed since its last
upload, and record the result. Exits non-zero when any file failed.`,
		RunE: runPut,
	}
)

func registerPutCommand() {
	putCmd.Flags().BoolVarP(&putDryRun, "dry-run", "n", false, "print what would be uploaded without uploading")
	putCmd.Flags().IntVarP(&putWorkers, "workers", "w", 0, "concurrent uploads (default sync.workers)")
	putCmd.Flags().BoolVar(&putJSON, "json", false, "print the result as JSON")
	putCmd.Flags().BoolVarP(&putRecursive, "recursive", "r", true, "descend into subdirectories (default sync.recursive)")
	putCmd.Flags().BoolVar(&putRefingerprint, "refingerprint", false,
		"re-upload files whose catalog record has no fingerprint (written before schema version 3)")

	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := configs.GetConfig()

	if err := metrics.Serve(ctx, cfg.Metrics); err != nil {
		return err
	}

	rt, err := app.OpenRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Storage.Close()

	opts := service.PutOptions{DryRun: putDryRun, Workers: putWorkers, Refingerprint: putRefingerprint}
	if cmd.Flags().Changed("recursive") {
		opts.Recursive = &putRecursive
	}

	res, err := service.NewSyncService(rt).Put(ctx, args, opts)
	if err != nil {
		return err
	}

	resp := types.NewSyncResponse(res)

	if putJSON {
		if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
			return err
		}
	} else {
		printSync(cmd.OutOrStdout(), resp)
	}

	return putError(res)
}

// putError 有文件失败或部分路径无法读取时返回错误，使退出码非零.
func putError(res *service.PutResult) error {
	var errs []error

	if res.ScanErr != nil {
		errs = append(errs, fmt.Errorf("scan: %w", res.ScanErr))
	}

	if res.Report != nil {
		if n := res.Report.Counts()[reconcile.StatusFailed]; n > 0 {
			errs = append(errs, fmt.Errorf("%d file(s) failed to upload", n))
		}
	}

	for _, d := range res.Decisions {
		if d.Action == reconcile.ActionError {
			errs = append(errs, fmt.Errorf("%s: %w", d.File.Path, d.Err))
		}
	}

	return errors.Join(errs...)
}
