package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/yukumo/pkg/app"
	"github.com/yeisme/yukumo/pkg/configs"
	"github.com/yeisme/yukumo/pkg/internal/model"
	"github.com/yeisme/yukumo/pkg/internal/service"
	"github.com/yeisme/yukumo/pkg/internal/types"
)

var (
	queryContains bool
	queryPrune    bool
	queryJSON     bool

	queryCmd = &cobra.Command{
		Use:   "query [prefix]",
		Short: "search the catalog by file name",
		Long: `List catalog records whose file name starts with prefix (or contains it with
--contains). Without a prefix every record is listed. --prune deletes the
matched records whose original local file no longer exists.`,
		Aliases: []string{"q", "ls"},
		Args:    cobra.MaximumNArgs(1),
		RunE:    runQuery,
	}
)

func registerQueryCommand() {
	queryCmd.Flags().BoolVar(&queryContains, "contains", false, "match file names containing prefix")
	queryCmd.Flags().BoolVar(&queryPrune, "prune", false, "delete matched records whose origin file is gone")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "print records as JSON")

	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := app.OpenRuntime(ctx, configs.GetConfig())
	if err != nil {
		return err
	}
	defer rt.Storage.Close()

	svc := service.NewCatalogService(rt)

	var recs []model.FileRecord
	if len(args) == 0 {
		recs, err = svc.List(ctx, 0)
	} else {
		recs, err = svc.Query(ctx, args[0], queryContains)
	}

	if err != nil {
		return err
	}

	if queryPrune {
		return prune(cmd, svc, recs)
	}

	if queryJSON {
		if recs == nil {
			recs = []model.FileRecord{}
		}

		return printJSON(cmd.OutOrStdout(), types.ListFilesResponse{Files: recs, Total: len(recs)})
	}

	printRecords(cmd.OutOrStdout(), recs)

	return nil
}

func prune(cmd *cobra.Command, svc *service.CatalogService, recs []model.FileRecord) error {
	gone := service.Missing(recs)

	n, err := svc.Prune(cmd.Context(), gone)

	if queryJSON {
		if gone == nil {
			gone = []model.FileRecord{}
		}

		if jerr := printJSON(cmd.OutOrStdout(), types.ListFilesResponse{Files: gone, Total: n}); jerr != nil {
			return jerr
		}
	} else {
		printRecords(cmd.OutOrStdout(), gone)
		fmt.Fprintf(cmd.OutOrStdout(), "pruned %d of %d record(s)\n", n, len(recs))
	}

	return err
}
