package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/yukumo/pkg/app"
	"github.com/yeisme/yukumo/pkg/configs"
	"github.com/yeisme/yukumo/pkg/internal/service"
)

var (
	getOutDir string

	getCmd = &cobra.Command{
		Use:   "get <file_name>",
		Short: "download a catalogued file from the upload backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			rt, err := app.OpenRuntime(ctx, configs.GetConfig())
			if err != nil {
				return err
			}
			defer rt.Storage.Close()

			dst, n, err := service.NewCatalogService(rt).Download(ctx, args[0], getOutDir)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d bytes)\n", dst, n)

			return nil
		},
	}
)

func registerGetCommand() {
	getCmd.Flags().StringVarP(&getOutDir, "out-dir", "o", ".", "directory to write the file into")

	rootCmd.AddCommand(getCmd)
}
