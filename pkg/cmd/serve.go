package cmd

import (
	"github.com/spf13/cobra"

	"github.com/yeisme/yukumo/pkg/app"
	"github.com/yeisme/yukumo/pkg/configs"
)

var (
	servePort int

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "serve the catalog and sync HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configs.GetConfig()
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = servePort
			}

			a, err := app.NewApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			return a.Run(cmd.Context())
		},
	}
)

func registerServeCommand() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", configs.DefaultPort, "listen port (default server.port)")

	rootCmd.AddCommand(serveCmd)
}
