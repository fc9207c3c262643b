package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/yukumo/pkg/configs"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "inspect the loaded configuration",
}

func registerConfigsCommands() {
	configCmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "print the config file in use",
			Run: func(cmd *cobra.Command, _ []string) {
				used := configs.GetViper().ConfigFileUsed()
				if used == "" {
					used = "(none: defaults and " + configs.EnvPrefix + "_* environment)"
				}

				fmt.Fprintln(cmd.OutOrStdout(), used)
			},
		},
		&cobra.Command{
			Use:   "debug",
			Short: "print the merged configuration with secrets hidden",
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := printJSON(cmd.OutOrStdout(), configs.GetConfig().Redacted()); err != nil {
					return err
				}

				// stderr，不影响 JSON 输出
				fmt.Fprintf(cmd.ErrOrStderr(), "note: sync.staleness=%s only applies to records with a fingerprint; "+
					"records written before schema version 3 need one `put --refingerprint` (see `migrate status`)\n",
					configs.GetConfig().Sync.Staleness)

				return nil
			},
		},
	)

	rootCmd.AddCommand(configCmd)
}
