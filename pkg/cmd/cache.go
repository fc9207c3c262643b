package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yeisme/yukumo/pkg/cache"
	"github.com/yeisme/yukumo/pkg/configs"
	"github.com/yeisme/yukumo/pkg/internal/scan"
	kvc "github.com/yeisme/yukumo/pkg/internal/storage/kv"
)

var (
	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "fingerprint cache commands",
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "drop cached content fingerprints so the next sync rehashes every file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := configs.GetConfig()
			if !cfg.KV.Shared() {
				fmt.Fprintf(cmd.OutOrStdout(), "kv.type is %s: fingerprints live only inside a running process\n", cfg.KV.Type)
				return nil
			}

			client, err := kvc.NewKVClient(cmd.Context(), cfg.KV)
			if err != nil {
				return err
			}
			defer client.Close()

			n, err := cache.NewCache(client).Purge(cmd.Context(), scan.CacheKeyPrefix+"*")
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d fingerprint(s)\n", n)

			return err
		},
	}
)

func registerCacheCommands() {
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
