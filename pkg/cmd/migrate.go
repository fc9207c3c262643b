package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yeisme/yukumo/pkg/configs"
	"github.com/yeisme/yukumo/pkg/internal/migrate"
	"github.com/yeisme/yukumo/pkg/internal/service"
	"github.com/yeisme/yukumo/pkg/internal/storage"
)

var (
	migrateTo   int
	migrateJSON bool

	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "catalog schema migrations",
	}

	migrateUpCmd = &cobra.Command{
		Use:   "up",
		Short: "apply pending migrations (up to --to when given)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *migrate.Manager) error {
				target := migrateTo
				if target == 0 {
					target = m.Latest()
				}

				done, err := m.UpTo(ctx, target)
				for _, mg := range done {
					fmt.Fprintf(cmd.OutOrStdout(), "applied %d %s\n", mg.Version, mg.Name)
				}

				if err != nil {
					return err
				}

				if len(done) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "catalog schema is up to date")
				}

				return nil
			})
		},
	}

	migrateStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "print applied and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd.Context(), func(ctx context.Context, m *migrate.Manager) error {
				st, err := service.Status(ctx, m)
				if err != nil {
					return err
				}

				if migrateJSON {
					return printJSON(cmd.OutOrStdout(), st)
				}

				w := cmd.OutOrStdout()
				fmt.Fprintf(w, "schema version %d of %d\n", st.Current, st.Latest)

				for _, a := range st.Applied {
					fmt.Fprintf(w, "  [x] %d %s (%s)\n", a.Version, a.Name, a.AppliedAt.Format(time.RFC3339))
				}

				for _, p := range st.Pending {
					fmt.Fprintf(w, "  [ ] %d %s\n", p.Version, p.Name)
				}

				if st.Unfingerprinted > 0 {
					fmt.Fprintf(w, "%d record(s) have no fingerprint: content changes are not detected "+
						"until they are re-uploaded once with `put --refingerprint`\n", st.Unfingerprinted)
				}

				return nil
			})
		},
	}
)

// withMigrator 只打开数据库与事件队列，不经过 service.Open 的自动迁移.
func withMigrator(ctx context.Context, fn func(context.Context, *migrate.Manager) error) error {
	cfg := configs.GetConfig()

	mgr, err := storage.Open(ctx, cfg)
	if err != nil {
		return err
	}

	m, err := service.NewMigrator(mgr.DB.GetDB(), cfg, service.NewEmitter(cfg, mgr))
	if err != nil {
		return errors.Join(err, mgr.Close())
	}

	return errors.Join(fn(ctx, m), mgr.Close())
}

func registerMigrateCommands() {
	migrateUpCmd.Flags().IntVar(&migrateTo, "to", 0, "target schema version (default latest)")
	migrateStatusCmd.Flags().BoolVar(&migrateJSON, "json", false, "print status as JSON")

	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd)
	rootCmd.AddCommand(migrateCmd)
}
