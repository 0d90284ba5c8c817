package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"korner-support-service/internal/app"
	"korner-support-service/internal/middleware"
)

func serveCommand(c *cli) *cobra.Command {
	var withWorkers bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()
			return app.RunServer(ctx, c.cfg, withWorkers)
		},
	}
	cmd.Flags().BoolVar(&withWorkers, "with-workers", false, "also run alert workers in this process")
	return cmd
}

func workersCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "workers",
		Short: "start the alert workers and the re-delivery scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()
			return app.RunWorkers(ctx, c.cfg)
		},
	}
}

func migrateCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "apply or roll back database migrations",
	}
	run := func(down bool) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			n, err := app.Migrate(cmd.Context(), c.cfg, down)
			if err != nil {
				return err
			}
			logrus.Infof("[migrate] applied %d migrations (down=%v)", n, down)
			return nil
		}
	}
	cmd.AddCommand(&cobra.Command{Use: "up", Short: "apply pending migrations", RunE: run(false)})
	cmd.AddCommand(&cobra.Command{Use: "down", Short: "roll back all migrations", RunE: run(true)})
	return cmd
}

// tokenCommand выпускает access token для локальной отладки.
func tokenCommand(c *cli) *cobra.Command {
	var (
		userID int64
		role   string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "issue a signed access token (dev only)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.IsProduction() {
				return fmt.Errorf("token issuing is disabled in %s", c.cfg.Env)
			}
			tok, err := middleware.IssueToken(c.cfg.JWT.Secret, userID, role, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 1, "userId claim")
	cmd.Flags().StringVar(&role, "role", "", "role claim (admin, support)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
