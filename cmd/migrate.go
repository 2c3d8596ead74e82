package main

import (
	"errors"
	"fmt"

	"github.com/okian/tnvs/internal/adapters/repository/sqlstore"
	"github.com/okian/tnvs/pkg/logger"
	"github.com/spf13/cobra"
)

var errMemoryStore = errors.New("store_backend is memory; nothing to migrate")

func newMigrateCmd(c *cli) *cobra.Command {
	var target int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations to the configured SQL store",
		Long: `Apply the embedded schema migrations to store_dsn.

  --version -1 (default) migrates to the latest schema
  --version 0 rolls every migration back
  --version N moves to schema version N`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.StoreBackend == "memory" {
				return errMemoryStore
			}
			backend, err := sqlstore.ParseBackend(c.cfg.StoreBackend)
			if err != nil {
				return err
			}
			res, err := sqlstore.Migrate(cmd.Context(), backend, c.cfg.StoreDSN, target)
			if err != nil {
				return err
			}
			c.log.Info(cmd.Context(), "migration finished",
				logger.String("backend", string(backend)),
				logger.Int("from", int(res.From)),
				logger.Int("to", int(res.To)))

			if !res.Changed {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema already at version %d\n", res.To)
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema migrated from version %d to %d\n", res.From, res.To)
			return err
		},
	}
	cmd.Flags().IntVar(&target, "version", -1, "target schema version")
	return cmd
}
