package main

import (
	"fmt"

	"github.com/okian/tnvs/internal/adapters/export"
	service "github.com/okian/tnvs/internal/app"
	"github.com/okian/tnvs/internal/domain/ledger"
	"github.com/okian/tnvs/pkg/logger"
	"github.com/spf13/cobra"
)

func newExportCmd(c *cli) *cobra.Command {
	var operatorID, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an operator's ledger to a Parquet file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withService(ctx, func(svc *service.Service) error {
				txs, err := svc.Transactions(ctx, operatorID, ledger.Filter{})
				if err != nil {
					return err
				}
				n, err := export.WriteLedgerFile(out, txs)
				if err != nil {
					return err
				}
				c.log.Info(ctx, "ledger exported",
					logger.String("operatorID", operatorID),
					logger.String("path", out),
					logger.Int("rows", n))
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d transactions to %s\n", n, out)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&operatorID, "operator", "", "operator id")
	cmd.Flags().StringVar(&out, "out", "", "output Parquet file")
	_ = cmd.MarkFlagRequired("operator")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}
