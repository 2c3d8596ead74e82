package main

import (
	service "github.com/okian/tnvs/internal/app"
	"github.com/okian/tnvs/internal/domain/ledger"
	"github.com/okian/tnvs/internal/report"
	"github.com/spf13/cobra"
)

func newLedgerCmd(c *cli) *cobra.Command {
	var (
		operatorID string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Print an operator's transactions and wallet balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withService(ctx, func(svc *service.Service) error {
				txs, err := svc.Transactions(ctx, operatorID, ledger.Filter{Limit: limit})
				if err != nil {
					return err
				}
				wallet, err := svc.Wallet(ctx, operatorID)
				if err != nil {
					return err
				}
				return report.WriteLedger(cmd.OutOrStdout(), wallet, txs)
			})
		},
	}
	cmd.Flags().StringVar(&operatorID, "operator", "", "operator id")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum transactions to print (0 prints all)")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}
