package main

import (
	"fmt"

	service "github.com/okian/tnvs/internal/app"
	"github.com/spf13/cobra"
)

func newPayoutsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payouts",
		Short: "Payout maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "process",
		Short: "Execute every approved payout once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			return c.withService(ctx, func(svc *service.Service) error {
				res, err := svc.ProcessPayouts(ctx)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if _, err := fmt.Fprintf(w, "completed %d, failed %d, skipped %d\n",
					len(res.Completed), len(res.Failed), len(res.Skipped)); err != nil {
					return err
				}
				for _, f := range res.Failed {
					if _, err := fmt.Fprintf(w, "  %s: %s\n", f.PayoutID, f.Reason); err != nil {
						return err
					}
				}
				return nil
			})
		},
	})
	return cmd
}
