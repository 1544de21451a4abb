package main

import (
	"ecofin/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var syncPaymentsCmd = &cobra.Command{
	Use:   "sync-payments",
	Short: "Pull collected payments from SmartBill once and exit",
	Long: `Fetches the payments registered in SmartBill since the last successful
sync (or the configured lookback) and updates the payment status of local invoices.

Suitable for a cron job when billing.sync_enabled is off.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.paymentService.SyncPayments(cmd.Context(), service.SystemActor)
		if err != nil {
			return err
		}
		a.log.Info("Payment sync finished",
			zap.Int("payments_found", res.PaymentsFound),
			zap.Int("invoices_updated", res.InvoicesUpdated),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncPaymentsCmd)
}
