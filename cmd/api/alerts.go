package main

import (
	"fmt"

	"ecofin/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	alertDays      int
	alertDryRun    bool
	alertTestEmail string
)

var sendAlertsCmd = &cobra.Command{
	Use:   "send-alerts",
	Short: "Email experts about upcoming work permit, visa and residence appointments",
	Long: `Finds workers with a work permit, visa interview or residence permit
appointment exactly --days days from today and emails the assigned expert,
or alerts.recipient when no expert is set.

Suitable for a daily cron job when alerts.enabled is off.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		days := a.cfg.Alerts.DaysAhead
		if cmd.Flags().Changed("days") {
			days = alertDays
		}
		res, err := a.alertService.SendAppointmentAlerts(cmd.Context(), service.SystemActor, service.AlertOptions{
			DaysAhead: days,
			DryRun:    alertDryRun,
			TestEmail: alertTestEmail,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, al := range res.Alerts {
			state := "sent"
			switch {
			case al.Error != "":
				state = "error: " + al.Error
			case res.DryRun:
				state = "dry run"
			}
			fmt.Fprintf(out, "%s  %-16s  %-30s  %-25s  %s\n", al.Date, al.Kind, al.Worker, al.Recipient, state)
		}
		a.log.Info("Appointment alerts finished",
			zap.String("date", res.Date),
			zap.Int("sent", res.Sent),
			zap.Int("errors", res.Errors),
		)
		if res.Errors > 0 {
			return fmt.Errorf("%d of %d alerts failed", res.Errors, len(res.Alerts))
		}
		return nil
	},
}

func init() {
	sendAlertsCmd.Flags().IntVar(&alertDays, "days", 2, "Days ahead to look for appointments (default alerts.days_ahead)")
	sendAlertsCmd.Flags().BoolVar(&alertDryRun, "dry-run", false, "List the alerts without sending email")
	sendAlertsCmd.Flags().StringVar(&alertTestEmail, "test-email", "", "Send every alert to this address instead")
	rootCmd.AddCommand(sendAlertsCmd)
}
