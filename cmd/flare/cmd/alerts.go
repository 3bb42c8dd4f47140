package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	apiclient "github.com/oncallops/flare/internal/api/client"
)

func alertsCmd() *cobra.Command {
	alertsRoot := &cobra.Command{
		Use:   "alerts",
		Short: "Manage the alert inbox",
		Long: "Query and act on alerts: list the inbox, acknowledge, snooze,\n" +
			"resolve, and view aggregate statistics.",
	}

	alertsRoot.AddCommand(
		alertsListCmd(),
		alertsGetCmd(),
		alertsAckCmd(),
		alertsSnoozeCmd(),
		alertsResolveCmd(),
		alertsStatsCmd(),
	)

	return alertsRoot
}

func alertsListCmd() *cobra.Command {
	var (
		status      string
		minSeverity string
		ruleID      string
		limit       int
		offset      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List alerts",
		Example: `  flare alerts list
  flare alerts list --status firing --min-severity high
  flare alerts list --rule cpu-high --output json`,
		RunE: func(_ *cobra.Command, _ []string) error {
			c := newClient()
			resp, err := c.ListAlerts(context.Background(), &apiclient.ListAlertsParams{
				Status:      status,
				MinSeverity: minSeverity,
				RuleID:      ruleID,
				Limit:       limit,
				Offset:      offset,
			})
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(resp)
			}
			if len(resp.Alerts) == 0 {
				fmt.Println("No alerts found.")
				return nil
			}
			if err := printAlertTable(resp.Alerts); err != nil {
				return err
			}
			fmt.Printf("\n%d of %d alert(s)\n", len(resp.Alerts), resp.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, firing, acknowledged, snoozed, resolved)")
	cmd.Flags().StringVar(&minSeverity, "min-severity", "", "minimum severity (info, warning, high, critical)")
	cmd.Flags().StringVar(&ruleID, "rule", "", "filter by rule id")
	cmd.Flags().IntVar(&limit, "limit", 0, "number of results")
	cmd.Flags().IntVar(&offset, "offset", 0, "pagination offset")

	return cmd
}

func alertsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <id>",
		Short:   "Show alert details",
		Example: `  flare alerts get 2a9f...`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			a, err := c.GetAlert(context.Background(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(a)
			}
			return printAlertDetail(a)
		},
	}
}

func alertsAckCmd() *cobra.Command {
	var by string

	cmd := &cobra.Command{
		Use:     "ack <id>",
		Short:   "Acknowledge an alert",
		Example: `  flare alerts ack 2a9f... --by maria`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			a, err := c.Acknowledge(context.Background(), args[0], by)
			if err != nil {
				return err
			}
			fmt.Printf("Alert %s acknowledged by %s.\n", a.ID, a.AcknowledgedBy)
			return nil
		},
	}
	cmd.Flags().StringVar(&by, "by", "", "who is acknowledging")
	cobra.CheckErr(cmd.MarkFlagRequired("by"))

	return cmd
}

func alertsSnoozeCmd() *cobra.Command {
	var duration string

	cmd := &cobra.Command{
		Use:     "snooze <id>",
		Short:   "Snooze an alert",
		Example: `  flare alerts snooze 2a9f... --for 2h`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			a, err := c.Snooze(context.Background(), args[0], duration)
			if err != nil {
				return err
			}
			fmt.Printf("Alert %s snoozed until %s.\n", a.ID, a.SnoozedUntil.Format("2006-01-02 15:04:05"))
			return nil
		},
	}
	cmd.Flags().StringVar(&duration, "for", "30m", "snooze duration, e.g. 30m or 2h")

	return cmd
}

func alertsResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "resolve <id>",
		Short:   "Resolve an alert",
		Example: `  flare alerts resolve 2a9f...`,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			c := newClient()
			a, err := c.Resolve(context.Background(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Alert %s resolved.\n", a.ID)
			return nil
		},
	}
}

func alertsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "stats",
		Short:   "Show alert inbox statistics",
		Example: `  flare alerts stats`,
		RunE: func(_ *cobra.Command, _ []string) error {
			c := newClient()
			stats, err := c.Stats(context.Background())
			if err != nil {
				return err
			}
			if jsonOutput() {
				return outputJSON(stats)
			}
			return printStats(stats)
		},
	}
}
