package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/slottrader/config"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Send the reports due for a server day",
	Long: `Run the end-of-day reporting by hand: the daily log, plus the weekly
and monthly combined logs when the day closes a week or month. Reports
already marked as sent are skipped, so this is safe to repeat.

Examples:
  slottrader report --day 2024-01-31
  slottrader report --day 2024-08-31 -f slottrader.yaml`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

var reportDay string

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportDay, "day", "", "server day YYYY-MM-DD (required)")
	reportCmd.MarkFlagRequired("day")
}

func runReport(cmd *cobra.Command, args []string) error {
	day, err := time.Parse(time.DateOnly, reportDay)
	if err != nil {
		return fmt.Errorf("day: %w", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	secrets, err := config.LoadSecrets(envFiles...)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, secrets, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sched, err := a.scheduler(cmd.Context())
	if err != nil {
		return err
	}
	sent, err := sched.Run(cmd.Context(), day)
	for _, d := range sent {
		fmt.Printf("✓ %s report %s sent (%s)\n", d.Kind, d.Key, d.Attachment)
	}
	if len(sent) == 0 && err == nil {
		fmt.Printf("Nothing to send for %s\n", day.Format(time.DateOnly))
	}
	return err
}
