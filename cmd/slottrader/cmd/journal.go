package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/slottrader/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query the SQLite trade journal",
	Long: `Query trades mirrored into the SQLite journal (journal.db_path).

Subcommands:
  trade  - Show one trade by ID
  today  - List trades opened on today's server day
  day    - List trades opened on a given server day

Examples:
  slottrader journal trade 01HM0Z8K3F6T4XJ2R5N7Q9W1YB
  slottrader journal day 2024-01-15 --db trades.sqlite`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Show one trade by ID",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades opened on today's server day",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades opened on a server day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "", "SQLite journal (default journal.db_path)")
}

func openJournal() (*journal.SQLite, error) {
	path := journalDBPath
	if path == "" {
		cfg, err := loadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.Journal.DBPath
	}
	if path == "" {
		return nil, errors.New("no journal database: set journal.db_path or --db")
	}
	return journal.NewSQLite(path)
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}
	fmt.Printf("Trade %s\n", rec.ID)
	fmt.Printf("  Tag:      %s\n", rec.Tag)
	fmt.Printf("  Ticket:   %d\n", rec.Ticket)
	fmt.Printf("  Side:     %s %.2f %s\n", rec.Direction, rec.Volume, rec.Instrument)
	fmt.Printf("  Entry:    %.3f  SL %.3f  TP %.3f\n", rec.Entry, rec.StopLoss, rec.TakeProfit)
	fmt.Printf("  Outcome:  %s %+.2f (balance %.2f)\n", rec.Outcome, rec.Profit, rec.Balance)
	fmt.Printf("  Opened:   %s\n", rec.OpenedAt.Format(time.DateTime))
	fmt.Printf("  Closed:   %s\n", rec.ClosedAt.Format(time.DateTime))
	return nil
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	tr, err := translator()
	if err != nil {
		return err
	}
	return listDay(serverToday(tr))
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	day, err := time.Parse(time.DateOnly, args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}
	return listDay(day)
}

func listDay(day time.Time) error {
	j, err := openJournal()
	if err != nil {
		return err
	}
	defer j.Close()

	recs, err := j.Day(day)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	fmt.Printf("Trades on %s\n\n", day.Format(time.DateOnly))
	for _, r := range recs {
		fmt.Printf("  %-16s  %-4s  %5.2f  %-6s  %+8.2f\n", r.Tag, r.Direction, r.Volume, r.Outcome, r.Profit)
	}

	s := journal.Summarize(recs)
	fmt.Printf("\n  %d trades, %d won, %d lost, net %+.2f", s.Trades, s.Wins, s.Losses, s.NetProfit)
	if s.ProfitFactor > 0 {
		fmt.Printf(", profit factor %.2f", s.ProfitFactor)
	}
	fmt.Println()
	return nil
}
