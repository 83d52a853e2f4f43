package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/slottrader/schedule"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print the day's slots on both clocks",
	Long: `Translate the configured civil times onto the server clock for one
civil day and print them, the same table the bot logs at day start.

Examples:
  slottrader schedule
  slottrader schedule --day 2024-07-01 -f slottrader.yaml`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

var scheduleDay string

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().StringVar(&scheduleDay, "day", "", "civil day YYYY-MM-DD (default today)")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	tr, err := translator()
	if err != nil {
		return err
	}

	day := time.Now().In(tr.Civil())
	if scheduleDay != "" {
		if day, err = time.Parse(time.DateOnly, scheduleDay); err != nil {
			return fmt.Errorf("day: %w", err)
		}
	}

	s := tr.Build(day)
	mode := "configured"
	if tr.IsAuto() {
		mode = fmt.Sprintf("auto, server GMT%+g", tr.ServerGMTHours(day))
	}
	fmt.Printf("Civil day %s (%s), offset %+d min (%s)\n\n",
		s.CivilDay.Format(time.DateOnly), tr.Civil(), s.OffsetMinutes, mode)
	fmt.Printf("  %-6s  %-16s  %s\n", "CIVIL", "SERVER", "TAG")
	for _, sl := range s.Slots {
		fmt.Printf("  %-6s  %-16s  %s\n", sl.Label, sl.At.Format("2006-01-02 15:04"), s.Tag(sl))
	}
	return nil
}

func translator() (*schedule.Translator, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	opts, err := cfg.TranslatorOptions()
	if err != nil {
		return nil, err
	}
	return schedule.NewTranslator(opts)
}

// serverToday estimates the server date from the local clock.
func serverToday(tr *schedule.Translator) time.Time {
	civ := time.Now().In(tr.Civil())
	wall := time.Date(civ.Year(), civ.Month(), civ.Day(), civ.Hour(), civ.Minute(), 0, 0, time.UTC)
	return wall.Add(time.Duration(tr.OffsetMinutes(civ)) * time.Minute)
}
