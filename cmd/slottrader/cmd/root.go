package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/slottrader/config"
)

var rootCmd = &cobra.Command{
	Use:   "slottrader",
	Short: "Timed candle-direction trading bot",
	Long: `Slottrader fires one market order at each time of a fixed civil-time
schedule. The direction follows the colour of the candle that just closed;
stops sit a fixed distance from the fill and the volume comes from a
daily risk budget.

Closed trades are journaled per server day, and daily, weekly and monthly
reports are mailed once the day's schedule is done.`,
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

var (
	cfgPath   string
	envFiles  []string
	logLevel  string
	logFormat string

	logger zerolog.Logger
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "f", "", "config file, YAML or JSON (defaults apply when empty)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files holding secrets")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "trace|debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "console|json")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	lvl, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	var out io.Writer
	switch logFormat {
	case "console":
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime}
	case "json":
		out = os.Stderr
	default:
		return fmt.Errorf("log format %q (want console|json)", logFormat)
	}

	logger = zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	log.Logger = logger
	return nil
}

// loadConfig reads --config, or validated defaults without one.
func loadConfig() (*config.Config, error) {
	if cfgPath == "" {
		cfg := config.Default()
		return cfg, cfg.Validate()
	}
	cfg, err := config.LoadFromFile(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
