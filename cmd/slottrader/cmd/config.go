package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/slottrader/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage the bot configuration.

Subcommands:
  init     - Write the default configuration
  validate - Load and check a configuration file

Examples:
  slottrader config init -o slottrader.yaml
  slottrader config validate -f slottrader.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and check a configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

var configInitOutput string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "slottrader.yaml", "output file (.yaml or .json)")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if err := config.Default().SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("✓ Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nEdit the file and run with:")
	fmt.Printf("  slottrader run -f %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if cfgPath == "" {
		return errors.New("validate needs --config")
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("✓ Configuration valid: %s\n", cfgPath)
	fmt.Printf("  Instrument: %s (pip %.4g)\n", cfg.Instrument.Symbol, cfg.Instrument.PipSize)
	fmt.Printf("  Broker: %s\n", cfg.Broker.Kind)
	fmt.Printf("  Schedule: %d times in %s\n", len(cfg.Schedule.Times), cfg.Schedule.CivilZone)
	fmt.Printf("  Stops: SL %.0f / TP %.0f pips\n", cfg.Strategy.SLPips, cfg.Strategy.TPPips)
	fmt.Printf("  Risk: %s, daily cap %.2f\n", cfg.Risk.Mode, cfg.Risk.DailyCap)
	fmt.Printf("  Journal: %s\n", cfg.Journal.Dir)
	fmt.Printf("  Reports: enabled=%t sentinel=%s\n", cfg.Reports.Enabled, cfg.Reports.Sentinel)
	return nil
}
