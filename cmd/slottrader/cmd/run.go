package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/slottrader/bot"
	"github.com/rustyeddy/slottrader/broker"
	"github.com/rustyeddy/slottrader/config"
	"github.com/rustyeddy/slottrader/internal/status"
	"github.com/rustyeddy/slottrader/risk"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot",
	Long: `Run the trigger loop until interrupted.

The broker comes from broker.kind in the config; --paper forces the
simulated broker with a random-walk feed. Secrets (OANDA_TOKEN,
OANDA_ACCOUNT_ID, SMTP_USERNAME, SMTP_PASSWORD, REDIS_PASSWORD) are read
from the environment and --env-file.

Example:
  slottrader run -f slottrader.yaml --log-level debug`,
	RunE: runRun,
}

var (
	runPaper     bool
	runNoReports bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runPaper, "paper", false, "trade against the simulated broker")
	runCmd.Flags().BoolVar(&runNoReports, "no-reports", false, "do not send end-of-day reports")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runPaper {
		cfg.Broker.Kind = "paper"
	}
	secrets, err := config.LoadSecrets(envFiles...)
	if err != nil {
		return err
	}
	if err := secrets.Check(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, secrets, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	symbol := cfg.Instrument.Symbol
	var (
		b       broker.Broker
		breaker func() string
	)
	switch cfg.Broker.Kind {
	case "paper":
		engine := a.paperEngine()
		feed := a.paperFeed(time.Now())
		go func() {
			if err := feed.Run(ctx, engine); err != nil {
				logger.Error().Err(err).Msg("paper feed stopped")
			}
		}()
		b = engine
	default:
		g, err := a.liveBroker()
		if err != nil {
			return err
		}
		b, breaker = g, g.State
	}

	acct, err := b.AccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("account info: %w", err)
	}
	logger.Info().
		Str("broker", cfg.Broker.Kind).
		Str("account", acct.ID).
		Float64("balance", acct.Balance).
		Str("currency", acct.Currency).
		Msg("connected")

	budget := &risk.Budget{}
	sizer, err := risk.NewSizer(risk.SizerConfig{
		Instrument:   symbol,
		Mode:         cfg.Risk.Mode,
		Cap:          cfg.Risk.DailyCap,
		Dynamic:      cfg.Risk.DynamicBudget,
		SLDistance:   cfg.SLDistance(),
		FallbackRisk: cfg.Risk.FallbackPerUnitRisk,
	}, b, budget, logger)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	tasks := bot.NewTasks(ctx, logger)
	clock := bot.NewClock(b, symbol, a.tr)
	w := cfg.Watcher
	watcher := bot.NewWatcher(b, bot.WatchConfig{
		Instrument:        symbol,
		Magic:             cfg.Strategy.Magic,
		ResolveTimeout:    w.ResolveTimeout,
		PollInterval:      w.PollInterval,
		MaxPollFailures:   w.MaxPollFailures,
		HistoryLookback:   w.HistoryLookback,
		HistoryLookahead:  w.HistoryLookahead,
		HistoryAttempts:   w.HistoryAttempts,
		HistoryRetryDelay: w.HistoryRetryDelay,
	}, budget, a.journal, clock, logger)

	executor := bot.NewExecutor(b, sizer, bot.ExecutorConfig{
		Instrument:     symbol,
		CandleInterval: cfg.CandleInterval(),
		SLDistance:     cfg.SLDistance(),
		TPDistance:     cfg.TPDistance(),
		Deviation:      cfg.Strategy.Deviation,
		Magic:          cfg.Strategy.Magic,
		CommentPrefix:  cfg.Strategy.CommentPrefix,
		PollInterval:   w.PollInterval,
	}, bot.NewReanchorer(b, symbol, cfg.SLDistance(), cfg.TPDistance(), logger), watcher, tasks, logger)

	var reporter bot.Reporter
	if cfg.Reports.Enabled && !runNoReports {
		sched, err := a.scheduler(ctx)
		if err != nil {
			return err
		}
		reporter = sched
	}

	loop := bot.NewLoop(bot.LoopConfig{
		Instrument: symbol,
		Magic:      cfg.Strategy.Magic,
		FireWindow: cfg.FireWindow(),
	}, b, a.tr, clock, executor, budget, tasks, reporter, logger)

	if cfg.Metrics.Listen != "" {
		srv := status.NewServer(status.Options{
			Addr:    cfg.Metrics.Listen,
			Source:  loop,
			Breaker: breaker,
			Log:     logger,
		})
		go func() {
			if err := srv.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("status server")
			}
		}()
	}

	logger.Info().
		Str("instrument", symbol).
		Strs("times", cfg.Schedule.Times).
		Str("civil_zone", a.tr.Civil().String()).
		Int64("magic", cfg.Strategy.Magic).
		Msg("bot started")

	if err := loop.Run(ctx); err != nil {
		return err
	}

	logger.Info().Int("active", tasks.Active()).Msg("shutting down")
	if !tasks.Shutdown(w.ShutdownGrace) {
		logger.Warn().Msg("trades still in flight were abandoned")
	}
	return nil
}
