package cmd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/slottrader/broker"
	"github.com/rustyeddy/slottrader/broker/oanda"
	"github.com/rustyeddy/slottrader/broker/sim"
	"github.com/rustyeddy/slottrader/config"
	"github.com/rustyeddy/slottrader/journal"
	"github.com/rustyeddy/slottrader/report"
	"github.com/rustyeddy/slottrader/schedule"
)

// app holds the long-lived pieces shared by run and report.
type app struct {
	cfg     *config.Config
	secrets config.Secrets
	log     zerolog.Logger

	tr      *schedule.Translator
	csv     *journal.DailyCSV
	db      *journal.SQLite
	journal journal.Journal
	closers []func() error
}

func newApp(cfg *config.Config, secrets config.Secrets, log zerolog.Logger) (*app, error) {
	opts, err := cfg.TranslatorOptions()
	if err != nil {
		return nil, err
	}
	tr, err := schedule.NewTranslator(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	a := &app{cfg: cfg, secrets: secrets, log: log, tr: tr}
	if a.csv, err = journal.NewDailyCSV(cfg.Journal.Dir, cfg.Instrument.PriceDecimals); err != nil {
		return nil, err
	}
	a.journal = a.csv
	if cfg.Journal.DBPath != "" {
		if a.db, err = journal.NewSQLite(cfg.Journal.DBPath); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, a.db.Close)
		a.journal = journal.Tee{a.csv, a.db}
	}
	return a, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// paperEngine builds the simulated broker for the configured instrument.
func (a *app) paperEngine() *sim.Engine {
	p := a.cfg.Broker.Paper
	return sim.NewEngine(sim.Config{
		Account: broker.Account{ID: "paper", Currency: p.Currency, Balance: p.Balance},
		Instruments: []broker.InstrumentMeta{{
			Name:         a.cfg.Instrument.Symbol,
			Point:        math.Pow10(-p.Digits),
			Digits:       p.Digits,
			StopsLevel:   p.StopsLevel,
			ContractSize: a.cfg.Broker.ContractSize,
			MarginRate:   p.MarginRate,
		}},
		BarInterval: a.cfg.CandleInterval(),
		Slippage:    p.Slippage,
	})
}

// paperFeed is the random walk for engine. Without an explicit server
// offset the simulated server runs at civil time plus the schedule offset.
func (a *app) paperFeed(now time.Time) sim.Walk {
	p := a.cfg.Broker.Paper
	shift := time.Duration(p.ServerOffsetMinutes) * time.Minute
	if p.ServerOffsetMinutes == 0 {
		civil := now.In(a.tr.Civil())
		_, zone := civil.Zone()
		shift = time.Duration(zone)*time.Second + time.Duration(a.tr.OffsetMinutes(civil))*time.Minute
	}
	return sim.Walk{
		Instrument:   a.cfg.Instrument.Symbol,
		Start:        p.StartPrice,
		Spread:       p.Spread,
		Volatility:   p.Volatility,
		Every:        p.TickEvery,
		ServerOffset: shift,
	}
}

// liveBroker is the OANDA binding behind the rate limiter and breaker.
func (a *app) liveBroker() (*broker.Guarded, error) {
	client, err := oanda.NewClient(oanda.Options{
		Env:          a.cfg.Broker.Env,
		Token:        a.secrets.OandaToken,
		AccountID:    a.secrets.OandaAccountID,
		ContractSize: a.cfg.Broker.ContractSize,
	})
	if err != nil {
		return nil, err
	}
	gc := broker.DefaultGuardConfig()
	gc.Name = "oanda"
	if a.cfg.Broker.RPS > 0 {
		gc.RPS = a.cfg.Broker.RPS
	}
	if a.cfg.Broker.Burst > 0 {
		gc.Burst = a.cfg.Broker.Burst
	}
	if a.cfg.Broker.MaxFailures > 0 {
		gc.FailureThreshold = a.cfg.Broker.MaxFailures
	}
	if a.cfg.Broker.OpenTimeout > 0 {
		gc.OpenTimeout = a.cfg.Broker.OpenTimeout
	}
	return broker.NewGuarded(client, gc)
}

// sentinels picks the "already sent" store named by reports.sentinel.
func (a *app) sentinels(ctx context.Context) (report.Sentinels, error) {
	switch a.cfg.Reports.Sentinel {
	case "sqlite":
		return report.NewSQLiteSentinels(a.db.DB())
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Reports.RedisAddr,
			Password: a.secrets.RedisPassword,
			DB:       a.cfg.Reports.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis %s: %w", a.cfg.Reports.RedisAddr, err)
		}
		a.closers = append(a.closers, client.Close)
		return report.NewRedisSentinels(client, ""), nil
	default:
		return report.NewFileSentinels(a.cfg.Journal.Dir)
	}
}

// sender mails over SMTP when credentials are present and logs otherwise.
func (a *app) sender() (report.Sender, error) {
	smtp := a.cfg.Reports.SMTP
	if smtp.Host == "" || a.secrets.SMTPUsername == "" || len(smtp.To) == 0 {
		a.log.Warn().Msg("smtp not configured, reports are logged only")
		return report.LogSender{Log: a.log}, nil
	}
	from := smtp.From
	if from == "" {
		from = a.secrets.SMTPUsername
	}
	return report.NewSMTPSender(report.SMTPConfig{
		Host:     smtp.Host,
		Port:     smtp.Port,
		Username: a.secrets.SMTPUsername,
		Password: a.secrets.SMTPPassword,
		From:     from,
		To:       smtp.To,
	})
}

func (a *app) scheduler(ctx context.Context) (*report.Scheduler, error) {
	weekEnd, err := a.cfg.WeekEnd()
	if err != nil {
		return nil, err
	}
	sentinels, err := a.sentinels(ctx)
	if err != nil {
		return nil, err
	}
	sender, err := a.sender()
	if err != nil {
		return nil, err
	}
	return report.NewScheduler(a.csv, sentinels, sender, weekEnd, a.log), nil
}
