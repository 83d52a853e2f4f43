package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/slottrader/broker"
	"github.com/rustyeddy/slottrader/metrics"
	"github.com/rustyeddy/slottrader/risk"
	"github.com/rustyeddy/slottrader/schedule"
)

var (
	// ErrNoCandle means the signal bar was not available; the slot is skipped.
	ErrNoCandle = errors.New("no candle for slot")
	// ErrNoQuote means there was no price to trade at.
	ErrNoQuote = errors.New("no quote for slot")
	// ErrMargin means the pre-trade check refused the order.
	ErrMargin = errors.New("insufficient margin")
)

// LotSizer is the sizing surface the executor needs.
type LotSizer interface {
	Size(ctx context.Context) float64
	PerUnitRisk(ctx context.Context) float64
}

type ExecutorConfig struct {
	Instrument     string
	CandleInterval time.Duration
	SLDistance     float64
	TPDistance     float64
	Deviation      int
	Magic          int64
	CommentPrefix  string
	// TicketTimeout bounds the deal-to-position lookup after a fill that
	// did not report its position.
	TicketTimeout time.Duration
	PollInterval  time.Duration
}

// Executor turns a fired slot into an order and hands the fill to a
// watcher.
type Executor struct {
	broker   broker.Broker
	sizer    LotSizer
	cfg      ExecutorConfig
	reanchor *Reanchorer
	watcher  *Watcher
	tasks    *Tasks
	log      zerolog.Logger
}

func NewExecutor(b broker.Broker, sizer LotSizer, cfg ExecutorConfig, reanchor *Reanchorer, watcher *Watcher, tasks *Tasks, log zerolog.Logger) *Executor {
	if cfg.CandleInterval <= 0 {
		cfg.CandleInterval = 5 * time.Minute
	}
	if cfg.TicketTimeout <= 0 {
		cfg.TicketTimeout = 5 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Executor{
		broker:   b,
		sizer:    sizer,
		cfg:      cfg,
		reanchor: reanchor,
		watcher:  watcher,
		tasks:    tasks,
		log:      log,
	}
}

// Comment is the order comment for a tag.
func (e *Executor) Comment(tag string) string {
	if e.cfg.CommentPrefix == "" {
		return tag
	}
	return e.cfg.CommentPrefix + "|" + tag
}

// Fire trades one slot. A nil error means an order was filled and a
// watcher is running for it.
func (e *Executor) Fire(ctx context.Context, slot schedule.Slot, tag string) (OpenPosition, error) {
	log := e.log.With().Str("slot", slot.Label).Str("tag", tag).Logger()

	dir, err := e.direction(ctx, slot.At)
	if err != nil {
		metrics.SlotSkipped()
		log.Info().Err(err).Msg("slot skipped")
		return OpenPosition{}, err
	}

	intent := Intent{
		Tag:        tag,
		Direction:  dir,
		Volume:     e.sizer.Size(ctx),
		SLDistance: e.cfg.SLDistance,
		TPDistance: e.cfg.TPDistance,
	}

	q, err := e.broker.Quote(ctx, e.cfg.Instrument)
	if err != nil {
		metrics.SlotSkipped()
		log.Warn().Err(err).Msg("slot skipped")
		return OpenPosition{}, fmt.Errorf("%w: %v", ErrNoQuote, err)
	}
	price := q.PriceFor(dir)
	sl, tp := intent.Stops(price)

	if err := e.checkMargin(ctx, intent, price, sl, tp); err != nil {
		metrics.SlotSkipped()
		log.Warn().Err(err).Msg("slot skipped")
		return OpenPosition{}, err
	}

	comment := e.Comment(tag)
	res, err := e.broker.SubmitMarketOrder(ctx, broker.OrderRequest{
		Instrument: e.cfg.Instrument,
		Direction:  dir,
		Volume:     intent.Volume,
		Price:      price,
		StopLoss:   sl,
		TakeProfit: tp,
		Deviation:  e.cfg.Deviation,
		Magic:      e.cfg.Magic,
		Comment:    comment,
		Tag:        tag,
	})
	if err != nil {
		metrics.Order(dir.String(), broker.StatusError.String())
		log.Error().Err(err).Msg("order failed")
		return OpenPosition{}, fmt.Errorf("submit %s: %w", tag, err)
	}
	metrics.Order(dir.String(), res.Status.String())
	if res.Status != broker.StatusDone {
		log.Warn().Str("status", res.Status.String()).Str("message", res.Message).Msg("order not executed")
		return OpenPosition{}, &broker.RejectedError{Status: res.Status, Message: res.Message}
	}

	entry := res.Price
	if entry == 0 {
		entry = price
	}
	log.Info().
		Str("side", dir.String()).
		Float64("volume", intent.Volume).
		Float64("price", entry).
		Float64("sl", sl).
		Float64("tp", tp).
		Msg("order filled")

	pos := OpenPosition{
		Ticket:     res.PositionTicket,
		Tag:        tag,
		Comment:    comment,
		Instrument: e.cfg.Instrument,
		Direction:  dir,
		Volume:     intent.Volume,
		Entry:      entry,
		StopLoss:   sl,
		TakeProfit: tp,
		OpenedAt:   slot.At.Truncate(time.Minute),
	}
	if pos.Ticket == 0 && res.DealTicket != 0 {
		pos.Ticket = e.ticketFromDeal(ctx, res.DealTicket, q.Time)
	}

	if pos.Ticket != 0 {
		a, err := e.reanchor.Reanchor(ctx, pos.Ticket, dir)
		if err != nil {
			log.Warn().Err(err).Msg("reanchor failed")
		}
		if a.Found() {
			pos.Entry, pos.StopLoss, pos.TakeProfit = a.Entry, a.StopLoss, a.TakeProfit
		}
	} else {
		log.Info().Msg("position ticket unknown, reanchor skipped")
	}

	e.tasks.Go("watch "+tag, func(ctx context.Context) {
		if _, err := e.watcher.Watch(ctx, pos); err != nil {
			log.Warn().Err(err).Msg("watcher stopped")
		}
	})
	return pos, nil
}

// direction reads the bar that closed at the slot's minute.
func (e *Executor) direction(ctx context.Context, at time.Time) (broker.Direction, error) {
	start := at.Add(-e.cfg.CandleInterval).Truncate(time.Minute)
	bars, err := e.broker.Candles(ctx, e.cfg.Instrument, e.cfg.CandleInterval, start, 1)
	if err != nil {
		return 0, fmt.Errorf("%w at %s: %v", ErrNoCandle, start.Format(time.DateTime), err)
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("%w at %s", ErrNoCandle, start.Format(time.DateTime))
	}
	bar := bars[len(bars)-1]
	e.log.Debug().Time("bar", bar.Time).Str("color", bar.Color()).Msg("signal bar")
	if bar.Bullish() {
		return broker.Long, nil
	}
	return broker.Short, nil
}

func (e *Executor) checkMargin(ctx context.Context, intent Intent, price, sl, tp float64) error {
	required, err := e.broker.EstimateMargin(ctx, e.cfg.Instrument, intent.Direction, intent.Volume, price)
	if err != nil {
		return fmt.Errorf("%w: margin estimate: %v", ErrMargin, err)
	}
	acct, err := e.broker.AccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("%w: account: %v", ErrMargin, err)
	}

	d := risk.Evaluate(risk.TradeIntent{
		Volume:      intent.Volume,
		Entry:       price,
		Stop:        sl,
		TakeProfit:  tp,
		PerUnitRisk: e.sizer.PerUnitRisk(ctx),
	}, risk.AccountSnapshot{
		Balance:    acct.Balance,
		Equity:     acct.Equity,
		FreeMargin: acct.FreeMargin,
	}, required)
	if !d.Allowed {
		return fmt.Errorf("%w: need %.2f, free %.2f (%s)", ErrMargin, required, acct.FreeMargin, d.Reason())
	}
	e.log.Debug().
		Float64("margin", d.RequiredMargin).
		Float64("risk", d.PlannedRisk).
		Float64("rr", d.PlannedRR).
		Msg("pre-trade check passed")
	return nil
}

// ticketFromDeal maps a fill's deal ticket to its position through the
// deal history around the fill time.
func (e *Executor) ticketFromDeal(ctx context.Context, deal int64, at time.Time) int64 {
	tctx, cancel := context.WithTimeout(ctx, e.cfg.TicketTimeout)
	defer cancel()

	for {
		deals, err := e.broker.HistoryDeals(tctx, at.Add(-30*time.Minute), at.Add(30*time.Minute))
		if err == nil {
			for _, d := range deals {
				if d.Ticket == deal && d.PositionID != 0 {
					return d.PositionID
				}
			}
		}
		if sleep(tctx, e.cfg.PollInterval) != nil {
			return 0
		}
	}
}
