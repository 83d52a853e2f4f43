package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/slottrader/broker"
	"github.com/rustyeddy/slottrader/internal/id"
	"github.com/rustyeddy/slottrader/journal"
	"github.com/rustyeddy/slottrader/metrics"
	"github.com/rustyeddy/slottrader/risk"
)

type WatchConfig struct {
	Instrument        string
	Magic             int64
	ResolveTimeout    time.Duration
	PollInterval      time.Duration
	MaxPollFailures   int
	HistoryLookback   time.Duration
	HistoryLookahead  time.Duration
	HistoryAttempts   int
	HistoryRetryDelay time.Duration
}

func (c *WatchConfig) defaults() {
	if c.ResolveTimeout <= 0 {
		c.ResolveTimeout = 60 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.MaxPollFailures <= 0 {
		c.MaxPollFailures = 120
	}
	if c.HistoryLookback <= 0 {
		c.HistoryLookback = 6 * time.Hour
	}
	if c.HistoryLookahead <= 0 {
		c.HistoryLookahead = 10 * time.Minute
	}
	if c.HistoryAttempts <= 0 {
		c.HistoryAttempts = 1
	}
}

// Watcher follows one trade from fill to journal row. Each trade gets its
// own Watch call; the Watcher itself is shared and stateless.
type Watcher struct {
	broker  broker.Broker
	cfg     WatchConfig
	budget  *risk.Budget
	journal journal.Journal
	clock   *Clock
	log     zerolog.Logger
}

func NewWatcher(b broker.Broker, cfg WatchConfig, budget *risk.Budget, j journal.Journal, clock *Clock, log zerolog.Logger) *Watcher {
	cfg.defaults()
	return &Watcher{broker: b, cfg: cfg, budget: budget, journal: j, clock: clock, log: log}
}

// Watch blocks until the position has closed and its record is written.
// Broker failures degrade the record (zero profit, outcome Closed) rather
// than failing. It returns early with ctx.Err() only when cancelled, in
// which case nothing is recorded.
func (w *Watcher) Watch(ctx context.Context, pos OpenPosition) (rec journal.TradeRecord, err error) {
	metrics.WatcherStarted()
	defer metrics.WatcherDone()

	log := w.log.With().Str("tag", pos.Tag).Logger()
	recorded := false
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("watcher panicked, recording degraded trade")
			if !recorded {
				rec = w.finish(context.WithoutCancel(ctx), log, pos, nil)
			}
			err = fmt.Errorf("watcher %s: panic: %v", pos.Tag, r)
		}
	}()

	if pos.Ticket == 0 {
		pos.Ticket = w.resolve(ctx, log, pos)
		if err := ctx.Err(); err != nil {
			return journal.TradeRecord{}, err
		}
	}
	if pos.Ticket != 0 {
		if err := w.awaitClose(ctx, log, pos.Ticket); err != nil {
			return journal.TradeRecord{}, err
		}
	}

	deals := w.history(ctx, log, pos)
	if err := ctx.Err(); err != nil {
		return journal.TradeRecord{}, err
	}
	rec = w.finish(ctx, log, pos, deals)
	recorded = true
	return rec, nil
}

// resolve finds the position opened for pos among this bot's positions.
// It gives up after the resolve timeout and returns 0.
func (w *Watcher) resolve(ctx context.Context, log zerolog.Logger, pos OpenPosition) int64 {
	rctx, cancel := context.WithTimeout(ctx, w.cfg.ResolveTimeout)
	defer cancel()

	for {
		positions, err := w.broker.OpenPositions(rctx, w.cfg.Instrument)
		if err == nil {
			if ticket, ambiguous := pickPosition(positions, w.cfg.Magic, pos); ticket != 0 {
				if ambiguous {
					log.Warn().Int64("ticket", ticket).Msg("several positions match the tag, taking the first")
				}
				return ticket
			}
		}
		if sleep(rctx, w.cfg.PollInterval) != nil {
			log.Warn().Dur("timeout", w.cfg.ResolveTimeout).Msg("position ticket not resolved")
			return 0
		}
	}
}

// pickPosition narrows candidates by magic, then by tag. A lone magic
// candidate wins unless its structured tag names another slot.
func pickPosition(positions []broker.Position, magic int64, pos OpenPosition) (ticket int64, ambiguous bool) {
	var cands []broker.Position
	for _, p := range positions {
		if p.Magic == magic {
			cands = append(cands, p)
		}
	}
	if len(cands) == 1 {
		if c := cands[0]; c.Tag != "" && pos.Tag != "" && c.Tag != pos.Tag {
			return 0, false
		}
		return cands[0].Ticket, false
	}

	var matched []broker.Position
	for _, p := range cands {
		if matchesTag(p.Tag, p.Comment, pos) {
			matched = append(matched, p)
		}
	}
	if len(matched) == 0 {
		return 0, false
	}
	return matched[0].Ticket, len(matched) > 1
}

// matchesTag prefers the structured tag and falls back to the comment.
func matchesTag(tag, comment string, pos OpenPosition) bool {
	if tag != "" && pos.Tag != "" {
		return tag == pos.Tag
	}
	needle := pos.Comment
	if needle == "" {
		needle = pos.Tag
	}
	return needle != "" && strings.Contains(comment, needle)
}

// awaitClose polls until ticket is gone from the open positions. Too many
// consecutive failed polls end the wait as well.
func (w *Watcher) awaitClose(ctx context.Context, log zerolog.Logger, ticket int64) error {
	failures := 0
	for {
		positions, err := w.broker.OpenPositions(ctx, w.cfg.Instrument)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failures++
			if failures >= w.cfg.MaxPollFailures {
				log.Warn().Err(err).Int("failures", failures).Msg("position polling abandoned")
				return nil
			}
		} else {
			failures = 0
			if !hasTicket(positions, ticket) {
				return nil
			}
		}
		if err := sleep(ctx, w.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func hasTicket(positions []broker.Position, ticket int64) bool {
	for _, p := range positions {
		if p.Ticket == ticket {
			return true
		}
	}
	return false
}

// history returns the deals of pos, oldest first, retrying while the
// broker has nothing yet.
func (w *Watcher) history(ctx context.Context, log zerolog.Logger, pos OpenPosition) []broker.Deal {
	start := pos.OpenedAt.Add(-w.cfg.HistoryLookback)

	for attempt := 1; ; attempt++ {
		now, _ := w.clock.Server(ctx)
		end := now.Add(w.cfg.HistoryLookahead)

		deals, err := w.broker.HistoryDeals(ctx, start, end)
		if err == nil {
			if matched := matchDeals(deals, w.cfg.Instrument, pos); len(matched) > 0 {
				return matched
			}
		} else {
			log.Debug().Err(err).Int("attempt", attempt).Msg("history unavailable")
		}

		if attempt >= w.cfg.HistoryAttempts {
			log.Warn().Int64("ticket", pos.Ticket).Msg("no deals found for trade")
			return nil
		}
		if sleep(ctx, w.cfg.HistoryRetryDelay) != nil {
			return nil
		}
	}
}

// matchDeals selects by position id, or by tag when the ticket is unknown
// or matched nothing.
func matchDeals(deals []broker.Deal, instrument string, pos OpenPosition) []broker.Deal {
	sameInstrument := func(d broker.Deal) bool {
		return d.Instrument == "" || d.Instrument == instrument
	}

	var out []broker.Deal
	if pos.Ticket != 0 {
		for _, d := range deals {
			if d.PositionID == pos.Ticket && sameInstrument(d) {
				out = append(out, d)
			}
		}
	}
	if len(out) == 0 {
		for _, d := range deals {
			if matchesTag(d.Tag, d.Comment, pos) && sameInstrument(d) {
				out = append(out, d)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// Classify sums the deals' profit and reads the outcome off the last
// deal's comment.
func Classify(deals []broker.Deal) (outcome string, profit float64) {
	if len(deals) == 0 {
		return journal.OutcomeClosed, 0
	}
	for _, d := range deals {
		profit += d.Profit
	}
	last := strings.ToLower(deals[len(deals)-1].Comment)
	switch {
	case strings.Contains(last, "tp"):
		return journal.OutcomeTP, profit
	case strings.Contains(last, "sl"):
		return journal.OutcomeSL, profit
	case profit > 0:
		return journal.OutcomeWin, profit
	default:
		return journal.OutcomeLoss, profit
	}
}

// finish books the profit against the day's budget and writes the record.
func (w *Watcher) finish(ctx context.Context, log zerolog.Logger, pos OpenPosition, deals []broker.Deal) journal.TradeRecord {
	outcome, profit := Classify(deals)
	realized := w.budget.Add(profit)

	var balance float64
	if acct, err := w.broker.AccountInfo(ctx); err == nil {
		balance = acct.Balance
	} else {
		log.Warn().Err(err).Msg("account info unavailable for trade record")
	}

	closedAt, _ := w.clock.Server(ctx)
	rec := pos.record(outcome, profit, balance, closedAt)
	rec.ID = id.At(closedAt)

	if err := w.journal.RecordTrade(rec); err != nil {
		log.Error().Err(err).Msg("trade record not written")
	}
	metrics.Trade(outcome)

	log.Info().
		Int64("ticket", pos.Ticket).
		Str("outcome", outcome).
		Float64("profit", profit).
		Float64("realized", realized).
		Float64("balance", balance).
		Msg("trade closed")
	return rec
}
