// Package sim is an in-process paper broker. It fills market orders at the
// current quote, closes positions when a quote crosses their stop-loss or
// take-profit, keeps a deal history and builds bars from the quotes it is
// fed. All times are the simulated broker server clock.
package sim

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/slottrader/broker"
	"github.com/rustyeddy/slottrader/market"
)

type Config struct {
	Account     broker.Account
	Instruments []broker.InstrumentMeta
	BarInterval time.Duration
	// Slippage is added against the trader on every fill, in price units.
	Slippage float64
	// HidePositionTicket makes fills report only the deal ticket, the way
	// some terminals do, so callers must resolve the position themselves.
	HidePositionTicket bool
}

type position struct {
	broker.Position
}

type Engine struct {
	mu          sync.Mutex
	acct        broker.Account
	meta        map[string]broker.InstrumentMeta
	quotes      map[string]broker.Quote
	bars        map[string][]market.Candle
	barInterval time.Duration
	slippage    float64
	hideTicket  bool
	positions   map[int64]*position
	deals       []broker.Deal
	nextTicket  int64
	reject      broker.Status
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{
		acct:        cfg.Account,
		meta:        make(map[string]broker.InstrumentMeta),
		quotes:      make(map[string]broker.Quote),
		bars:        make(map[string][]market.Candle),
		barInterval: cfg.BarInterval,
		slippage:    cfg.Slippage,
		hideTicket:  cfg.HidePositionTicket,
		positions:   make(map[int64]*position),
		nextTicket:  1000,
	}
	if e.barInterval <= 0 {
		e.barInterval = 5 * time.Minute
	}
	if e.acct.Equity == 0 {
		e.acct.Equity = e.acct.Balance
	}
	e.acct.FreeMargin = e.acct.Equity
	for _, m := range cfg.Instruments {
		e.meta[m.Name] = m
	}
	return e
}

// RejectOrders makes every following order fail with status. Pass
// broker.StatusDone to accept orders again.
func (e *Engine) RejectOrders(status broker.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reject = status
}

// AddCandle appends a finished bar. Bars must be added oldest first.
func (e *Engine) AddCandle(instrument string, c market.Candle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bars[instrument] = append(e.bars[instrument], c)
}

// UpdateQuote sets the latest tick, folds it into the current bar and
// closes any position whose stop-loss or take-profit was crossed.
func (e *Engine) UpdateQuote(q broker.Quote) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if q.Bid <= 0 || q.Ask < q.Bid {
		return fmt.Errorf("update quote: bad prices bid=%v ask=%v", q.Bid, q.Ask)
	}
	e.quotes[q.Instrument] = q
	e.foldBarLocked(q)

	for _, p := range e.sortedPositionsLocked() {
		if p.Instrument != q.Instrument {
			continue
		}

		// Longs close on BID, shorts close on ASK.
		mark := q.Bid
		if p.Direction == broker.Short {
			mark = q.Ask
		}

		switch {
		case hitStopLoss(p, mark):
			e.closeLocked(p, p.StopLoss, q.Time, "sl")
		case hitTakeProfit(p, mark):
			e.closeLocked(p, p.TakeProfit, q.Time, "tp")
		}
	}

	e.revalueLocked()
	return nil
}

// ClosePosition closes a position at the current market price.
func (e *Engine) ClosePosition(ctx context.Context, ticket int64) error {
	_ = ctx // reserved for future cancellation checks

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[ticket]
	if !ok {
		return fmt.Errorf("close position: ticket %d: %w", ticket, broker.ErrNoData)
	}
	q, ok := e.quotes[p.Instrument]
	if !ok {
		return fmt.Errorf("close position: no quote for %q: %w", p.Instrument, broker.ErrNoData)
	}

	price := q.Bid
	if p.Direction == broker.Short {
		price = q.Ask
	}
	e.closeLocked(p, price, q.Time, "")
	e.revalueLocked()
	return nil
}

func (e *Engine) Quote(ctx context.Context, instrument string) (broker.Quote, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	q, ok := e.quotes[instrument]
	if !ok {
		return broker.Quote{}, fmt.Errorf("quote %q: %w", instrument, broker.ErrNoData)
	}
	return q, nil
}

func (e *Engine) Candles(ctx context.Context, instrument string, interval time.Duration, from time.Time, count int) ([]market.Candle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if interval != e.barInterval {
		return nil, fmt.Errorf("candles: interval %s not available (have %s)", interval, e.barInterval)
	}
	if count <= 0 {
		count = 1
	}

	// The bar still forming at the latest quote is not finished.
	var forming time.Time
	if q, ok := e.quotes[instrument]; ok {
		forming = q.Time.Truncate(e.barInterval)
	}

	var out []market.Candle
	for _, c := range e.bars[instrument] {
		if c.Time.After(from) {
			break
		}
		if !forming.IsZero() && !c.Time.Before(forming) {
			break
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("candles %q at %s: %w", instrument, from.Format(time.DateTime), broker.ErrNoData)
	}
	if len(out) > count {
		out = out[len(out)-count:]
	}
	return append([]market.Candle(nil), out...), nil
}

func (e *Engine) AccountInfo(ctx context.Context) (broker.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acct, nil
}

func (e *Engine) InstrumentMeta(ctx context.Context, instrument string) (broker.InstrumentMeta, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.meta[instrument]
	if !ok {
		return broker.InstrumentMeta{}, fmt.Errorf("instrument %q: %w", instrument, broker.ErrNoData)
	}
	return m, nil
}

func (e *Engine) EstimateMargin(ctx context.Context, instrument string, dir broker.Direction, volume, price float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.meta[instrument]
	if !ok {
		return 0, fmt.Errorf("margin %q: %w", instrument, broker.ErrNoData)
	}
	return TradeMargin(m, volume, price), nil
}

func (e *Engine) EstimateProfit(ctx context.Context, instrument string, dir broker.Direction, volume, entry, exit float64) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	m, ok := e.meta[instrument]
	if !ok {
		return 0, fmt.Errorf("profit %q: %w", instrument, broker.ErrNoData)
	}
	return ProfitLoss(m, dir, volume, entry, exit), nil
}

func (e *Engine) SubmitMarketOrder(ctx context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.reject != broker.StatusDone {
		return broker.OrderResult{Status: e.reject, Message: "rejected by simulator"}, nil
	}

	m, ok := e.meta[req.Instrument]
	if !ok {
		return broker.OrderResult{Status: broker.StatusRejected, Message: "unknown instrument"}, nil
	}
	q, ok := e.quotes[req.Instrument]
	if !ok {
		return broker.OrderResult{Status: broker.StatusMarketClosed, Message: "no prices"}, nil
	}
	if req.Volume <= 0 {
		return broker.OrderResult{Status: broker.StatusRejected, Message: "invalid volume"}, nil
	}

	fill := q.PriceFor(req.Direction) + req.Direction.Sign()*e.slippage
	fill = market.RoundTo(fill, m.Digits)

	if !stopsValid(m, req.Direction, fill, req.StopLoss, req.TakeProfit) {
		return broker.OrderResult{Status: broker.StatusInvalidStops, Message: "invalid stops"}, nil
	}
	if TradeMargin(m, req.Volume, fill) > e.acct.FreeMargin {
		return broker.OrderResult{Status: broker.StatusNoMoney, Message: "not enough money"}, nil
	}

	posTicket := e.ticketLocked()
	e.positions[posTicket] = &position{broker.Position{
		Ticket:     posTicket,
		Instrument: req.Instrument,
		Magic:      req.Magic,
		Comment:    req.Comment,
		Tag:        req.Tag,
		Direction:  req.Direction,
		Volume:     req.Volume,
		EntryPrice: fill,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		OpenTime:   q.Time,
	}}

	dealTicket := e.ticketLocked()
	e.deals = append(e.deals, broker.Deal{
		Ticket:     dealTicket,
		PositionID: posTicket,
		Instrument: req.Instrument,
		Time:       q.Time,
		Comment:    req.Comment,
		Tag:        req.Tag,
	})

	e.revalueLocked()

	res := broker.OrderResult{
		Status:         broker.StatusDone,
		PositionTicket: posTicket,
		DealTicket:     dealTicket,
		Price:          fill,
	}
	if e.hideTicket {
		res.PositionTicket = 0
	}
	return res, nil
}

func (e *Engine) ModifyStops(ctx context.Context, ticket int64, stopLoss, takeProfit float64) (broker.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.positions[ticket]
	if !ok {
		return broker.StatusRejected, fmt.Errorf("modify stops: ticket %d: %w", ticket, broker.ErrNoData)
	}
	if !stopsValid(e.meta[p.Instrument], p.Direction, p.EntryPrice, stopLoss, takeProfit) {
		return broker.StatusInvalidStops, nil
	}
	p.StopLoss = stopLoss
	p.TakeProfit = takeProfit
	return broker.StatusDone, nil
}

func (e *Engine) OpenPositions(ctx context.Context, instrument string) ([]broker.Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []broker.Position
	for _, p := range e.sortedPositionsLocked() {
		if instrument != "" && p.Instrument != instrument {
			continue
		}
		out = append(out, p.Position)
	}
	return out, nil
}

func (e *Engine) HistoryDeals(ctx context.Context, start, end time.Time) ([]broker.Deal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []broker.Deal
	for _, d := range e.deals {
		if d.Time.Before(start) || d.Time.After(end) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (e *Engine) ticketLocked() int64 {
	e.nextTicket++
	return e.nextTicket
}

func (e *Engine) sortedPositionsLocked() []*position {
	out := make([]*position, 0, len(e.positions))
	for _, p := range e.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticket < out[j].Ticket })
	return out
}

// closeLocked books the exit deal. reason is "sl", "tp" or "" for a
// manual close; it ends up in the deal comment the way terminals mark
// stop-outs ("[sl 2398.40]").
func (e *Engine) closeLocked(p *position, price float64, at time.Time, reason string) {
	m := e.meta[p.Instrument]
	pl := ProfitLoss(m, p.Direction, p.Volume, p.EntryPrice, price)
	e.acct.Balance += pl

	comment := p.Comment
	if reason != "" {
		comment = fmt.Sprintf("[%s %.*f]", reason, m.Digits, price)
	}

	e.deals = append(e.deals, broker.Deal{
		Ticket:     e.ticketLocked(),
		PositionID: p.Ticket,
		Instrument: p.Instrument,
		Profit:     math.Round(pl*100) / 100,
		Time:       at,
		Comment:    comment,
		Tag:        p.Tag,
	})
	delete(e.positions, p.Ticket)
}

func (e *Engine) revalueLocked() {
	equity := e.acct.Balance
	var used float64

	for _, p := range e.positions {
		q, ok := e.quotes[p.Instrument]
		if !ok {
			continue
		}
		m := e.meta[p.Instrument]

		mark := q.Bid
		if p.Direction == broker.Short {
			mark = q.Ask
		}
		equity += ProfitLoss(m, p.Direction, p.Volume, p.EntryPrice, mark)
		used += TradeMargin(m, p.Volume, q.Mid())
	}

	e.acct.Equity = equity
	e.acct.MarginUsed = used
	e.acct.FreeMargin = equity - used
}

func (e *Engine) foldBarLocked(q broker.Quote) {
	start := q.Time.Truncate(e.barInterval)
	mid := q.Mid()

	bars := e.bars[q.Instrument]
	if n := len(bars); n > 0 && bars[n-1].Time.Equal(start) {
		b := &bars[n-1]
		b.High = math.Max(b.High, mid)
		b.Low = math.Min(b.Low, mid)
		b.Close = mid
		b.Volume++
		return
	}
	e.bars[q.Instrument] = append(bars, market.Candle{
		Open:   mid,
		High:   mid,
		Low:    mid,
		Close:  mid,
		Time:   start,
		Volume: 1,
	})
}
