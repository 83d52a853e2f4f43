package sim

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/slottrader/broker"
	"github.com/rustyeddy/slottrader/market"
)

const gold = "XAU_USD"

func goldMeta() broker.InstrumentMeta {
	return broker.InstrumentMeta{
		Name:         gold,
		Point:        0.01,
		Digits:       2,
		StopsLevel:   0,
		ContractSize: 100,
		MarginRate:   0.01,
	}
}

func newEngine(t *testing.T, balance float64) *Engine {
	t.Helper()
	return NewEngine(Config{
		Account:     broker.Account{ID: "acct-1", Currency: "USD", Balance: balance},
		Instruments: []broker.InstrumentMeta{goldMeta()},
		BarInterval: 5 * time.Minute,
	})
}

func setPrice(t *testing.T, e *Engine, bid, ask float64, tm time.Time) {
	t.Helper()
	err := e.UpdateQuote(broker.Quote{Instrument: gold, Bid: bid, Ask: ask, Time: tm})
	if err != nil {
		t.Fatalf("update quote: %v", err)
	}
}

func openMarket(t *testing.T, e *Engine, dir broker.Direction, volume, sl, tp float64) broker.OrderResult {
	t.Helper()
	res, err := e.SubmitMarketOrder(context.Background(), broker.OrderRequest{
		Instrument: gold,
		Direction:  dir,
		Volume:     volume,
		StopLoss:   sl,
		TakeProfit: tp,
		Magic:      42,
		Comment:    "bot|2024-01-15_10:35",
		Tag:        "2024-01-15_10:35",
	})
	if err != nil {
		t.Fatalf("submit market order: %v", err)
	}
	return res
}

func approxEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestEngineFillsLongAtAsk(t *testing.T) {
	e := newEngine(t, 10000)
	t0 := time.Date(2024, 1, 15, 13, 35, 0, 0, time.UTC)
	setPrice(t, e, 2000.00, 2000.30, t0)

	res := openMarket(t, e, broker.Long, 0.02, 1998.30, 2005.30)
	require.Equal(t, broker.StatusDone, res.Status)
	assert.NotZero(t, res.PositionTicket)
	assert.NotZero(t, res.DealTicket)
	assert.Equal(t, 2000.30, res.Price)

	pos, err := e.OpenPositions(context.Background(), gold)
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, res.PositionTicket, pos[0].Ticket)
	assert.Equal(t, int64(42), pos[0].Magic)
	assert.Equal(t, "2024-01-15_10:35", pos[0].Tag)
	assert.Equal(t, t0, pos[0].OpenTime)
}

func TestEngineTakeProfitClosesWithMarker(t *testing.T) {
	e := newEngine(t, 10000)
	ctx := context.Background()
	t0 := time.Date(2024, 1, 15, 13, 35, 0, 0, time.UTC)
	setPrice(t, e, 2000.00, 2000.30, t0)

	res := openMarket(t, e, broker.Long, 0.02, 1998.30, 2005.30)
	require.Equal(t, broker.StatusDone, res.Status)

	setPrice(t, e, 2005.40, 2005.70, t0.Add(20*time.Minute))

	pos, err := e.OpenPositions(ctx, gold)
	require.NoError(t, err)
	assert.Empty(t, pos)

	deals, err := e.HistoryDeals(ctx, t0.Add(-time.Hour), t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, deals, 2)

	exit := deals[1]
	assert.Equal(t, res.PositionTicket, exit.PositionID)
	assert.Equal(t, "[tp 2005.30]", exit.Comment)
	// 0.02 lots * 100 oz * 5.00
	assert.True(t, approxEqual(10.0, exit.Profit, 1e-9), "profit %v", exit.Profit)

	acct, err := e.AccountInfo(ctx)
	require.NoError(t, err)
	assert.True(t, approxEqual(10010.0, acct.Balance, 1e-9))
}

func TestEngineShortStopLoss(t *testing.T) {
	e := newEngine(t, 10000)
	ctx := context.Background()
	t0 := time.Date(2024, 1, 15, 13, 35, 0, 0, time.UTC)
	setPrice(t, e, 2000.00, 2000.30, t0)

	res := openMarket(t, e, broker.Short, 0.02, 2002.00, 1995.00)
	require.Equal(t, broker.StatusDone, res.Status)

	setPrice(t, e, 2001.80, 2002.10, t0.Add(time.Minute))

	deals, err := e.HistoryDeals(ctx, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, deals, 2)
	assert.Equal(t, "[sl 2002.00]", deals[1].Comment)
	assert.True(t, approxEqual(-4.0, deals[1].Profit, 1e-9), "profit %v", deals[1].Profit)
}

func TestEngineRejections(t *testing.T) {
	e := newEngine(t, 10)
	t0 := time.Date(2024, 1, 15, 13, 35, 0, 0, time.UTC)

	res := openMarket(t, e, broker.Long, 0.02, 0, 0)
	assert.Equal(t, broker.StatusMarketClosed, res.Status)

	setPrice(t, e, 2000.00, 2000.30, t0)

	res = openMarket(t, e, broker.Long, 0.02, 2001.00, 0)
	assert.Equal(t, broker.StatusInvalidStops, res.Status)

	res = openMarket(t, e, broker.Long, 1.0, 0, 0)
	assert.Equal(t, broker.StatusNoMoney, res.Status)

	e.RejectOrders(broker.StatusRequote)
	res = openMarket(t, e, broker.Long, 0.01, 0, 0)
	assert.Equal(t, broker.StatusRequote, res.Status)
}

func TestEngineSlippageAndHiddenTicket(t *testing.T) {
	e := NewEngine(Config{
		Account:            broker.Account{Balance: 10000},
		Instruments:        []broker.InstrumentMeta{goldMeta()},
		Slippage:           0.25,
		HidePositionTicket: true,
	})
	setPrice(t, e, 2000.00, 2000.30, time.Date(2024, 1, 15, 13, 35, 0, 0, time.UTC))

	res := openMarket(t, e, broker.Short, 0.02, 0, 0)
	require.Equal(t, broker.StatusDone, res.Status)
	assert.Zero(t, res.PositionTicket)
	assert.Equal(t, 1999.75, res.Price)
}

func TestEngineModifyStops(t *testing.T) {
	e := newEngine(t, 10000)
	ctx := context.Background()
	setPrice(t, e, 2000.00, 2000.30, time.Date(2024, 1, 15, 13, 35, 0, 0, time.UTC))
	res := openMarket(t, e, broker.Long, 0.02, 1998.30, 2005.30)

	st, err := e.ModifyStops(ctx, res.PositionTicket, 1998.00, 2005.00)
	require.NoError(t, err)
	assert.Equal(t, broker.StatusDone, st)

	st, err = e.ModifyStops(ctx, res.PositionTicket, 2001.00, 2005.00)
	require.NoError(t, err)
	assert.Equal(t, broker.StatusInvalidStops, st)

	_, err = e.ModifyStops(ctx, 99, 1, 2)
	assert.ErrorIs(t, err, broker.ErrNoData)

	pos, _ := e.OpenPositions(ctx, gold)
	require.Len(t, pos, 1)
	assert.Equal(t, 1998.00, pos[0].StopLoss)
	assert.Equal(t, 2005.00, pos[0].TakeProfit)
}

func TestEngineCandlesSkipFormingBar(t *testing.T) {
	e := newEngine(t, 10000)
	ctx := context.Background()
	t0 := time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC)

	setPrice(t, e, 2000.00, 2000.20, t0.Add(10*time.Second))
	setPrice(t, e, 2003.00, 2003.20, t0.Add(4*time.Minute))
	setPrice(t, e, 2003.50, 2003.70, t0.Add(5*time.Minute+time.Second))

	bars, err := e.Candles(ctx, gold, 5*time.Minute, t0, 1)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, t0, bars[0].Time)
	assert.True(t, bars[0].Bullish())
	assert.InDelta(t, 2000.10, bars[0].Open, 1e-9)
	assert.InDelta(t, 2003.10, bars[0].Close, 1e-9)

	_, err = e.Candles(ctx, gold, 5*time.Minute, t0.Add(5*time.Minute), 1)
	require.NoError(t, err)

	// The 13:35 bar is still forming.
	bars, err = e.Candles(ctx, gold, 5*time.Minute, t0.Add(5*time.Minute), 5)
	require.NoError(t, err)
	assert.Len(t, bars, 1)

	_, err = e.Candles(ctx, gold, 5*time.Minute, t0.Add(-time.Hour), 1)
	assert.ErrorIs(t, err, broker.ErrNoData)

	_, err = e.Candles(ctx, gold, time.Minute, t0, 1)
	assert.Error(t, err)
}

func TestEngineAddCandle(t *testing.T) {
	e := newEngine(t, 10000)
	t0 := time.Date(2024, 1, 15, 13, 30, 0, 0, time.UTC)
	e.AddCandle(gold, market.Candle{Open: 1, Close: 2, Time: t0.Add(-5 * time.Minute)})
	e.AddCandle(gold, market.Candle{Open: 2, Close: 1, Time: t0})

	bars, err := e.Candles(context.Background(), gold, 5*time.Minute, t0, 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.False(t, bars[1].Bullish())
}

func TestEstimates(t *testing.T) {
	e := newEngine(t, 10000)
	ctx := context.Background()

	pl, err := e.EstimateProfit(ctx, gold, broker.Long, 1.0, 2000, 2001)
	require.NoError(t, err)
	assert.InDelta(t, 100.0, pl, 1e-9)

	pl, err = e.EstimateProfit(ctx, gold, broker.Short, 1.0, 2000, 2001)
	require.NoError(t, err)
	assert.InDelta(t, -100.0, pl, 1e-9)

	mr, err := e.EstimateMargin(ctx, gold, broker.Long, 0.02, 2000)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, mr, 1e-9)

	_, err = e.EstimateMargin(ctx, "EUR_USD", broker.Long, 1, 1)
	assert.ErrorIs(t, err, broker.ErrNoData)
}

func TestWalkQuote(t *testing.T) {
	w := Walk{Instrument: gold, Spread: 0.30, ServerOffset: 3 * time.Hour}
	now := time.Date(2024, 1, 15, 10, 35, 0, 500, time.UTC)

	q := w.quote(2000.0, 2, now)
	assert.Equal(t, 1999.85, q.Bid)
	assert.Equal(t, 2000.15, q.Ask)
	assert.Equal(t, time.Date(2024, 1, 15, 13, 35, 0, 0, time.UTC), q.Time)
}
