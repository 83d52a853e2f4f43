package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/slottrader/broker"
	"github.com/rustyeddy/slottrader/broker/sim"
	"github.com/rustyeddy/slottrader/journal"
	"github.com/rustyeddy/slottrader/market"
	"github.com/rustyeddy/slottrader/schedule"
)

const (
	gold  = "XAUUSD"
	magic = int64(20250901)
)

func goldMeta() broker.InstrumentMeta {
	return broker.InstrumentMeta{
		Name:         gold,
		Point:        0.01,
		Digits:       2,
		ContractSize: 100,
		MarginRate:   0.01,
	}
}

func newSim(t *testing.T, balance float64, opts ...func(*sim.Config)) *sim.Engine {
	t.Helper()
	cfg := sim.Config{
		Account:     broker.Account{ID: "paper", Currency: "USD", Balance: balance},
		Instruments: []broker.InstrumentMeta{goldMeta()},
		BarInterval: 5 * time.Minute,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return sim.NewEngine(cfg)
}

func quote(t *testing.T, e *sim.Engine, bid, ask float64, at time.Time) {
	t.Helper()
	require.NoError(t, e.UpdateQuote(broker.Quote{Instrument: gold, Bid: bid, Ask: ask, Time: at}))
}

func bar(e *sim.Engine, at time.Time, open, close float64) {
	e.AddCandle(gold, market.Candle{
		Open:  open,
		High:  max(open, close) + 0.5,
		Low:   min(open, close) - 0.5,
		Close: close,
		Time:  at,
	})
}

func utcTranslator(t *testing.T, labels ...string) *schedule.Translator {
	t.Helper()
	zero := 0
	tr, err := schedule.NewTranslator(schedule.Options{Labels: labels, OverrideMinutes: &zero})
	require.NoError(t, err)
	return tr
}

// fixedClock returns a Clock whose local time is frozen at now.
func fixedClock(b broker.Broker, tr *schedule.Translator, now time.Time) *Clock {
	c := NewClock(b, gold, tr)
	c.now = func() time.Time { return now }
	return c
}

type memJournal struct {
	mu   sync.Mutex
	recs []journal.TradeRecord
}

func (m *memJournal) RecordTrade(r journal.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, r)
	return nil
}

func (m *memJournal) Close() error { return nil }

func (m *memJournal) records() []journal.TradeRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]journal.TradeRecord(nil), m.recs...)
}

type stubSizer struct {
	lots float64
	risk float64
}

func (s stubSizer) Size(context.Context) float64        { return s.lots }
func (s stubSizer) PerUnitRisk(context.Context) float64 { return s.risk }

var errBrokerDown = errors.New("terminal not connected")

// flaky wraps a broker and fails selected calls.
type flaky struct {
	broker.Broker

	mu           sync.Mutex
	failPosition bool
	failHistory  bool
	panicHistory bool
	positionHits int
}

func (f *flaky) OpenPositions(ctx context.Context, instrument string) ([]broker.Position, error) {
	f.mu.Lock()
	f.positionHits++
	fail := f.failPosition
	f.mu.Unlock()
	if fail {
		return nil, errBrokerDown
	}
	return f.Broker.OpenPositions(ctx, instrument)
}

func (f *flaky) HistoryDeals(ctx context.Context, start, end time.Time) ([]broker.Deal, error) {
	f.mu.Lock()
	fail, boom := f.failHistory, f.panicHistory
	f.mu.Unlock()
	if boom {
		panic("history decoder")
	}
	if fail {
		return nil, errBrokerDown
	}
	return f.Broker.HistoryDeals(ctx, start, end)
}

func (f *flaky) hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positionHits
}

func fastWatch() WatchConfig {
	return WatchConfig{
		Instrument:        gold,
		Magic:             magic,
		ResolveTimeout:    200 * time.Millisecond,
		PollInterval:      2 * time.Millisecond,
		MaxPollFailures:   5,
		HistoryAttempts:   2,
		HistoryRetryDelay: time.Millisecond,
	}
}

var nop = zerolog.Nop()
