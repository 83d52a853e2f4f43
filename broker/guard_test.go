package broker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/slottrader/market"
)

type stubBroker struct {
	quoteErr  error
	metaCalls atomic.Int32
	quotes    atomic.Int32
}

func (s *stubBroker) Quote(ctx context.Context, instrument string) (Quote, error) {
	s.quotes.Add(1)
	if s.quoteErr != nil {
		return Quote{}, s.quoteErr
	}
	return Quote{Instrument: instrument, Bid: 1, Ask: 2}, nil
}

func (s *stubBroker) Candles(ctx context.Context, instrument string, interval time.Duration, from time.Time, count int) ([]market.Candle, error) {
	return nil, ErrNoData
}

func (s *stubBroker) AccountInfo(ctx context.Context) (Account, error) {
	return Account{Balance: 1000}, nil
}

func (s *stubBroker) InstrumentMeta(ctx context.Context, instrument string) (InstrumentMeta, error) {
	s.metaCalls.Add(1)
	return InstrumentMeta{Name: instrument, Point: 0.01, Digits: 2}, nil
}

func (s *stubBroker) EstimateMargin(ctx context.Context, instrument string, dir Direction, volume, price float64) (float64, error) {
	return 10, nil
}

func (s *stubBroker) EstimateProfit(ctx context.Context, instrument string, dir Direction, volume, entry, exit float64) (float64, error) {
	return 100, nil
}

func (s *stubBroker) SubmitMarketOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	return OrderResult{Status: StatusRejected, Message: "closed"}, nil
}

func (s *stubBroker) ModifyStops(ctx context.Context, ticket int64, stopLoss, takeProfit float64) (Status, error) {
	return StatusDone, nil
}

func (s *stubBroker) OpenPositions(ctx context.Context, instrument string) ([]Position, error) {
	return nil, nil
}

func (s *stubBroker) HistoryDeals(ctx context.Context, start, end time.Time) ([]Deal, error) {
	return nil, nil
}

func newTestGuard(t *testing.T, next Broker) *Guarded {
	t.Helper()
	cfg := DefaultGuardConfig()
	cfg.RPS = 1000
	cfg.Burst = 1000
	cfg.FailureThreshold = 3
	cfg.OpenTimeout = time.Minute
	g, err := NewGuarded(next, cfg)
	require.NoError(t, err)
	return g
}

func TestGuardedPassesThrough(t *testing.T) {
	t.Parallel()

	g := newTestGuard(t, &stubBroker{})
	ctx := context.Background()

	q, err := g.Quote(ctx, "XAU_USD")
	require.NoError(t, err)
	assert.Equal(t, 1.5, q.Mid())

	res, err := g.SubmitMarketOrder(ctx, OrderRequest{Instrument: "XAU_USD", Direction: Long, Volume: 0.02})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	assert.Equal(t, "closed", res.Message)

	_, err = g.Candles(ctx, "XAU_USD", 5*time.Minute, time.Now(), 1)
	assert.ErrorIs(t, err, ErrNoData)
}

func TestGuardedCachesInstrumentMeta(t *testing.T) {
	t.Parallel()

	stub := &stubBroker{}
	g := newTestGuard(t, stub)
	ctx := context.Background()

	m, err := g.InstrumentMeta(ctx, "XAU_USD")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Digits)

	// ristretto admits writes asynchronously.
	g.meta.Wait()

	for i := 0; i < 5; i++ {
		m, err = g.InstrumentMeta(ctx, "XAU_USD")
		require.NoError(t, err)
		assert.Equal(t, "XAU_USD", m.Name)
	}
	assert.Equal(t, int32(1), stub.metaCalls.Load())
}

func TestGuardedOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	stub := &stubBroker{quoteErr: errors.New("connection reset")}
	g := newTestGuard(t, stub)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := g.Quote(ctx, "XAU_USD")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, "open", g.State())

	_, err := g.Quote(ctx, "XAU_USD")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(3), stub.quotes.Load())
}

func TestGuardedNoDataDoesNotTrip(t *testing.T) {
	t.Parallel()

	g := newTestGuard(t, &stubBroker{quoteErr: ErrNoData})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := g.Quote(ctx, "XAU_USD")
		assert.ErrorIs(t, err, ErrNoData)
	}
	assert.Equal(t, "closed", g.State())
}
