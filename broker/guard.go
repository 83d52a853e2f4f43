package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/rustyeddy/slottrader/market"
	"github.com/rustyeddy/slottrader/metrics"
)

// GuardConfig tunes the protective wrapper placed around a live broker.
type GuardConfig struct {
	Name             string
	RPS              float64       // sustained calls per second across all callers
	Burst            int           // short bursts above RPS
	FailureThreshold uint32        // consecutive failures before the breaker opens
	OpenTimeout      time.Duration // how long the breaker stays open
	MetaTTL          time.Duration // instrument metadata cache lifetime
}

// DefaultGuardConfig leaves room for one loop poll plus a handful of
// watchers polling every 500ms.
func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Name:             "broker",
		RPS:              20,
		Burst:            40,
		FailureThreshold: 5,
		OpenTimeout:      15 * time.Second,
		MetaTTL:          10 * time.Minute,
	}
}

// Guarded wraps a Broker with a rate limiter, a circuit breaker and an
// instrument metadata cache. It is itself a Broker.
type Guarded struct {
	next    Broker
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	meta    *ristretto.Cache
	metaTTL time.Duration
}

func NewGuarded(next Broker, cfg GuardConfig) (*Guarded, error) {
	if cfg.Name == "" {
		cfg.Name = "broker"
	}
	if cfg.RPS <= 0 {
		cfg.RPS = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}

	st := gobreaker.Settings{Name: cfg.Name}
	st.Timeout = cfg.OpenTimeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= cfg.FailureThreshold
	}
	// Empty answers and cancellations say nothing about broker health.
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrNoData) || errors.Is(err, context.Canceled)
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e3,
		MaxCost:     100,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("meta cache: %w", err)
	}

	return &Guarded{
		next:    next,
		cb:      gobreaker.NewCircuitBreaker(st),
		limiter: rate.NewLimiter(rate.Limit(cfg.RPS), cfg.Burst),
		meta:    cache,
		metaTTL: cfg.MetaTTL,
	}, nil
}

// State reports the breaker state ("closed", "half-open", "open").
func (g *Guarded) State() string {
	return g.cb.State().String()
}

func guard[T any](ctx context.Context, g *Guarded, op string, fn func() (T, error)) (T, error) {
	var out T
	if err := g.limiter.Wait(ctx); err != nil {
		return out, err
	}

	v, err := g.cb.Execute(func() (interface{}, error) {
		r, err := fn()
		return r, err
	})
	if v != nil {
		out = v.(T)
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%s: %w", op, ErrUnavailable)
		}
		if !errors.Is(err, ErrNoData) {
			metrics.BrokerError(op)
		}
		return out, err
	}
	return out, nil
}

func (g *Guarded) Quote(ctx context.Context, instrument string) (Quote, error) {
	return guard(ctx, g, "quote", func() (Quote, error) {
		return g.next.Quote(ctx, instrument)
	})
}

func (g *Guarded) Candles(ctx context.Context, instrument string, interval time.Duration, from time.Time, count int) ([]market.Candle, error) {
	return guard(ctx, g, "candles", func() ([]market.Candle, error) {
		return g.next.Candles(ctx, instrument, interval, from, count)
	})
}

func (g *Guarded) AccountInfo(ctx context.Context) (Account, error) {
	return guard(ctx, g, "account", func() (Account, error) {
		return g.next.AccountInfo(ctx)
	})
}

func (g *Guarded) InstrumentMeta(ctx context.Context, instrument string) (InstrumentMeta, error) {
	if v, ok := g.meta.Get(instrument); ok {
		return v.(InstrumentMeta), nil
	}
	m, err := guard(ctx, g, "instrument", func() (InstrumentMeta, error) {
		return g.next.InstrumentMeta(ctx, instrument)
	})
	if err != nil {
		return m, err
	}
	g.meta.SetWithTTL(instrument, m, 1, g.metaTTL)
	return m, nil
}

func (g *Guarded) EstimateMargin(ctx context.Context, instrument string, dir Direction, volume, price float64) (float64, error) {
	return guard(ctx, g, "margin", func() (float64, error) {
		return g.next.EstimateMargin(ctx, instrument, dir, volume, price)
	})
}

func (g *Guarded) EstimateProfit(ctx context.Context, instrument string, dir Direction, volume, entry, exit float64) (float64, error) {
	return guard(ctx, g, "profit", func() (float64, error) {
		return g.next.EstimateProfit(ctx, instrument, dir, volume, entry, exit)
	})
}

func (g *Guarded) SubmitMarketOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	return guard(ctx, g, "order", func() (OrderResult, error) {
		return g.next.SubmitMarketOrder(ctx, req)
	})
}

func (g *Guarded) ModifyStops(ctx context.Context, ticket int64, stopLoss, takeProfit float64) (Status, error) {
	return guard(ctx, g, "modify", func() (Status, error) {
		return g.next.ModifyStops(ctx, ticket, stopLoss, takeProfit)
	})
}

func (g *Guarded) OpenPositions(ctx context.Context, instrument string) ([]Position, error) {
	return guard(ctx, g, "positions", func() ([]Position, error) {
		return g.next.OpenPositions(ctx, instrument)
	})
}

func (g *Guarded) HistoryDeals(ctx context.Context, start, end time.Time) ([]Deal, error) {
	return guard(ctx, g, "history", func() ([]Deal, error) {
		return g.next.HistoryDeals(ctx, start, end)
	})
}
