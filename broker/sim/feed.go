package sim

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rustyeddy/slottrader/broker"
	"github.com/rustyeddy/slottrader/market"
)

// Walk drives the engine with a random-walk quote stream for paper runs.
type Walk struct {
	Instrument string
	Start      float64 // initial mid
	Spread     float64
	Volatility float64 // stddev of a one-step mid move, price units
	Every      time.Duration
	// ServerOffset shifts the local UTC clock onto the simulated server
	// clock (e.g. +3h for a GMT+3 terminal).
	ServerOffset time.Duration
	Seed         int64
}

// Run feeds quotes until ctx is done.
func (w Walk) Run(ctx context.Context, e *Engine) error {
	every := w.Every
	if every <= 0 {
		every = time.Second
	}
	seed := w.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	digits := 2
	if m, err := e.InstrumentMeta(ctx, w.Instrument); err == nil {
		digits = m.Digits
	}

	mid := w.Start
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if err := e.UpdateQuote(w.quote(mid, digits, time.Now())); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			mid = math.Max(w.Spread, mid+rng.NormFloat64()*w.Volatility)
		}
	}
}

func (w Walk) quote(mid float64, digits int, now time.Time) broker.Quote {
	half := w.Spread / 2
	return broker.Quote{
		Instrument: w.Instrument,
		Bid:        market.RoundTo(mid-half, digits),
		Ask:        market.RoundTo(mid+half, digits),
		Time:       now.UTC().Add(w.ServerOffset).Truncate(time.Second),
	}
}
