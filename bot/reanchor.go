package bot

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/slottrader/broker"
	"github.com/rustyeddy/slottrader/market"
	"github.com/rustyeddy/slottrader/metrics"
)

// Reanchor results, also used as metric labels.
const (
	ReanchorModified = "modified"
	ReanchorAligned  = "aligned"
	ReanchorMissing  = "missing"
	ReanchorFailed   = "failed"
)

// Anchor is the outcome of a re-anchor. Entry and stops are the confirmed
// values when the position was found.
type Anchor struct {
	Result     string
	Entry      float64
	StopLoss   float64
	TakeProfit float64
}

// Found reports whether the position was still open.
func (a Anchor) Found() bool {
	return a.Result != ReanchorMissing && a.Entry != 0
}

// Reanchorer moves stops so they are measured from the actual fill price
// rather than the price the order was sent at.
type Reanchorer struct {
	broker     broker.Broker
	instrument string
	slDist     float64
	tpDist     float64
	log        zerolog.Logger
}

func NewReanchorer(b broker.Broker, instrument string, slDist, tpDist float64, log zerolog.Logger) *Reanchorer {
	return &Reanchorer{broker: b, instrument: instrument, slDist: slDist, tpDist: tpDist, log: log}
}

func (r *Reanchorer) Reanchor(ctx context.Context, ticket int64, dir broker.Direction) (Anchor, error) {
	a, err := r.reanchor(ctx, ticket, dir)
	metrics.Reanchor(a.Result)
	return a, err
}

func (r *Reanchorer) reanchor(ctx context.Context, ticket int64, dir broker.Direction) (Anchor, error) {
	positions, err := r.broker.OpenPositions(ctx, r.instrument)
	if err != nil {
		return Anchor{Result: ReanchorFailed}, fmt.Errorf("reanchor %d: %w", ticket, err)
	}
	var pos *broker.Position
	for i := range positions {
		if positions[i].Ticket == ticket {
			pos = &positions[i]
			break
		}
	}
	if pos == nil {
		r.log.Info().Int64("ticket", ticket).Msg("position not found, reanchor skipped")
		return Anchor{Result: ReanchorMissing}, nil
	}

	meta, err := r.broker.InstrumentMeta(ctx, r.instrument)
	if err != nil {
		return Anchor{Result: ReanchorFailed, Entry: pos.EntryPrice, StopLoss: pos.StopLoss, TakeProfit: pos.TakeProfit},
			fmt.Errorf("reanchor %d: %w", ticket, err)
	}

	sl, tp := AnchorStops(meta, dir, pos.EntryPrice, r.slDist, r.tpDist)
	a := Anchor{Entry: pos.EntryPrice, StopLoss: sl, TakeProfit: tp}

	if math.Abs(pos.StopLoss-sl) < meta.Point && math.Abs(pos.TakeProfit-tp) < meta.Point {
		a.Result = ReanchorAligned
		return a, nil
	}

	status, err := r.broker.ModifyStops(ctx, ticket, sl, tp)
	if err != nil || status != broker.StatusDone {
		a.Result = ReanchorFailed
		a.StopLoss, a.TakeProfit = pos.StopLoss, pos.TakeProfit
		if err == nil {
			err = &broker.RejectedError{Status: status, Message: "modify stops"}
		}
		return a, fmt.Errorf("reanchor %d: %w", ticket, err)
	}

	r.log.Info().
		Int64("ticket", ticket).
		Float64("entry", pos.EntryPrice).
		Float64("sl", sl).
		Float64("tp", tp).
		Msg("stops re-anchored")
	a.Result = ReanchorModified
	return a, nil
}

// AnchorStops derives stops from entry, rounded to the instrument's digits
// and pushed out to the broker's minimum stop distance.
func AnchorStops(meta broker.InstrumentMeta, dir broker.Direction, entry, slDist, tpDist float64) (sl, tp float64) {
	sl, tp = stopsFrom(dir, entry, slDist, tpDist)
	sl = market.RoundTo(sl, meta.Digits)
	tp = market.RoundTo(tp, meta.Digits)

	minDist := meta.MinStopDistance()
	if minDist <= 0 {
		return sl, tp
	}
	s := dir.Sign()
	if s*(entry-sl) < minDist {
		sl = market.RoundTo(entry-s*minDist, meta.Digits)
	}
	if s*(tp-entry) < minDist {
		tp = market.RoundTo(entry+s*minDist, meta.Digits)
	}
	return sl, tp
}
