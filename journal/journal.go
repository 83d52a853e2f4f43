package journal

import (
	"errors"
	"time"
)

// Outcomes of a closed trade.
const (
	OutcomeTP     = "TP"
	OutcomeSL     = "SL"
	OutcomeWin    = "WIN"
	OutcomeLoss   = "LOSS"
	OutcomeClosed = "Closed"
)

// TradeRecord is one completed trade. OpenedAt is the slot instant on the
// server clock and decides which day's log the record lands in.
type TradeRecord struct {
	ID         string
	Tag        string
	Instrument string
	Ticket     int64
	Direction  string // BUY or SELL
	Volume     float64
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	Outcome    string
	Profit     float64
	Balance    float64
	OpenedAt   time.Time
	ClosedAt   time.Time
}

// Day is the server date the record is filed under.
func (r TradeRecord) Day() time.Time {
	y, m, d := r.OpenedAt.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

type Journal interface {
	RecordTrade(TradeRecord) error
	Close() error
}

// Tee fans records out to several journals. Every sink is attempted.
type Tee []Journal

func (t Tee) RecordTrade(r TradeRecord) error {
	var errs []error
	for _, j := range t {
		if err := j.RecordTrade(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t Tee) Close() error {
	var errs []error
	for _, j := range t {
		if err := j.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
