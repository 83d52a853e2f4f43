package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/slottrader/market"
)

// Broker is the terminal capability the bot trades against. Every
// implementation must be safe for concurrent use: the trigger loop and
// the per-trade watchers call it from different goroutines.
type Broker interface {
	Quote(ctx context.Context, instrument string) (Quote, error)
	// Candles returns up to count bars of the given interval, ending with
	// the bar whose open time is at or before from. Bars are oldest first.
	Candles(ctx context.Context, instrument string, interval time.Duration, from time.Time, count int) ([]market.Candle, error)
	AccountInfo(ctx context.Context) (Account, error)
	InstrumentMeta(ctx context.Context, instrument string) (InstrumentMeta, error)
	EstimateMargin(ctx context.Context, instrument string, dir Direction, volume, price float64) (float64, error)
	EstimateProfit(ctx context.Context, instrument string, dir Direction, volume, entry, exit float64) (float64, error)
	SubmitMarketOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ModifyStops(ctx context.Context, ticket int64, stopLoss, takeProfit float64) (Status, error)
	OpenPositions(ctx context.Context, instrument string) ([]Position, error)
	HistoryDeals(ctx context.Context, start, end time.Time) ([]Deal, error)
}

var (
	// ErrNoData is returned when a query succeeded but had nothing to say
	// (no tick yet, no bar for the window, unknown ticket).
	ErrNoData = errors.New("broker: no data")
	// ErrUnavailable is returned while the broker guard is refusing calls.
	ErrUnavailable = errors.New("broker: unavailable")
)

// Direction is the side of a position.
type Direction int

const (
	Long Direction = iota + 1
	Short
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "BUY"
	case Short:
		return "SELL"
	default:
		return "NONE"
	}
}

// Sign is +1 for longs and -1 for shorts.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// Status is the broker's verdict on a trade request.
type Status int

const (
	StatusDone Status = iota
	StatusRejected
	StatusNoMoney
	StatusInvalidStops
	StatusMarketClosed
	StatusRequote
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusDone:
		return "done"
	case StatusRejected:
		return "rejected"
	case StatusNoMoney:
		return "no_money"
	case StatusInvalidStops:
		return "invalid_stops"
	case StatusMarketClosed:
		return "market_closed"
	case StatusRequote:
		return "requote"
	default:
		return "error"
	}
}

// RejectedError reports a trade request the broker refused.
type RejectedError struct {
	Status  Status
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("order rejected: %s", e.Status)
	}
	return fmt.Sprintf("order rejected: %s: %s", e.Status, e.Message)
}

// Quote is the latest tick. Time is the broker server clock.
type Quote struct {
	Instrument string
	Bid        float64
	Ask        float64
	Time       time.Time
}

func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// PriceFor returns the price a market order in dir would fill at.
func (q Quote) PriceFor(dir Direction) float64 {
	if dir == Short {
		return q.Bid
	}
	return q.Ask
}

type Account struct {
	ID         string
	Currency   string
	Balance    float64
	Equity     float64
	MarginUsed float64
	FreeMargin float64
}

// InstrumentMeta is the subset of symbol properties the bot relies on.
type InstrumentMeta struct {
	Name         string
	Point        float64
	Digits       int
	StopsLevel   int     // minimum stop distance, in points
	ContractSize float64 // units per 1.0 lot
	MarginRate   float64
}

// MinStopDistance is the minimum stop distance in price units.
func (m InstrumentMeta) MinStopDistance() float64 {
	if m.StopsLevel <= 0 {
		return 0
	}
	return float64(m.StopsLevel) * m.Point
}

type OrderRequest struct {
	Instrument string
	Direction  Direction
	Volume     float64
	Price      float64
	StopLoss   float64
	TakeProfit float64
	Deviation  int
	Magic      int64
	Comment    string
	// Tag is the structured correlation id. Brokers that support custom
	// order metadata carry it separately; others rely on Comment.
	Tag string
}

type OrderResult struct {
	Status         Status
	PositionTicket int64
	DealTicket     int64
	Price          float64
	Message        string
}

type Position struct {
	Ticket     int64
	Instrument string
	Magic      int64
	Comment    string
	Tag        string
	Direction  Direction
	Volume     float64
	EntryPrice float64
	StopLoss   float64
	TakeProfit float64
	OpenTime   time.Time
}

type Deal struct {
	Ticket     int64
	PositionID int64
	Instrument string
	Profit     float64
	Time       time.Time
	Comment    string
	Tag        string
}
