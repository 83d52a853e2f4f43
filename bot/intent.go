// Package bot runs the timed strategy: the trigger loop, slot firing, the
// stop re-anchor and the per-trade watchers.
package bot

import (
	"time"

	"github.com/rustyeddy/slottrader/broker"
	"github.com/rustyeddy/slottrader/journal"
)

// Intent is the decision taken when a slot fires.
type Intent struct {
	Tag        string
	Direction  broker.Direction
	Volume     float64
	SLDistance float64
	TPDistance float64
}

// Stops returns stop-loss and take-profit for an entry at price.
func (i Intent) Stops(price float64) (sl, tp float64) {
	return stopsFrom(i.Direction, price, i.SLDistance, i.TPDistance)
}

func stopsFrom(dir broker.Direction, price, slDist, tpDist float64) (sl, tp float64) {
	s := dir.Sign()
	return price - s*slDist, price + s*tpDist
}

// OpenPosition is what a watcher tracks. Ticket is zero until resolved.
// Entry and stops start as requested and are replaced by the confirmed
// values after a re-anchor.
type OpenPosition struct {
	Ticket     int64
	Tag        string
	Comment    string
	Instrument string
	Direction  broker.Direction
	Volume     float64
	Entry      float64
	StopLoss   float64
	TakeProfit float64
	// OpenedAt is the slot instant on the server clock.
	OpenedAt time.Time
}

// record builds the journal row for a closed position.
func (p OpenPosition) record(outcome string, profit, balance float64, closedAt time.Time) journal.TradeRecord {
	return journal.TradeRecord{
		Tag:        p.Tag,
		Instrument: p.Instrument,
		Ticket:     p.Ticket,
		Direction:  p.Direction.String(),
		Volume:     p.Volume,
		Entry:      p.Entry,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Outcome:    outcome,
		Profit:     profit,
		Balance:    balance,
		OpenedAt:   p.OpenedAt,
		ClosedAt:   closedAt,
	}
}
