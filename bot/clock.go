package bot

import (
	"context"
	"math"
	"time"

	"github.com/rustyeddy/slottrader/broker"
	"github.com/rustyeddy/slottrader/schedule"
)

// Clock reads the two clocks the bot works with. Server time is the
// broker's latest quote time; civil time is the local clock in the
// schedule's zone.
type Clock struct {
	broker     broker.Broker
	instrument string
	tr         *schedule.Translator
	now        func() time.Time
}

func NewClock(b broker.Broker, instrument string, tr *schedule.Translator) *Clock {
	return &Clock{broker: b, instrument: instrument, tr: tr, now: time.Now}
}

// Civil is the local clock in the civil zone.
func (c *Clock) Civil() time.Time {
	return c.now().In(c.tr.Civil())
}

// Server returns the broker's clock. Without a quote it falls back to the
// civil wall clock shifted by the day's offset, and reports false.
func (c *Clock) Server(ctx context.Context) (time.Time, bool) {
	if q, err := c.broker.Quote(ctx, c.instrument); err == nil && !q.Time.IsZero() {
		return q.Time.UTC(), true
	}
	civ := c.Civil()
	shift := time.Duration(c.tr.OffsetMinutes(civ)) * time.Minute
	return wallUTC(civ).Add(shift), false
}

// wallUTC keeps the wall clock of t and drops its zone.
func wallUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// measuredOffset is the observed server-minus-civil difference in minutes.
func measuredOffset(server, civil time.Time) int {
	return int(math.Round(server.Sub(wallUTC(civil)).Minutes()))
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
