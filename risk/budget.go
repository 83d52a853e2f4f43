package risk

import (
	"sync"

	"github.com/rustyeddy/slottrader/metrics"
)

// Budget is the realized P/L of the current server day. Watchers add to
// it as trades close; the loop resets it at rollover.
type Budget struct {
	mu       sync.Mutex
	realized float64
}

// Add accumulates profit and returns the new total.
func (b *Budget) Add(profit float64) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.realized += profit
	metrics.SetIntradayPnL(b.realized)
	return b.realized
}

func (b *Budget) Realized() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.realized
}

func (b *Budget) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.realized = 0
	metrics.SetIntradayPnL(0)
}
