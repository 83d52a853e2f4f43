package market

import "time"

// Candle represents OHLC (Open, High, Low, Close) candlestick data.
// Time is the bar open time on the broker's server clock.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	time.Time
	Volume float64
}

// Bullish reports whether the bar closed above its open ("green").
// A doji (close == open) is not bullish.
func (c Candle) Bullish() bool {
	return c.Close > c.Open
}

// Color returns "Green" for a bullish bar and "Red" otherwise.
func (c Candle) Color() string {
	if c.Bullish() {
		return "Green"
	}
	return "Red"
}
