package oanda

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rustyeddy/slottrader/broker"
	"github.com/rustyeddy/slottrader/market"
)

// Granularity represents the time frame for candles
type Granularity string

const (
	S5  Granularity = "S5"
	S10 Granularity = "S10"
	S15 Granularity = "S15"
	S30 Granularity = "S30"
	M1  Granularity = "M1"
	M2  Granularity = "M2"
	M4  Granularity = "M4"
	M5  Granularity = "M5"
	M10 Granularity = "M10"
	M15 Granularity = "M15"
	M30 Granularity = "M30"
	H1  Granularity = "H1"
	H2  Granularity = "H2"
	H3  Granularity = "H3"
	H4  Granularity = "H4"
	H6  Granularity = "H6"
	H8  Granularity = "H8"
	H12 Granularity = "H12"
	D   Granularity = "D"
)

var granularities = map[time.Duration]Granularity{
	5 * time.Second:  S5,
	10 * time.Second: S10,
	15 * time.Second: S15,
	30 * time.Second: S30,
	time.Minute:      M1,
	2 * time.Minute:  M2,
	4 * time.Minute:  M4,
	5 * time.Minute:  M5,
	10 * time.Minute: M10,
	15 * time.Minute: M15,
	30 * time.Minute: M30,
	time.Hour:        H1,
	2 * time.Hour:    H2,
	3 * time.Hour:    H3,
	4 * time.Hour:    H4,
	6 * time.Hour:    H6,
	8 * time.Hour:    H8,
	12 * time.Hour:   H12,
	24 * time.Hour:   D,
}

// GranularityFor maps a bar interval onto an OANDA granularity.
func GranularityFor(d time.Duration) (Granularity, error) {
	g, ok := granularities[d]
	if !ok {
		return "", fmt.Errorf("oanda: no granularity for %s", d)
	}
	return g, nil
}

// candleData represents the OHLC data in the API response
type candleData struct {
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
}

type apiCandle struct {
	Complete bool       `json:"complete"`
	Volume   int        `json:"volume"`
	Time     string     `json:"time"`
	Mid      candleData `json:"mid"`
}

type candlesResponse struct {
	Instrument  string      `json:"instrument"`
	Granularity string      `json:"granularity"`
	Candles     []apiCandle `json:"candles"`
}

// Candles fetches up to count completed mid bars whose open time is at or
// before from.
func (c *Client) Candles(ctx context.Context, instrument string, interval time.Duration, from time.Time, count int) ([]market.Candle, error) {
	if instrument == "" {
		return nil, fmt.Errorf("instrument is required")
	}
	gran, err := GranularityFor(interval)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 1
	}
	if count > 5000 {
		return nil, fmt.Errorf("count cannot exceed 5000")
	}

	params := url.Values{}
	params.Set("price", "M")
	params.Set("granularity", string(gran))
	params.Set("count", strconv.Itoa(count))
	// "to" is exclusive; nudge past from so its bar is included.
	params.Set("to", from.Add(time.Second).UTC().Format(time.RFC3339))

	var resp candlesResponse
	path := "/v3/instruments/" + url.PathEscape(instrument) + "/candles"
	if err := c.do(ctx, http.MethodGet, path, params, nil, &resp); err != nil {
		return nil, fmt.Errorf("candles %s: %w", instrument, err)
	}

	candles := make([]market.Candle, 0, len(resp.Candles))
	for _, ac := range resp.Candles {
		// Skip incomplete candles
		if !ac.Complete {
			continue
		}
		t, err := parseTime(ac.Time)
		if err != nil {
			return nil, err
		}
		if t.After(from) {
			continue
		}
		cd, err := ac.Mid.candle()
		if err != nil {
			return nil, err
		}
		cd.Time = t
		cd.Volume = float64(ac.Volume)
		candles = append(candles, cd)
	}
	if len(candles) == 0 {
		return nil, broker.ErrNoData
	}
	return candles, nil
}

func (d candleData) candle() (market.Candle, error) {
	open, err := parseFloat(d.O)
	if err != nil {
		return market.Candle{}, fmt.Errorf("parse open price: %w", err)
	}
	high, err := parseFloat(d.H)
	if err != nil {
		return market.Candle{}, fmt.Errorf("parse high price: %w", err)
	}
	low, err := parseFloat(d.L)
	if err != nil {
		return market.Candle{}, fmt.Errorf("parse low price: %w", err)
	}
	closePrice, err := parseFloat(d.C)
	if err != nil {
		return market.Candle{}, fmt.Errorf("parse close price: %w", err)
	}
	return market.Candle{Open: open, High: high, Low: low, Close: closePrice}, nil
}
