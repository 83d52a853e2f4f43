package sim

import (
	"math"

	"github.com/rustyeddy/slottrader/broker"
)

// ProfitLoss is the account-currency P/L of volume lots moved from entry
// to exit. Quote currency is assumed to be the account currency.
func ProfitLoss(m broker.InstrumentMeta, dir broker.Direction, volume, entry, exit float64) float64 {
	return dir.Sign() * volume * contractSize(m) * (exit - entry)
}

// TradeMargin is the margin held for volume lots at price.
func TradeMargin(m broker.InstrumentMeta, volume, price float64) float64 {
	return math.Abs(volume) * contractSize(m) * price * m.MarginRate
}

func contractSize(m broker.InstrumentMeta) float64 {
	if m.ContractSize <= 0 {
		return 1
	}
	return m.ContractSize
}

func hitStopLoss(p *position, price float64) bool {
	if p.StopLoss == 0 {
		return false
	}
	if p.Direction == broker.Long {
		return price <= p.StopLoss
	}
	return price >= p.StopLoss
}

func hitTakeProfit(p *position, price float64) bool {
	if p.TakeProfit == 0 {
		return false
	}
	if p.Direction == broker.Long {
		return price >= p.TakeProfit
	}
	return price <= p.TakeProfit
}

// stopsValid checks side and minimum distance of attached stops. Zero
// means "no stop".
func stopsValid(m broker.InstrumentMeta, dir broker.Direction, price, sl, tp float64) bool {
	minDist := m.MinStopDistance() - m.Point/2
	if sl != 0 {
		if dir.Sign()*(price-sl) < minDist || dir.Sign()*(price-sl) <= 0 {
			return false
		}
	}
	if tp != 0 {
		if dir.Sign()*(tp-price) < minDist || dir.Sign()*(tp-price) <= 0 {
			return false
		}
	}
	return true
}
