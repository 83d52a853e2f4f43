package risk

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/slottrader/broker"
	"github.com/rustyeddy/slottrader/metrics"
)

const (
	// LotStep is the volume added per $100 of budget.
	LotStep = 0.02
	// MinLots is the unconditional minimum order size.
	MinLots = 0.02
	// CapFloorLots is the smallest size the risk cap may clamp to.
	CapFloorLots = 0.01
	// DefaultPerUnitRisk is used when the broker cannot estimate profit.
	DefaultPerUnitRisk = 100.0
)

// Sizing modes.
const (
	ModeDrawdown = "drawdown"
	ModeBalance  = "balance"
)

// LotInputs are the pure inputs of drawdown sizing.
type LotInputs struct {
	Cap         float64 // daily risk cap, account currency
	Realized    float64 // intraday realized P/L
	Dynamic     bool    // whether Realized moves the budget
	SLDistance  float64 // stop distance in price units
	PerUnitRisk float64 // P/L of 1 lot over a 1.0 price move; 0 disables the cap
}

// Lots sizes an order from the intraday budget. Every full $100 of budget
// adds one LotStep. The size is clamped down so a stop-out loses no more
// than Cap, but never below MinLots: the floor wins over the cap, so at
// minimum size the realized risk may exceed Cap.
func Lots(in LotInputs) float64 {
	budget := decimal.NewFromFloat(in.Cap)
	if in.Dynamic {
		budget = budget.Add(decimal.NewFromFloat(in.Realized))
	}
	if budget.IsNegative() {
		budget = decimal.Zero
	}

	steps := budget.Div(decimal.NewFromInt(100)).Floor()
	raw := steps.Mul(decimal.NewFromFloat(LotStep)).Round(2)

	if in.PerUnitRisk > 0 && in.SLDistance > 0 {
		maxByCap := in.Cap / (in.SLDistance * in.PerUnitRisk)
		if raw.InexactFloat64() > maxByCap {
			clamped := decimal.NewFromFloat(maxByCap - 1e-9).RoundDown(2)
			raw = decimal.Max(decimal.NewFromFloat(CapFloorLots), clamped)
		}
	}

	return decimal.Max(decimal.NewFromFloat(MinLots), raw).InexactFloat64()
}

// BalanceLots sizes at one LotStep per $100 of balance, at least one step.
func BalanceLots(balance float64) float64 {
	steps := decimal.NewFromFloat(balance).Div(decimal.NewFromInt(100)).Floor()
	if steps.LessThan(decimal.NewFromInt(1)) {
		steps = decimal.NewFromInt(1)
	}
	return steps.Mul(decimal.NewFromFloat(LotStep)).Round(2).InexactFloat64()
}

// Market is the broker surface the sizer reads.
type Market interface {
	Quote(ctx context.Context, instrument string) (broker.Quote, error)
	AccountInfo(ctx context.Context) (broker.Account, error)
	EstimateProfit(ctx context.Context, instrument string, dir broker.Direction, volume, entry, exit float64) (float64, error)
}

type SizerConfig struct {
	Instrument   string
	Mode         string
	Cap          float64
	Dynamic      bool
	SLDistance   float64
	FallbackRisk float64
}

// Sizer computes the order volume for the next slot.
type Sizer struct {
	cfg    SizerConfig
	market Market
	budget *Budget
	log    zerolog.Logger
}

func NewSizer(cfg SizerConfig, m Market, b *Budget, log zerolog.Logger) (*Sizer, error) {
	switch cfg.Mode {
	case "":
		cfg.Mode = ModeDrawdown
	case ModeDrawdown, ModeBalance:
	default:
		return nil, fmt.Errorf("risk: unknown sizing mode %q", cfg.Mode)
	}
	if cfg.FallbackRisk <= 0 {
		cfg.FallbackRisk = DefaultPerUnitRisk
	}
	if b == nil {
		b = &Budget{}
	}
	return &Sizer{cfg: cfg, market: m, budget: b, log: log}, nil
}

// Size returns the lots for an order placed now.
func (s *Sizer) Size(ctx context.Context) float64 {
	var lots float64
	if s.cfg.Mode == ModeBalance {
		balance := 100.0
		if acct, err := s.market.AccountInfo(ctx); err == nil {
			balance = acct.Balance
		} else {
			s.log.Warn().Err(err).Msg("account info unavailable; sizing from minimum balance")
		}
		lots = BalanceLots(balance)
	} else {
		in := LotInputs{
			Cap:         s.cfg.Cap,
			Realized:    s.budget.Realized(),
			Dynamic:     s.cfg.Dynamic,
			SLDistance:  s.cfg.SLDistance,
			PerUnitRisk: s.PerUnitRisk(ctx),
		}
		lots = Lots(in)
		s.log.Debug().
			Float64("cap", in.Cap).
			Float64("realized", in.Realized).
			Float64("per_unit_risk", in.PerUnitRisk).
			Float64("lots", lots).
			Msg("sized order")
	}
	metrics.SetLotSize(lots)
	return lots
}

// PerUnitRisk is the absolute P/L of a 1-lot long over a 1.0 price move
// at the current bid. Any failure yields the fallback constant.
func (s *Sizer) PerUnitRisk(ctx context.Context) float64 {
	q, err := s.market.Quote(ctx, s.cfg.Instrument)
	if err != nil {
		return s.cfg.FallbackRisk
	}
	ref := q.Bid
	if ref == 0 {
		ref = q.Ask
	}
	pl, err := s.market.EstimateProfit(ctx, s.cfg.Instrument, broker.Long, 1.0, ref, ref+1.0)
	if err != nil {
		return s.cfg.FallbackRisk
	}
	return math.Abs(pl)
}
