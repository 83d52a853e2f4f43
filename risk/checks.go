package risk

import (
	"fmt"
	"math"
	"strings"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Violations []Violation

	RequiredMargin float64
	PlannedRisk    float64
	PlannedRR      float64
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
}

// Reason joins the violation codes for logging.
func (d Decision) Reason() string {
	codes := make([]string, 0, len(d.Violations))
	for _, v := range d.Violations {
		codes = append(codes, v.Code)
	}
	return strings.Join(codes, ",")
}

// TradeIntent is what the executor is about to send.
type TradeIntent struct {
	Volume      float64
	Entry       float64
	Stop        float64
	TakeProfit  float64
	PerUnitRisk float64 // P/L of 1 lot over a 1.0 price move
}

type AccountSnapshot struct {
	Balance    float64
	Equity     float64
	FreeMargin float64
}

// Evaluate is the pre-submit gate. requiredMargin comes from the broker's
// margin estimate for the intent.
func Evaluate(intent TradeIntent, acct AccountSnapshot, requiredMargin float64) Decision {
	d := Decision{Allowed: true, RequiredMargin: requiredMargin}

	if intent.Volume <= 0 {
		d.add("NO_VOLUME", "volume must be positive")
		return d
	}
	if intent.Entry <= 0 {
		d.add("NO_ENTRY", "entry price must be set")
		return d
	}

	d.PlannedRisk = PlannedRisk(intent.Volume, intent.Entry, intent.Stop, intent.PerUnitRisk)
	d.PlannedRR = RR(intent.Entry, intent.Stop, intent.TakeProfit)

	if requiredMargin > acct.FreeMargin {
		d.add("INSUFFICIENT_MARGIN",
			fmt.Sprintf("required margin %.2f exceeds free margin %.2f", requiredMargin, acct.FreeMargin))
	}
	return d
}

// PlannedRisk is the loss if the stop is hit.
func PlannedRisk(volume, entry, stop, perUnitRisk float64) float64 {
	if stop == 0 {
		return 0
	}
	return volume * math.Abs(entry-stop) * perUnitRisk
}

func RR(entry, stop, takeProfit float64) float64 {
	risk := math.Abs(entry - stop)
	reward := math.Abs(takeProfit - entry)
	if risk == 0 || takeProfit == 0 {
		return 0
	}
	return reward / risk
}
