package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	intent := TradeIntent{Volume: 0.02, Entry: 2000.30, Stop: 1998.30, TakeProfit: 2005.30, PerUnitRisk: 100}

	tests := []struct {
		name     string
		intent   TradeIntent
		free     float64
		required float64
		allowed  bool
		reason   string
	}{
		{"enough margin", intent, 1000, 40, true, ""},
		{"exactly enough", intent, 40, 40, true, ""},
		{"insufficient margin", intent, 39.99, 40, false, "INSUFFICIENT_MARGIN"},
		{"no volume", TradeIntent{Entry: 2000}, 1000, 0, false, "NO_VOLUME"},
		{"no entry", TradeIntent{Volume: 0.02}, 1000, 0, false, "NO_ENTRY"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Evaluate(tt.intent, AccountSnapshot{FreeMargin: tt.free}, tt.required)
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason())
		})
	}
}

func TestEvaluatePlannedRisk(t *testing.T) {
	t.Parallel()

	d := Evaluate(TradeIntent{Volume: 0.02, Entry: 2000.30, Stop: 1998.30, TakeProfit: 2005.30, PerUnitRisk: 100},
		AccountSnapshot{FreeMargin: 1000}, 40)
	assert.InDelta(t, 4.0, d.PlannedRisk, 1e-9)
	assert.InDelta(t, 2.5, d.PlannedRR, 1e-9)
	assert.Equal(t, 40.0, d.RequiredMargin)
}

func TestRR(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2.5, RR(100, 98, 105), 1e-12)
	assert.Zero(t, RR(100, 100, 105))
	assert.Zero(t, RR(100, 98, 0))
}
