package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/slottrader/schedule"
)

func TestClock(t *testing.T) {
	t.Parallel()

	ist := time.FixedZone("IST", 5*3600+30*60)
	offset := 180
	tr, err := schedule.NewTranslator(schedule.Options{
		Labels:          []string{"19:05"},
		Civil:           ist,
		OverrideMinutes: &offset,
	})
	require.NoError(t, err)

	// 23:40 on the 15th in the civil zone; the server is past midnight.
	local := time.Date(2024, 1, 15, 18, 10, 0, 0, time.UTC)

	t.Run("civil time follows the local zone", func(t *testing.T) {
		t.Parallel()
		c := fixedClock(newSim(t, 1000), tr, local)
		assert.Equal(t, "2024-01-15 23:40", c.Civil().Format("2006-01-02 15:04"))
	})

	t.Run("server time from the last quote", func(t *testing.T) {
		t.Parallel()
		e := newSim(t, 1000)
		qt := time.Date(2024, 1, 16, 2, 41, 7, 0, time.UTC)
		quote(t, e, 2000, 2000.3, qt)
		c := fixedClock(e, tr, local)

		now, fromBroker := c.Server(context.Background())
		assert.True(t, fromBroker)
		assert.Equal(t, qt, now)
		assert.Equal(t, 181, measuredOffset(now, c.Civil()))
	})

	t.Run("falls back to civil plus offset", func(t *testing.T) {
		t.Parallel()
		c := fixedClock(newSim(t, 1000), tr, local)

		now, fromBroker := c.Server(context.Background())
		assert.False(t, fromBroker)
		assert.Equal(t, time.Date(2024, 1, 16, 2, 40, 0, 0, time.UTC), now)
	})
}
