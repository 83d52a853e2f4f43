package journal

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) (*SQLite, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)

	return j, path
}

func TestSQLiteSchemaCreated(t *testing.T) {
	t.Parallel()

	j, path := newTestSQLite(t)
	require.NoError(t, j.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var name string
	err = db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name = 'trades'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "trades", name)
}

func TestSQLiteRecordAndGet(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	rec := sampleRecord(time.Date(2024, 1, 15, 13, 35, 0, 0, time.UTC), OutcomeTP, 10)
	rec.ID = "01HM0000000000000000000000"
	require.NoError(t, j.RecordTrade(rec))

	got, err := j.GetTrade(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.Tag, got.Tag)
	assert.Equal(t, rec.Ticket, got.Ticket)
	assert.Equal(t, rec.Profit, got.Profit)
	assert.True(t, rec.OpenedAt.Equal(got.OpenedAt))
	assert.True(t, rec.ClosedAt.Equal(got.ClosedAt))

	_, err = j.GetTrade("missing")
	assert.ErrorContains(t, err, "not found")

	// Duplicate primary key.
	assert.Error(t, j.RecordTrade(rec))
}

func TestSQLiteDayAndSummary(t *testing.T) {
	t.Parallel()

	j, _ := newTestSQLite(t)
	t.Cleanup(func() { _ = j.Close() })

	day := time.Date(2024, 1, 15, 13, 35, 0, 0, time.UTC)
	require.NoError(t, j.RecordTrade(sampleRecord(day, OutcomeTP, 10)))
	require.NoError(t, j.RecordTrade(sampleRecord(day.Add(2*time.Hour), OutcomeSL, -4)))
	require.NoError(t, j.RecordTrade(sampleRecord(day.Add(3*time.Hour), OutcomeClosed, 0)))
	require.NoError(t, j.RecordTrade(sampleRecord(day.AddDate(0, 0, 1), OutcomeTP, 10)))

	trades, err := j.Day(day)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, OutcomeTP, trades[0].Outcome)
	assert.NotEmpty(t, trades[0].ID, "ids are assigned when missing")

	s := Summarize(trades)
	assert.Equal(t, 3, s.Trades)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.InDelta(t, 6.0, s.NetProfit, 1e-9)
	assert.InDelta(t, 2.5, s.ProfitFactor, 1e-9)
}
