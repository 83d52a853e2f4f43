//go:build blackbox

package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/slottrader/config"
	"github.com/rustyeddy/slottrader/journal"
)

var bin string

func TestMain(m *testing.M) {
	tmp, err := os.MkdirTemp("", "slottrader-blackbox-*")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmp)

	bin = filepath.Join(tmp, "slottrader")

	// Build the binary once for all tests.
	cmd := exec.Command("go", "build", "-o", bin, ".")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		panic(err)
	}

	os.Exit(m.Run())
}

func run(t *testing.T, args ...string) string {
	t.Helper()

	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), "SMTP_USERNAME=", "SMTP_PASSWORD=")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "args: %v\noutput:\n%s", args, out)
	return string(out)
}

// writeConfig saves the defaults with journal output under dir.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := config.Default()
	cfg.Journal.Dir = filepath.Join(dir, "logs")
	cfg.Journal.DBPath = filepath.Join(dir, "trades.sqlite")
	path := filepath.Join(dir, "slottrader.yaml")
	require.NoError(t, cfg.SaveToFile(path))
	return path
}

func TestConfigInitValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.yaml")

	out := run(t, "config", "init", "-o", path)
	assert.Contains(t, out, "Created default configuration")

	out = run(t, "config", "validate", "-f", path)
	assert.Contains(t, out, "Configuration valid")
	assert.Contains(t, out, "XAU_USD")
}

func TestScheduleCommand(t *testing.T) {
	path := writeConfig(t, t.TempDir())

	out := run(t, "schedule", "-f", path, "--day", "2024-01-15")
	assert.Contains(t, out, "offset +180 min (configured)")
	assert.Contains(t, out, "13:35   2024-01-15 16:35")
	assert.Contains(t, out, "2024-01-15_13:35")
	assert.Equal(t, 10, strings.Count(out, "2024-01-15_"))
}

func TestReportAndJournal(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir)

	csv, err := journal.NewDailyCSV(filepath.Join(dir, "logs"), 3)
	require.NoError(t, err)
	db, err := journal.NewSQLite(filepath.Join(dir, "trades.sqlite"))
	require.NoError(t, err)

	rec := journal.TradeRecord{
		ID:         "01HM0Z8K3F6T4XJ2R5N7Q9W1YB",
		Tag:        "2024-01-31_13:35",
		Instrument: "XAU_USD",
		Ticket:     4242,
		Direction:  "BUY",
		Volume:     0.02,
		Entry:      2040.3,
		StopLoss:   2038.3,
		TakeProfit: 2045.3,
		Outcome:    journal.OutcomeTP,
		Profit:     10,
		Balance:    1260,
		OpenedAt:   time.Date(2024, 1, 31, 16, 35, 0, 0, time.UTC),
		ClosedAt:   time.Date(2024, 1, 31, 17, 2, 0, 0, time.UTC),
	}
	require.NoError(t, journal.Tee{csv, db}.RecordTrade(rec))
	require.NoError(t, db.Close())

	// 2024-01-31 is a Wednesday and the end of the month.
	out := run(t, "report", "-f", path, "--day", "2024-01-31", "--env-file", filepath.Join(dir, "none.env"))
	assert.Contains(t, out, "daily report 2024-01-31 sent")
	assert.Contains(t, out, "monthly report 2024-01 sent")
	assert.NotContains(t, out, "weekly")
	assert.FileExists(t, filepath.Join(dir, "logs", "monthly_2024-01.csv"))

	out = run(t, "report", "-f", path, "--day", "2024-01-31", "--env-file", filepath.Join(dir, "none.env"))
	assert.Contains(t, out, "Nothing to send for 2024-01-31")

	out = run(t, "journal", "day", "2024-01-31", "-f", path)
	assert.Contains(t, out, "2024-01-31_13:35")
	assert.Contains(t, out, "1 trades, 1 won, 0 lost, net +10.00")

	out = run(t, "journal", "trade", rec.ID, "-f", path)
	assert.Contains(t, out, "Ticket:   4242")
}
