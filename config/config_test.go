package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Schedule.Times, 10)
	assert.InDelta(t, 2.0, cfg.SLDistance(), 1e-9)
	assert.InDelta(t, 5.0, cfg.TPDistance(), 1e-9)
	assert.Equal(t, 10*time.Second, cfg.FireWindow())
	assert.Equal(t, 5*time.Minute, cfg.CandleInterval())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing symbol",
			mutate:  func(c *Config) { c.Instrument.Symbol = "" },
			wantErr: "instrument.symbol",
		},
		{
			name:    "zero pip size",
			mutate:  func(c *Config) { c.Instrument.PipSize = 0 },
			wantErr: "pip_size",
		},
		{
			name:    "unknown broker",
			mutate:  func(c *Config) { c.Broker.Kind = "mt5" },
			wantErr: "broker.kind",
		},
		{
			name:    "paper without balance",
			mutate:  func(c *Config) { c.Broker.Paper.Balance = 0 },
			wantErr: "broker.paper.balance",
		},
		{
			name:    "no times",
			mutate:  func(c *Config) { c.Schedule.Times = nil },
			wantErr: "schedule.times",
		},
		{
			name:    "bad label",
			mutate:  func(c *Config) { c.Schedule.Times = []string{"10:35", "noon"} },
			wantErr: "schedule.times",
		},
		{
			name:    "bad zone",
			mutate:  func(c *Config) { c.Schedule.CivilZone = "Mars/Olympus" },
			wantErr: "civil_zone",
		},
		{
			name:    "bad summer month",
			mutate:  func(c *Config) { c.Schedule.SummerMonths = []int{13} },
			wantErr: "summer_months",
		},
		{
			name:    "zero fire window",
			mutate:  func(c *Config) { c.Schedule.FireWindowSeconds = 0 },
			wantErr: "fire_window_seconds",
		},
		{
			name:    "negative stop",
			mutate:  func(c *Config) { c.Strategy.SLPips = -1 },
			wantErr: "sl_pips",
		},
		{
			name:    "unknown risk mode",
			mutate:  func(c *Config) { c.Risk.Mode = "kelly" },
			wantErr: "risk.mode",
		},
		{
			name:    "zero cap",
			mutate:  func(c *Config) { c.Risk.DailyCap = 0 },
			wantErr: "daily_cap",
		},
		{
			name:    "bad week end",
			mutate:  func(c *Config) { c.Reports.WeekEndDay = "someday" },
			wantErr: "week_end_day",
		},
		{
			name:    "sqlite sentinel without db",
			mutate:  func(c *Config) { c.Reports.Sentinel = "sqlite" },
			wantErr: "db_path",
		},
		{
			name:    "redis sentinel without addr",
			mutate:  func(c *Config) { c.Reports.Sentinel = "redis" },
			wantErr: "redis_addr",
		},
		{
			name:   "oanda needs no paper section",
			mutate: func(c *Config) { c.Broker.Kind = "oanda"; c.Broker.Paper = PaperConfig{} },
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCivilLocation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		zone   string
		offset int
	}{
		{"", 0},
		{"UTC", 0},
		{"+05:30", 5*3600 + 30*60},
		{"-03:00", -3 * 3600},
	}
	for _, tt := range tests {
		cfg := Default()
		cfg.Schedule.CivilZone = tt.zone
		loc, err := cfg.CivilLocation()
		require.NoError(t, err, tt.zone)
		_, off := time.Date(2024, 1, 15, 12, 0, 0, 0, loc).Zone()
		assert.Equal(t, tt.offset, off, tt.zone)
	}

	cfg := Default()
	cfg.Schedule.CivilZone = "+5"
	_, err := cfg.CivilLocation()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestTranslatorOptions(t *testing.T) {
	t.Parallel()

	cfg := Default()
	opts, err := cfg.TranslatorOptions()
	require.NoError(t, err)
	assert.Equal(t, cfg.Schedule.Times, opts.Labels)
	require.NotNil(t, opts.OverrideMinutes)
	assert.Equal(t, 180, *opts.OverrideMinutes)
	assert.Equal(t, []time.Month{time.March, time.April, time.May, time.June, time.July, time.August, time.September, time.October}, opts.SummerMonths)

	wd, err := cfg.WeekEnd()
	require.NoError(t, err)
	assert.Equal(t, time.Saturday, wd)
}

func TestLoadFromFileYAML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bot.yaml")
	data := `
instrument:
  symbol: XAUUSD
  pip_size: 0.1
schedule:
  times: ["09:15", "14:00"]
  civil_zone: "+05:30"
  fire_window_seconds: 5
risk:
  mode: balance
  daily_cap: 50
watcher:
  resolve_timeout: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "XAUUSD", cfg.Instrument.Symbol)
	assert.Equal(t, []string{"09:15", "14:00"}, cfg.Schedule.Times)
	assert.Equal(t, "balance", cfg.Risk.Mode)
	assert.Equal(t, 30*time.Second, cfg.Watcher.ResolveTimeout)
	// Untouched sections keep their defaults.
	assert.Equal(t, 20.0, cfg.Strategy.SLPips)
	assert.Equal(t, int64(20250901), cfg.Strategy.Magic)
}

func TestLoadFromFileJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bot.json")

	want := Default()
	want.Strategy.TPPips = 40
	require.NoError(t, want.SaveToFile(path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 40.0, got.Strategy.TPPips)
	assert.Equal(t, want.Schedule.Times, got.Schedule.Times)
}

func TestSaveToFileYAMLRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bot.yml")
	want := Default()
	want.Schedule.OffsetMinutes = nil
	require.NoError(t, want.SaveToFile(path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, want.Watcher, got.Watcher)
	assert.Equal(t, want.Reports, got.Reports)
}

func TestLoadFromFileErrors(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("schedule:\n  times: [\"25:99\"]\n"), 0o644))
	_, err = LoadFromFile(path)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestLoadSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("OANDA_TOKEN=abc\nOANDA_ACCOUNT_ID=101-001\n"), 0o600))

	t.Setenv("OANDA_TOKEN", "")
	t.Setenv("OANDA_ACCOUNT_ID", "")
	t.Setenv("SMTP_PASSWORD", "pw")
	os.Unsetenv("OANDA_TOKEN")
	os.Unsetenv("OANDA_ACCOUNT_ID")

	s, err := LoadSecrets(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", s.OandaToken)
	assert.Equal(t, "101-001", s.OandaAccountID)
	assert.Equal(t, "pw", s.SMTPPassword)

	cfg := Default()
	cfg.Broker.Kind = "oanda"
	assert.NoError(t, s.Check(cfg))
	assert.ErrorIs(t, Secrets{}.Check(cfg), ErrInvalid)

	_, err = LoadSecrets(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}
