package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/slottrader/schedule"
)

// ErrInvalid wraps every configuration problem. Startup treats it as fatal.
var ErrInvalid = errors.New("invalid config")

// Config is the complete bot configuration.
type Config struct {
	Instrument InstrumentConfig `json:"instrument" yaml:"instrument"`
	Broker     BrokerConfig     `json:"broker" yaml:"broker"`
	Schedule   ScheduleConfig   `json:"schedule" yaml:"schedule"`
	Strategy   StrategyConfig   `json:"strategy" yaml:"strategy"`
	Risk       RiskConfig       `json:"risk" yaml:"risk"`
	Watcher    WatcherConfig    `json:"watcher" yaml:"watcher"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Reports    ReportsConfig    `json:"reports" yaml:"reports"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`
}

// InstrumentConfig names the single traded symbol.
type InstrumentConfig struct {
	Symbol        string  `json:"symbol" yaml:"symbol"`
	PipSize       float64 `json:"pip_size" yaml:"pip_size"`
	PriceDecimals int     `json:"price_decimals" yaml:"price_decimals"` // journal formatting
}

// BrokerConfig selects and tunes the broker binding.
type BrokerConfig struct {
	Kind         string        `json:"kind" yaml:"kind"` // "paper" or "oanda"
	Env          string        `json:"env,omitempty" yaml:"env,omitempty"`
	ContractSize float64       `json:"contract_size" yaml:"contract_size"`
	RPS          float64       `json:"rps" yaml:"rps"`
	Burst        int           `json:"burst" yaml:"burst"`
	MaxFailures  uint32        `json:"max_failures" yaml:"max_failures"`
	OpenTimeout  time.Duration `json:"open_timeout" yaml:"open_timeout"`
	Paper        PaperConfig   `json:"paper" yaml:"paper"`
}

// PaperConfig drives the simulated broker.
type PaperConfig struct {
	Balance             float64       `json:"balance" yaml:"balance"`
	Currency            string        `json:"currency" yaml:"currency"`
	StartPrice          float64       `json:"start_price" yaml:"start_price"`
	Spread              float64       `json:"spread" yaml:"spread"`
	Volatility          float64       `json:"volatility" yaml:"volatility"`
	Digits              int           `json:"digits" yaml:"digits"`
	StopsLevel          int           `json:"stops_level" yaml:"stops_level"`
	MarginRate          float64       `json:"margin_rate" yaml:"margin_rate"`
	Slippage            float64       `json:"slippage" yaml:"slippage"`
	// ServerOffsetMinutes is the simulated server clock minus UTC. Zero
	// derives it from the schedule so slots fire at their civil times.
	ServerOffsetMinutes int           `json:"server_offset_minutes" yaml:"server_offset_minutes"`
	TickEvery           time.Duration `json:"tick_every" yaml:"tick_every"`
}

// ScheduleConfig is the civil-time timetable.
type ScheduleConfig struct {
	Times     []string `json:"times" yaml:"times"`
	CivilZone string   `json:"civil_zone" yaml:"civil_zone"` // IANA name or "+05:30"
	// OffsetMinutes fixes the civil-to-server delta; nil estimates it.
	OffsetMinutes     *int    `json:"offset_minutes,omitempty" yaml:"offset_minutes,omitempty"`
	SummerMonths      []int   `json:"summer_months" yaml:"summer_months"`
	SummerGMTHours    float64 `json:"summer_gmt_hours" yaml:"summer_gmt_hours"`
	WinterGMTHours    float64 `json:"winter_gmt_hours" yaml:"winter_gmt_hours"`
	FireWindowSeconds int     `json:"fire_window_seconds" yaml:"fire_window_seconds"`
}

// StrategyConfig holds order parameters.
type StrategyConfig struct {
	CandleMinutes int     `json:"candle_minutes" yaml:"candle_minutes"`
	SLPips        float64 `json:"sl_pips" yaml:"sl_pips"`
	TPPips        float64 `json:"tp_pips" yaml:"tp_pips"`
	Deviation     int     `json:"deviation" yaml:"deviation"`
	Magic         int64   `json:"magic" yaml:"magic"`
	CommentPrefix string  `json:"comment_prefix" yaml:"comment_prefix"`
}

// RiskConfig controls lot sizing.
type RiskConfig struct {
	Mode                string  `json:"mode" yaml:"mode"` // "drawdown" or "balance"
	DailyCap            float64 `json:"daily_cap" yaml:"daily_cap"`
	DynamicBudget       bool    `json:"dynamic_budget" yaml:"dynamic_budget"`
	FallbackPerUnitRisk float64 `json:"fallback_per_unit_risk" yaml:"fallback_per_unit_risk"`
}

// WatcherConfig bounds the per-trade watcher phases.
type WatcherConfig struct {
	ResolveTimeout    time.Duration `json:"resolve_timeout" yaml:"resolve_timeout"`
	PollInterval      time.Duration `json:"poll_interval" yaml:"poll_interval"`
	MaxPollFailures   int           `json:"max_poll_failures" yaml:"max_poll_failures"`
	HistoryLookback   time.Duration `json:"history_lookback" yaml:"history_lookback"`
	HistoryLookahead  time.Duration `json:"history_lookahead" yaml:"history_lookahead"`
	HistoryAttempts   int           `json:"history_attempts" yaml:"history_attempts"`
	HistoryRetryDelay time.Duration `json:"history_retry_delay" yaml:"history_retry_delay"`
	ShutdownGrace     time.Duration `json:"shutdown_grace" yaml:"shutdown_grace"`
}

// JournalConfig says where trade logs go.
type JournalConfig struct {
	Dir    string `json:"dir" yaml:"dir"`
	DBPath string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

// ReportsConfig controls end-of-day reporting.
type ReportsConfig struct {
	Enabled    bool        `json:"enabled" yaml:"enabled"`
	WeekEndDay string      `json:"week_end_day" yaml:"week_end_day"`
	Sentinel   string      `json:"sentinel" yaml:"sentinel"` // "file", "sqlite" or "redis"
	RedisAddr  string      `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisDB    int         `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`
	SMTP       SMTPConfig  `json:"smtp" yaml:"smtp"`
}

// SMTPConfig is the mail relay. Credentials come from the environment.
type SMTPConfig struct {
	Host string   `json:"host,omitempty" yaml:"host,omitempty"`
	Port int      `json:"port,omitempty" yaml:"port,omitempty"`
	From string   `json:"from,omitempty" yaml:"from,omitempty"`
	To   []string `json:"to,omitempty" yaml:"to,omitempty"`
}

// MetricsConfig enables the status HTTP server.
type MetricsConfig struct {
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"`
}

// LoadFromFile loads configuration from a file (JSON or YAML)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	err = yaml.Unmarshal(data, cfg)
	if err != nil {
		cfg = Default()
		err = json.Unmarshal(data, cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: parse config (tried YAML and JSON): %v", ErrInvalid, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// SaveToFile saves configuration to a file (JSON or YAML based on extension)
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}

	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Instrument.Symbol == "" {
		return invalid("instrument.symbol is required")
	}
	if c.Instrument.PipSize <= 0 {
		return invalid("instrument.pip_size must be positive")
	}

	switch c.Broker.Kind {
	case "paper", "oanda":
	default:
		return invalid("broker.kind must be 'paper' or 'oanda'")
	}
	if c.Broker.Kind == "paper" {
		if c.Broker.Paper.Balance <= 0 {
			return invalid("broker.paper.balance must be positive")
		}
		if c.Broker.Paper.StartPrice <= 0 || c.Broker.Paper.Spread < 0 {
			return invalid("broker.paper prices must be positive")
		}
	}

	if len(c.Schedule.Times) == 0 {
		return invalid("schedule.times is required")
	}
	for _, s := range c.Schedule.Times {
		if _, err := schedule.ParseLabel(s); err != nil {
			return fmt.Errorf("%w: schedule.times: %v", ErrInvalid, err)
		}
	}
	if _, err := c.CivilLocation(); err != nil {
		return err
	}
	for _, m := range c.Schedule.SummerMonths {
		if m < 1 || m > 12 {
			return invalid("schedule.summer_months: %d is not a month", m)
		}
	}
	if c.Schedule.FireWindowSeconds <= 0 {
		return invalid("schedule.fire_window_seconds must be positive")
	}

	if c.Strategy.CandleMinutes <= 0 {
		return invalid("strategy.candle_minutes must be positive")
	}
	if c.Strategy.SLPips <= 0 {
		return invalid("strategy.sl_pips must be positive")
	}
	if c.Strategy.TPPips <= 0 {
		return invalid("strategy.tp_pips must be positive")
	}

	switch c.Risk.Mode {
	case "drawdown", "balance":
	default:
		return invalid("risk.mode must be 'drawdown' or 'balance'")
	}
	if c.Risk.DailyCap <= 0 {
		return invalid("risk.daily_cap must be positive")
	}

	if c.Journal.Dir == "" {
		return invalid("journal.dir is required")
	}

	if _, err := c.WeekEnd(); err != nil {
		return err
	}
	switch c.Reports.Sentinel {
	case "file", "sqlite", "redis":
	default:
		return invalid("reports.sentinel must be 'file', 'sqlite' or 'redis'")
	}
	if c.Reports.Sentinel == "sqlite" && c.Journal.DBPath == "" {
		return invalid("reports.sentinel sqlite requires journal.db_path")
	}
	if c.Reports.Sentinel == "redis" && c.Reports.RedisAddr == "" {
		return invalid("reports.sentinel redis requires reports.redis_addr")
	}
	return nil
}

// CivilLocation resolves schedule.civil_zone. Fixed offsets like "+05:30"
// are accepted as well as IANA names.
func (c *Config) CivilLocation() (*time.Location, error) {
	z := strings.TrimSpace(c.Schedule.CivilZone)
	if z == "" || z == "UTC" {
		return time.UTC, nil
	}
	if z[0] == '+' || z[0] == '-' {
		sign := 1
		if z[0] == '-' {
			sign = -1
		}
		hh, mm, ok := strings.Cut(z[1:], ":")
		h, errH := strconv.Atoi(hh)
		m, errM := strconv.Atoi(mm)
		if !ok || errH != nil || errM != nil || h > 14 || m > 59 {
			return nil, invalid("schedule.civil_zone %q", z)
		}
		return time.FixedZone("UTC"+z, sign*(h*3600+m*60)), nil
	}
	loc, err := time.LoadLocation(z)
	if err != nil {
		return nil, fmt.Errorf("%w: schedule.civil_zone: %v", ErrInvalid, err)
	}
	return loc, nil
}

// WeekEnd parses reports.week_end_day.
func (c *Config) WeekEnd() (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), c.Reports.WeekEndDay) {
			return d, nil
		}
	}
	return 0, invalid("reports.week_end_day %q", c.Reports.WeekEndDay)
}

// TranslatorOptions maps the schedule section onto the translator.
func (c *Config) TranslatorOptions() (schedule.Options, error) {
	loc, err := c.CivilLocation()
	if err != nil {
		return schedule.Options{}, err
	}
	months := make([]time.Month, 0, len(c.Schedule.SummerMonths))
	for _, m := range c.Schedule.SummerMonths {
		months = append(months, time.Month(m))
	}
	return schedule.Options{
		Labels:          c.Schedule.Times,
		Civil:           loc,
		OverrideMinutes: c.Schedule.OffsetMinutes,
		SummerMonths:    months,
		SummerGMTHours:  c.Schedule.SummerGMTHours,
		WinterGMTHours:  c.Schedule.WinterGMTHours,
	}, nil
}

// FireWindow is the tolerance around a slot instant.
func (c *Config) FireWindow() time.Duration {
	return time.Duration(c.Schedule.FireWindowSeconds) * time.Second
}

// CandleInterval is the length of the signal bar.
func (c *Config) CandleInterval() time.Duration {
	return time.Duration(c.Strategy.CandleMinutes) * time.Minute
}

// SLDistance is the stop distance in price units.
func (c *Config) SLDistance() float64 { return c.Strategy.SLPips * c.Instrument.PipSize }

// TPDistance is the take-profit distance in price units.
func (c *Config) TPDistance() float64 { return c.Strategy.TPPips * c.Instrument.PipSize }

// Default returns a configuration with sensible defaults
func Default() *Config {
	offset := 180
	return &Config{
		Instrument: InstrumentConfig{
			Symbol:        "XAU_USD",
			PipSize:       0.10,
			PriceDecimals: 3,
		},
		Broker: BrokerConfig{
			Kind:         "paper",
			Env:          "practice",
			ContractSize: 100,
			RPS:          20,
			Burst:        40,
			MaxFailures:  5,
			OpenTimeout:  15 * time.Second,
			Paper: PaperConfig{
				Balance:    1250,
				Currency:   "USD",
				StartPrice: 2000,
				Spread:     0.30,
				Volatility: 0.25,
				Digits:     2,
				MarginRate: 0.01,
				TickEvery:  time.Second,
			},
		},
		Schedule: ScheduleConfig{
			Times: []string{
				"10:35", "11:35", "12:35", "13:35", "16:20",
				"16:35", "17:35", "18:35", "19:35", "20:35",
			},
			CivilZone:         "+05:30",
			OffsetMinutes:     &offset,
			SummerMonths:      []int{3, 4, 5, 6, 7, 8, 9, 10},
			SummerGMTHours:    3,
			WinterGMTHours:    2,
			FireWindowSeconds: 10,
		},
		Strategy: StrategyConfig{
			CandleMinutes: 5,
			SLPips:        20,
			TPPips:        50,
			Deviation:     20,
			Magic:         20250901,
			CommentPrefix: "50pip_bot",
		},
		Risk: RiskConfig{
			Mode:                "drawdown",
			DailyCap:            37.50,
			DynamicBudget:       true,
			FallbackPerUnitRisk: 100,
		},
		Watcher: WatcherConfig{
			ResolveTimeout:    60 * time.Second,
			PollInterval:      500 * time.Millisecond,
			MaxPollFailures:   120,
			HistoryLookback:   6 * time.Hour,
			HistoryLookahead:  10 * time.Minute,
			HistoryAttempts:   5,
			HistoryRetryDelay: 2 * time.Second,
			ShutdownGrace:     2 * time.Second,
		},
		Journal: JournalConfig{
			Dir: "./trade_logs",
		},
		Reports: ReportsConfig{
			Enabled:    true,
			WeekEndDay: "saturday",
			Sentinel:   "file",
			SMTP: SMTPConfig{
				Host: "smtp.gmail.com",
				Port: 465,
			},
		},
	}
}
