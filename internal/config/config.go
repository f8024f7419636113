// Package config defines the top-level configuration for the swing trading
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SWING_* environment variables.
type Config struct {
	Watchlist  WatchlistConfig  `toml:"watchlist"`
	MarketData MarketDataConfig `toml:"market_data"`
	Broker     BrokerConfig     `toml:"broker"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Journal    JournalConfig    `toml:"journal"`
	Scoring    ScoringConfig    `toml:"scoring"`
	Signals    SignalFlags      `toml:"signals"`
	Tiers      TiersConfig      `toml:"tiers"`
	Exits      ExitConfig       `toml:"exits"`
	Capital    CapitalConfig    `toml:"capital"`
	Cycle      CycleConfig      `toml:"cycle"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// WatchlistConfig locates the watchlist and exclusion-list files.
type WatchlistConfig struct {
	Path            string `toml:"path"`
	ExclusionPath   string `toml:"exclusion_path"`
	BenchmarkSymbol string `toml:"benchmark_symbol"`
}

// MarketDataConfig holds market-data source parameters.
type MarketDataConfig struct {
	ChartHost      string   `toml:"chart_host"`
	StreamURL      string   `toml:"stream_url"`
	MinListingDays int      `toml:"min_listing_days"`
	FetchWorkers   int      `toml:"fetch_workers"`
	RetryMax       int      `toml:"retry_max"`
	Timeout        Duration `toml:"timeout"`
}

// BrokerConfig holds order-gateway parameters.
type BrokerConfig struct {
	// Kind selects the gateway implementation; only "paper" is built in.
	Kind         string   `toml:"kind"`
	StartingCash float64  `toml:"starting_cash"`
	SlippagePct  float64  `toml:"slippage_pct"`
	OrderTimeout Duration `toml:"order_timeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the archiver.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	RetentionDays  int    `toml:"retention_days"`
	ArchiveCron    string `toml:"archive_cron"`
}

// JournalConfig holds the local decision-journal parameters.
type JournalConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// ScoringConfig holds the scorer's gate thresholds and component bands.
type ScoringConfig struct {
	// PullbackBandPct is the band around EMA21/SMA50 that counts as a
	// pullback touch, as a fraction (0.02 = 2%).
	PullbackBandPct float64 `toml:"pullback_band_pct"`
	// HigherHighDays is the lookback for the higher-high requirement.
	HigherHighDays int `toml:"higher_high_days"`
	// StallRangeLongDays / StallRangeLongMaxPct bound the long stalling window.
	StallRangeLongDays   int     `toml:"stall_range_long_days"`
	StallRangeLongMaxPct float64 `toml:"stall_range_long_max_pct"`
	// StallRangeShortDays / StallRangeShortMaxPct allow tight consolidation.
	StallRangeShortDays   int     `toml:"stall_range_short_days"`
	StallRangeShortMaxPct float64 `toml:"stall_range_short_max_pct"`
	// GapFilterEnabled rejects symbols that gapped up more than GapMaxPct
	// within GapLookbackDays.
	GapFilterEnabled bool    `toml:"gap_filter_enabled"`
	GapMaxPct        float64 `toml:"gap_max_pct"`
	GapLookbackDays  int     `toml:"gap_lookback_days"`
	// OutperformDays is the benchmark comparison lookback.
	OutperformDays int `toml:"outperform_days"`
	// VolumeAvgDays is the trailing-average window for the volume component.
	VolumeAvgDays int `toml:"volume_avg_days"`
	// DemandZoneBandPct is the band over the 21-day low that scores the
	// demand-zone component.
	DemandZoneBandPct float64 `toml:"demand_zone_band_pct"`
	// BonusPerTouch and BonusCap shape the touch bonuses.
	BonusPerTouch float64 `toml:"bonus_per_touch"`
	BonusCap      float64 `toml:"bonus_cap"`
}

// SignalFlags enable or disable whole signal types. They are consulted at
// collection, revalidation, and execution; a disabled type must not slip
// through any stage.
type SignalFlags struct {
	EnableSwing   bool `toml:"enable_swing_signals"`
	EnableEMA21   bool `toml:"enable_21touch_signals"`
	EnableSMA50   bool `toml:"enable_50touch_signals"`
}

// Allowed reports whether the given signal type is enabled.
func (f SignalFlags) Allowed(t string) bool {
	switch t {
	case "swing":
		return f.EnableSwing
	case "ema21_touch":
		return f.EnableEMA21
	case "sma50_touch":
		return f.EnableSMA50
	default:
		return false
	}
}

// TierConfig holds per-tier immutable parameters.
type TierConfig struct {
	MaxPositionsGlobal   int     `toml:"max_positions_global"`
	MaxPositionsPerStock int     `toml:"max_positions_per_stock"`
	MinEntryScore        float64 `toml:"min_entry_score"`
	TimeExitDays         int     `toml:"time_exit_days"`
	// SizingMode is one of "percent_of_equity", "fixed_dollar",
	// "percent_of_base".
	SizingMode      string  `toml:"sizing_mode"`
	PercentOfEquity float64 `toml:"percent_of_equity"`
	FixedDollar     float64 `toml:"fixed_dollar"`
	PercentOfBase   float64 `toml:"percent_of_base"`
	FixedBase       float64 `toml:"fixed_base"`
}

// TiersConfig holds both entry tiers.
type TiersConfig struct {
	B1 TierConfig `toml:"b1"`
	B2 TierConfig `toml:"b2"`
}

// ForTier returns the parameters for the given tier.
func (t TiersConfig) ForTier(tier string) TierConfig {
	if tier == "B2" {
		return t.B2
	}
	return t.B1
}

// ExitConfig holds the exit engine's stop and target parameters.
type ExitConfig struct {
	InitialStopPct float64 `toml:"initial_stop_pct"`
	Tier1ProfitPct float64 `toml:"tier1_profit_pct"`
	Tier1StopPct   float64 `toml:"tier1_stop_pct"`
	Tier2ProfitPct float64 `toml:"tier2_profit_pct"`
	Tier2StopPct   float64 `toml:"tier2_stop_pct"`

	Target1ProfitPct float64 `toml:"target1_profit_pct"`
	Target2ProfitPct float64 `toml:"target2_profit_pct"`
	Target3ProfitPct float64 `toml:"target3_profit_pct"`
	Target1SlicePct  float64 `toml:"target1_slice_pct"`
	Target2SlicePct  float64 `toml:"target2_slice_pct"`
	Target3SlicePct  float64 `toml:"target3_slice_pct"`

	// IntradayStops evaluates stops against the session low instead of the
	// closing price.
	IntradayStops bool `toml:"intraday_stops"`
}

// CapitalConfig holds the scheduler's capital controls.
type CapitalConfig struct {
	MaxUtilizationPct   float64 `toml:"max_utilization_pct"`
	DailyBuyCap         int     `toml:"daily_buy_cap"`
	ConservationMode    bool    `toml:"conservation_mode"`
	ConservationTrigger float64 `toml:"conservation_trigger"`
	// MonitorWindow bounds how long a collected signal may wait for
	// execution before it is discarded.
	MonitorWindow Duration `toml:"monitor_window"`
}

// CycleConfig holds the orchestrator's schedule.
type CycleConfig struct {
	// Cron is a robfig/cron spec (with seconds) for the evaluation cycle.
	Cron string `toml:"cron"`
	// BuyWindowStart / BuyWindowEnd bound when buys may be submitted, as
	// "HH:MM" in the engine's local time. Exits always run.
	BuyWindowStart string `toml:"buy_window_start"`
	BuyWindowEnd   string `toml:"buy_window_end"`
	// RunOnStart triggers one cycle immediately at startup.
	RunOnStart bool `toml:"run_on_start"`
	// LockTTL bounds the distributed cycle lock.
	LockTTL Duration `toml:"lock_ttl"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Watchlist: WatchlistConfig{
			Path:            "watchlist.yaml",
			ExclusionPath:   "exclusions.yaml",
			BenchmarkSymbol: "^GSPC",
		},
		MarketData: MarketDataConfig{
			ChartHost:      "https://query1.finance.yahoo.com",
			StreamURL:      "",
			MinListingDays: 250,
			FetchWorkers:   8,
			RetryMax:       3,
			Timeout:        Duration{30 * time.Second},
		},
		Broker: BrokerConfig{
			Kind:         "paper",
			StartingCash: 10_000,
			SlippagePct:  0.0005,
			OrderTimeout: Duration{10 * time.Second},
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "swingtrader",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "swingtrader-archive",
			ForcePathStyle: true,
			RetentionDays:  90,
			ArchiveCron:    "0 0 3 1 * *",
		},
		Journal: JournalConfig{
			Enabled: true,
			Path:    "journal.db",
		},
		Scoring: ScoringConfig{
			PullbackBandPct:       0.02,
			HigherHighDays:        10,
			StallRangeLongDays:    40,
			StallRangeLongMaxPct:  0.25,
			StallRangeShortDays:   10,
			StallRangeShortMaxPct: 0.07,
			GapFilterEnabled:      true,
			GapMaxPct:             0.08,
			GapLookbackDays:       10,
			OutperformDays:        63,
			VolumeAvgDays:         20,
			DemandZoneBandPct:     0.03,
			BonusPerTouch:         0.5,
			BonusCap:              1.0,
		},
		Signals: SignalFlags{
			EnableSwing: true,
			EnableEMA21: true,
			EnableSMA50: true,
		},
		Tiers: TiersConfig{
			B1: TierConfig{
				MaxPositionsGlobal:   10,
				MaxPositionsPerStock: 1,
				MinEntryScore:        2.0,
				TimeExitDays:         21,
				SizingMode:           "percent_of_equity",
				PercentOfEquity:      0.05,
				FixedDollar:          500,
				PercentOfBase:        0.05,
				FixedBase:            10_000,
			},
			B2: TierConfig{
				MaxPositionsGlobal:   5,
				MaxPositionsPerStock: 1,
				MinEntryScore:        3.0,
				TimeExitDays:         14,
				SizingMode:           "percent_of_equity",
				PercentOfEquity:      0.03,
				FixedDollar:          300,
				PercentOfBase:        0.03,
				FixedBase:            10_000,
			},
		},
		Exits: ExitConfig{
			InitialStopPct:   0.17,
			Tier1ProfitPct:   0.05,
			Tier1StopPct:     0.09,
			Tier2ProfitPct:   0.10,
			Tier2StopPct:     0.01,
			Target1ProfitPct: 0.10,
			Target2ProfitPct: 0.15,
			Target3ProfitPct: 0.20,
			Target1SlicePct:  0.333,
			Target2SlicePct:  0.333,
			Target3SlicePct:  0.334,
			IntradayStops:    false,
		},
		Capital: CapitalConfig{
			MaxUtilizationPct:   0.80,
			DailyBuyCap:         3,
			ConservationMode:    false,
			ConservationTrigger: 0.70,
			MonitorWindow:       Duration{45 * time.Minute},
		},
		Cycle: CycleConfig{
			Cron:           "0 */15 9-16 * * 1-5",
			BuyWindowStart: "09:45",
			BuyWindowEnd:   "15:30",
			RunOnStart:     false,
			LockTTL:        Duration{10 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"order_filled", "position_closed", "error"},
		},
		Mode:     "trade",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"trade":   true,
	"scan":    true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSizingModes = map[string]bool{
	"percent_of_equity": true,
	"fixed_dollar":      true,
	"percent_of_base":   true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found. A non-nil error is fatal
// at startup: the engine must not trade on a broken configuration.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: trade, scan, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Watchlist.Path == "" {
		errs = append(errs, "watchlist: path must not be empty")
	}
	if c.Watchlist.BenchmarkSymbol == "" {
		errs = append(errs, "watchlist: benchmark_symbol must not be empty")
	}

	if c.MarketData.ChartHost == "" {
		errs = append(errs, "market_data: chart_host must not be empty")
	}
	if c.MarketData.MinListingDays < 1 {
		errs = append(errs, "market_data: min_listing_days must be >= 1")
	}
	if c.MarketData.FetchWorkers < 1 {
		errs = append(errs, "market_data: fetch_workers must be >= 1")
	}

	if c.Broker.Kind != "paper" {
		errs = append(errs, fmt.Sprintf("broker: unknown kind %q (valid: paper)", c.Broker.Kind))
	}
	if c.Broker.StartingCash <= 0 {
		errs = append(errs, "broker: starting_cash must be > 0")
	}

	if c.Mode == "trade" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
		if c.S3.RetentionDays < 1 {
			errs = append(errs, "s3: retention_days must be >= 1")
		}
	}

	if c.Scoring.PullbackBandPct <= 0 {
		errs = append(errs, "scoring: pullback_band_pct must be > 0")
	}
	if c.Scoring.HigherHighDays < 1 {
		errs = append(errs, "scoring: higher_high_days must be >= 1")
	}
	if c.Scoring.BonusCap < 0 {
		errs = append(errs, "scoring: bonus_cap must be >= 0")
	}

	for _, tc := range []struct {
		name string
		cfg  TierConfig
	}{{"b1", c.Tiers.B1}, {"b2", c.Tiers.B2}} {
		if tc.cfg.MaxPositionsGlobal < 1 {
			errs = append(errs, fmt.Sprintf("tiers.%s: max_positions_global must be >= 1", tc.name))
		}
		if tc.cfg.MaxPositionsPerStock < 1 {
			errs = append(errs, fmt.Sprintf("tiers.%s: max_positions_per_stock must be >= 1", tc.name))
		}
		if tc.cfg.MinEntryScore < 0 || tc.cfg.MinEntryScore > 6 {
			errs = append(errs, fmt.Sprintf("tiers.%s: min_entry_score must be in [0, 6]", tc.name))
		}
		if tc.cfg.TimeExitDays < 1 {
			errs = append(errs, fmt.Sprintf("tiers.%s: time_exit_days must be >= 1", tc.name))
		}
		if !validSizingModes[tc.cfg.SizingMode] {
			errs = append(errs, fmt.Sprintf("tiers.%s: unknown sizing_mode %q", tc.name, tc.cfg.SizingMode))
		}
	}
	if c.Tiers.B2.MinEntryScore < c.Tiers.B1.MinEntryScore {
		errs = append(errs, "tiers: b2.min_entry_score must be >= b1.min_entry_score")
	}

	if c.Exits.InitialStopPct <= 0 || c.Exits.InitialStopPct >= 1 {
		errs = append(errs, "exits: initial_stop_pct must be in (0, 1)")
	}
	if c.Exits.Tier2ProfitPct <= c.Exits.Tier1ProfitPct {
		errs = append(errs, "exits: tier2_profit_pct must be > tier1_profit_pct")
	}
	if c.Exits.Tier2StopPct >= c.Exits.Tier1StopPct {
		errs = append(errs, "exits: tier2_stop_pct must be < tier1_stop_pct (stops narrow with profit)")
	}
	if c.Exits.Tier1StopPct >= c.Exits.InitialStopPct {
		errs = append(errs, "exits: tier1_stop_pct must be < initial_stop_pct")
	}
	if !(c.Exits.Target1ProfitPct < c.Exits.Target2ProfitPct && c.Exits.Target2ProfitPct < c.Exits.Target3ProfitPct) {
		errs = append(errs, "exits: target profit levels must be strictly increasing")
	}
	slices := c.Exits.Target1SlicePct + c.Exits.Target2SlicePct + c.Exits.Target3SlicePct
	if slices < 0.999 || slices > 1.001 {
		errs = append(errs, fmt.Sprintf("exits: target slices must sum to 1.0, got %.3f", slices))
	}

	if c.Capital.MaxUtilizationPct <= 0 || c.Capital.MaxUtilizationPct > 1 {
		errs = append(errs, "capital: max_utilization_pct must be in (0, 1]")
	}
	if c.Capital.DailyBuyCap < 1 {
		errs = append(errs, "capital: daily_buy_cap must be >= 1")
	}
	if c.Capital.ConservationTrigger <= 0 || c.Capital.ConservationTrigger > 1 {
		errs = append(errs, "capital: conservation_trigger must be in (0, 1]")
	}
	if c.Capital.MonitorWindow.Duration <= 0 {
		errs = append(errs, "capital: monitor_window must be > 0")
	}

	if c.Cycle.Cron == "" {
		errs = append(errs, "cycle: cron must not be empty")
	}
	for _, w := range []struct {
		name, val string
	}{{"buy_window_start", c.Cycle.BuyWindowStart}, {"buy_window_end", c.Cycle.BuyWindowEnd}} {
		if _, err := time.Parse("15:04", w.val); err != nil {
			errs = append(errs, fmt.Sprintf("cycle: %s must be HH:MM, got %q", w.name, w.val))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
