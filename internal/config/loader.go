package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SWING_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known SWING_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Watchlist ──
	setStr(&cfg.Watchlist.Path, "SWING_WATCHLIST_PATH")
	setStr(&cfg.Watchlist.ExclusionPath, "SWING_WATCHLIST_EXCLUSION_PATH")
	setStr(&cfg.Watchlist.BenchmarkSymbol, "SWING_WATCHLIST_BENCHMARK_SYMBOL")

	// ── Market data ──
	setStr(&cfg.MarketData.ChartHost, "SWING_MARKET_DATA_CHART_HOST")
	setStr(&cfg.MarketData.StreamURL, "SWING_MARKET_DATA_STREAM_URL")
	setInt(&cfg.MarketData.MinListingDays, "SWING_MARKET_DATA_MIN_LISTING_DAYS")
	setInt(&cfg.MarketData.FetchWorkers, "SWING_MARKET_DATA_FETCH_WORKERS")
	setInt(&cfg.MarketData.RetryMax, "SWING_MARKET_DATA_RETRY_MAX")

	// ── Broker ──
	setStr(&cfg.Broker.Kind, "SWING_BROKER_KIND")
	setFloat64(&cfg.Broker.StartingCash, "SWING_BROKER_STARTING_CASH")
	setFloat64(&cfg.Broker.SlippagePct, "SWING_BROKER_SLIPPAGE_PCT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SWING_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SWING_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SWING_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SWING_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SWING_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SWING_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SWING_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SWING_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SWING_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SWING_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SWING_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SWING_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SWING_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SWING_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SWING_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SWING_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "SWING_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "SWING_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SWING_S3_REGION")
	setStr(&cfg.S3.Bucket, "SWING_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SWING_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SWING_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SWING_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SWING_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "SWING_S3_RETENTION_DAYS")
	setStr(&cfg.S3.ArchiveCron, "SWING_S3_ARCHIVE_CRON")

	// ── Journal ──
	setBool(&cfg.Journal.Enabled, "SWING_JOURNAL_ENABLED")
	setStr(&cfg.Journal.Path, "SWING_JOURNAL_PATH")

	// ── Signal flags ──
	setBool(&cfg.Signals.EnableSwing, "SWING_SIGNALS_ENABLE_SWING")
	setBool(&cfg.Signals.EnableEMA21, "SWING_SIGNALS_ENABLE_21TOUCH")
	setBool(&cfg.Signals.EnableSMA50, "SWING_SIGNALS_ENABLE_50TOUCH")

	// ── Capital ──
	setFloat64(&cfg.Capital.MaxUtilizationPct, "SWING_CAPITAL_MAX_UTILIZATION_PCT")
	setInt(&cfg.Capital.DailyBuyCap, "SWING_CAPITAL_DAILY_BUY_CAP")
	setBool(&cfg.Capital.ConservationMode, "SWING_CAPITAL_CONSERVATION_MODE")
	setDuration(&cfg.Capital.MonitorWindow, "SWING_CAPITAL_MONITOR_WINDOW")

	// ── Cycle ──
	setStr(&cfg.Cycle.Cron, "SWING_CYCLE_CRON")
	setStr(&cfg.Cycle.BuyWindowStart, "SWING_CYCLE_BUY_WINDOW_START")
	setStr(&cfg.Cycle.BuyWindowEnd, "SWING_CYCLE_BUY_WINDOW_END")
	setBool(&cfg.Cycle.RunOnStart, "SWING_CYCLE_RUN_ON_START")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SWING_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SWING_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SWING_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SWING_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SWING_MODE")
	setStr(&cfg.LogLevel, "SWING_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
