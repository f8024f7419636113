package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/kmatsuda/swingtrader/internal/blob/s3"
	"github.com/kmatsuda/swingtrader/internal/broker"
	"github.com/kmatsuda/swingtrader/internal/cache/redis"
	"github.com/kmatsuda/swingtrader/internal/config"
	"github.com/kmatsuda/swingtrader/internal/domain"
	"github.com/kmatsuda/swingtrader/internal/journal"
	"github.com/kmatsuda/swingtrader/internal/marketdata"
	"github.com/kmatsuda/swingtrader/internal/notify"
	"github.com/kmatsuda/swingtrader/internal/store/memory"
	"github.com/kmatsuda/swingtrader/internal/store/postgres"
	"github.com/kmatsuda/swingtrader/internal/watchlist"
)

// Dependencies bundles the domain-level collaborators the application modes
// need. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	Watchlist *watchlist.Watchlist

	PositionStore domain.PositionStore
	QuoteCache    domain.QuoteCache
	BuyCounter    domain.BuyCounter
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus

	MarketData domain.MarketDataSource
	Stream     *marketdata.QuoteStream
	Gateway    domain.OrderGateway
	Equity     domain.EquitySource

	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	Journal  journal.Recorder
	Notifier *notify.Notifier
}

// needsPostgres reports whether the mode persists positions durably. Scan
// mode scores and journals without touching the ledger.
func needsPostgres(mode string) bool {
	switch strings.ToLower(mode) {
	case "trade", "monitor":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that must
// be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	wl, err := watchlist.Load(cfg.Watchlist.Path, cfg.Watchlist.ExclusionPath)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: watchlist: %w", err)
	}
	deps.Watchlist = wl

	// --- PostgreSQL (only for modes that manage real positions) ---
	if needsPostgres(cfg.Mode) {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}
		deps.PositionStore = postgres.NewPositionStore(pgClient.Pool())
	} else {
		deps.PositionStore = memory.NewPositionStore()
	}

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.QuoteCache = redis.NewQuoteCache(redisClient)
	deps.BuyCounter = redis.NewBuyCounter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient)

	// --- Market data ---
	deps.MarketData = marketdata.NewChartClient(cfg.MarketData, logger)
	if cfg.MarketData.StreamURL != "" {
		deps.Stream = marketdata.NewQuoteStream(cfg.MarketData.StreamURL, deps.QuoteCache, logger)
	}

	// --- Broker ---
	paper := broker.NewPaper(cfg.Broker, deps.QuoteCache, logger)
	deps.Gateway = paper
	deps.Equity = paper

	// --- S3 archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewPositionArchiver(deps.BlobWriter, deps.PositionStore, logger)
	}

	// --- Journal ---
	if cfg.Journal.Enabled {
		rec, err := journal.NewSQLiteRecorder(cfg.Journal.Path)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: journal: %w", err)
		}
		closers = append(closers, func() { _ = rec.Close() })
		deps.Journal = rec
	} else {
		deps.Journal = journal.NewNoopRecorder()
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
