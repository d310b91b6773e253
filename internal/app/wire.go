package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/btcbasis/internal/blob/s3"
	"github.com/alanyoungcy/btcbasis/internal/cache/local"
	"github.com/alanyoungcy/btcbasis/internal/cache/redis"
	"github.com/alanyoungcy/btcbasis/internal/config"
	"github.com/alanyoungcy/btcbasis/internal/domain"
	"github.com/alanyoungcy/btcbasis/internal/notify"
	"github.com/alanyoungcy/btcbasis/internal/platform/coingecko"
	"github.com/alanyoungcy/btcbasis/internal/server/handler"
	"github.com/alanyoungcy/btcbasis/internal/service"
	"github.com/alanyoungcy/btcbasis/internal/store/memory"
	"github.com/alanyoungcy/btcbasis/internal/store/postgres"
	"github.com/alanyoungcy/btcbasis/internal/throttle"
)

// callGateName keys the shared provider budget in Redis.
const callGateName = "rates:provider"

// Dependencies bundles every domain-level dependency the services need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	LotStore         domain.LotStore
	TransactionStore domain.TransactionStore
	AllocationStore  domain.AllocationStore
	LedgerStore      domain.LedgerStore
	RateStore        domain.RateStore
	AuditStore       domain.AuditStore

	// Caches and coordination. RateCache and LockManager are nil without
	// Redis.
	RateCache   domain.RateCache
	LockManager domain.LockManager
	CallGate    domain.CallGate
	SignalBus   domain.SignalBus

	// Blob storage, nil unless s3.enabled.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	// Market data
	LivePrices       service.LivePriceSource
	HistoricalPrices service.HistoricalPriceSource

	// Notifications
	Notifier *notify.Notifier

	// Checks are pinged by the health endpoint.
	Checks map[string]handler.Pinger

	postgres *postgres.Client
}

// Services are the application services built over Dependencies.
type Services struct {
	Engine   *service.CostBasisEngine
	Rates    *service.ExchangeRateService
	Gains    *service.GainService
	Archiver *s3blob.ReportArchiver // nil without object storage
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: make(map[string]handler.Pinger)}

	// --- Ledger and rate persistence ---
	switch strings.ToLower(cfg.Store) {
	case "memory":
		ledger := memory.NewLedger()
		deps.LotStore = ledger
		deps.TransactionStore = ledger.Transactions()
		deps.AllocationStore = ledger
		deps.LedgerStore = ledger
		deps.RateStore = memory.NewRateStore()
		deps.AuditStore = memory.NewAuditStore()
		logger.WarnContext(ctx, "wire: using in-memory store; data is lost on exit")
	default:
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Database.DSN,
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			Database: cfg.Database.Database,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			SSLMode:  cfg.Database.SSLMode,
			MaxConns: cfg.Database.PoolMaxConns,
			MinConns: cfg.Database.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)
		deps.postgres = pgClient

		if cfg.Database.RunMigrations {
			applied, err := pgClient.RunMigrations(ctx)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
			if len(applied) > 0 {
				logger.InfoContext(ctx, "wire: migrations applied", slog.Any("files", applied))
			}
		}

		pool := pgClient.Pool()
		deps.LotStore = postgres.NewLotStore(pool)
		deps.TransactionStore = postgres.NewTransactionStore(pool)
		deps.AllocationStore = postgres.NewAllocationStore(pool)
		deps.LedgerStore = postgres.NewLedgerStore(pool)
		deps.RateStore = postgres.NewRateStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pgClient.Ping
	}

	// --- Redis (optional) ---
	if cfg.Redis.Enabled {
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

		deps.RateCache = redis.NewRateCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		if cfg.Engine.DistributedLock {
			deps.LockManager = redis.NewLockManager(redisClient)
		}
		if cfg.Rates.DistributedGate {
			deps.CallGate = redis.NewCallGate(redisClient, callGateName, cfg.Rates.MinCallInterval.Duration)
		}
		deps.Checks["redis"] = redisClient.Ping
	} else {
		deps.SignalBus = local.NewSignalBus()
	}
	if deps.CallGate == nil {
		deps.CallGate = throttle.NewGate(cfg.Rates.MinCallInterval.Duration)
	}

	// --- S3 blob storage (optional) ---
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
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Market data ---
	timeout := cfg.Rates.RequestTimeout.Duration
	var liveOpts []coingecko.Option
	if cfg.Rates.LiveAPIKey != "" {
		liveOpts = append(liveOpts, coingecko.WithAPIKey(cfg.Rates.LiveAPIKey))
	}
	deps.LivePrices = coingecko.NewClient(cfg.Rates.LiveURL, timeout, liveOpts...)
	deps.HistoricalPrices = coingecko.NewClient(cfg.Rates.HistoricalURL, timeout)

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

// BuildServices creates the application services over deps.
func BuildServices(cfg *config.Config, deps *Dependencies, logger *slog.Logger) *Services {
	engine := service.NewCostBasisEngine(
		deps.LotStore,
		deps.TransactionStore,
		deps.AllocationStore,
		deps.LedgerStore,
		deps.SignalBus,
		deps.AuditStore,
		service.EngineConfig{
			CommitRetries: cfg.Engine.CommitRetries,
			LockTTL:       cfg.Engine.LockTTL.Duration,
		},
		logger,
	).WithAlerter(deps.Notifier)
	if deps.LockManager != nil {
		engine = engine.WithLockManager(deps.LockManager)
	}

	fetcher := service.NewRateFetcher(
		deps.LivePrices,
		deps.HistoricalPrices,
		deps.CallGate,
		cfg.Rates.RequestTimeout.Duration,
		cfg.Rates.Currency,
		logger,
	)
	rates := service.NewExchangeRateService(
		deps.RateStore, fetcher, deps.SignalBus, deps.AuditStore,
		cfg.Rates.Provider, cfg.Rates.Currency, logger,
	).WithAlerter(deps.Notifier)
	if deps.RateCache != nil {
		rates = rates.WithCache(deps.RateCache)
	}

	svcs := &Services{
		Engine: engine,
		Rates:  rates,
		Gains:  service.NewGainService(engine, rates, logger),
	}
	if deps.BlobWriter != nil {
		svcs.Archiver = s3blob.NewReportArchiver(
			deps.BlobWriter,
			deps.BlobReader,
			deps.AllocationStore,
			deps.AuditStore,
			cfg.Export.Prefix,
			logger,
		).WithAlerter(deps.Notifier)
	}
	return svcs
}
