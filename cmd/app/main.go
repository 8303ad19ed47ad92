package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/Domenick1991/seatledger/api"
	"github.com/Domenick1991/seatledger/config"
	"github.com/Domenick1991/seatledger/internal/bootstrap"
	"github.com/Domenick1991/seatledger/internal/cache"
	"github.com/Domenick1991/seatledger/internal/checkpoint"
	"github.com/Domenick1991/seatledger/internal/kafka"
	"github.com/Domenick1991/seatledger/internal/ledger"
	"github.com/Domenick1991/seatledger/internal/logging"
	"github.com/Domenick1991/seatledger/internal/replicator"
	"github.com/Domenick1991/seatledger/internal/repository"
	"github.com/Domenick1991/seatledger/internal/service/catalog"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/spf13/pflag"
)

func main() {
	cfgPath := pflag.StringP("config", "c", "", "path to the YAML config (default $CONFIG_PATH or config.yaml)")
	pflag.Parse()

	path := *cfgPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(os.Stderr, cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("app stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var repo repository.JournalRepository
	journal := ledger.Journal(ledger.NewMemoryJournal())
	if cfg.Ledger.Journal == config.JournalPostgres {
		pool, err := pgxpool.New(ctx, cfg.Database.DSN())
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		repo = repository.NewJournalRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("journal schema: %w", err)
		}
		journal = repo
	}

	wallet := ledger.NewWallet()
	engine := ledger.NewEngine(
		ledger.WithJournal(journal),
		ledger.WithPayer(wallet),
		ledger.WithLogger(logger.With("component", "ledger")),
		ledger.WithOutbox(cfg.Ledger.OutboxSize),
		ledger.WithPublishRetry(cfg.Ledger.PublishRetries, cfg.Ledger.PublishBackoff),
	)
	if err := engine.Restore(ctx); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	if repo != nil {
		if err := repository.VerifyHead(ctx, repo, engine.LastSeq()); err != nil {
			return err
		}
	}
	logger.Info("ledger restored", "seq", engine.LastSeq(), "journal", cfg.Ledger.Journal)

	var (
		publisher ledger.Publisher
		feed      replicator.Feed
	)
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers)
		defer producer.Close()
		if err := producer.CheckConnection(ctx); err != nil {
			logger.Warn("kafka not reachable yet", "error", err)
		}

		// Each instance mirrors the whole stream, so it needs a group of
		// its own. Anything before the tail is covered by backfill.
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers,
			cfg.Kafka.ReplicatorGroupID+"-"+uuid.NewString(),
			cfg.Kafka.EventsTopic,
			kafka.WithStartOffset(kafkaGo.LastOffset),
		)
		defer consumer.Close()

		publisher = kafka.NewEventPublisher(producer, cfg.Kafka.EventsTopic)
		feed = consumer
	} else {
		broadcaster := ledger.NewBroadcaster(cfg.Ledger.OutboxSize)
		publisher = broadcaster
		feed = broadcaster
	}

	var queryCache catalog.Cache
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		redisCache := cache.NewRedisCache(cfg.Redis)
		defer redisCache.Close()
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis not reachable yet", "error", err)
		}
		queryCache = redisCache
	default:
		queryCache = cache.NewMemoryCache(nil)
	}

	replicatorOpts := []replicator.Option{
		replicator.WithLogger(logger.With("component", "replicator")),
		replicator.WithConfig(replicator.Config{
			BatchSize:     cfg.Replicator.BatchSize,
			RetryBase:     cfg.Replicator.RetryBase,
			RetryMax:      cfg.Replicator.RetryMax,
			MaxAttempts:   cfg.Replicator.MaxAttempts,
			SweepInterval: cfg.Replicator.SweepInterval,
		}),
	}
	if cfg.Replicator.CheckpointPath != "" {
		store, err := checkpoint.Open(cfg.Replicator.CheckpointPath)
		if err != nil {
			return fmt.Errorf("open checkpoint: %w", err)
		}
		defer store.Close()
		replicatorOpts = append(replicatorOpts, replicator.WithCheckpoint(store))
	}
	mirror := replicator.New(engine, journal, feed, replicatorOpts...)

	catalogService := catalog.NewCatalogService(queryCache, mirror, engine,
		catalog.WithTTL(cfg.Cache.SeatTTL, cfg.Cache.ListingTTL),
		catalog.WithReadTimeout(cfg.Cache.ReadTimeout),
		catalog.WithLogger(logger.With("component", "catalog")),
	)
	mirror.SetInvalidator(catalogService)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := engine.RunPublisher(ctx, publisher); err != nil {
			logger.Error("publisher stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := mirror.Run(ctx); err != nil {
			logger.Error("replicator stopped", "error", err)
		}
	}()

	err := bootstrap.Run(ctx, cfg, bootstrap.Handlers{
		Services: api.NewServiceHandler(catalogService, engine),
		Tickets:  api.NewTicketHandler(engine, wallet),
		Status:   api.NewStatusHandler(mirror),
	}, logger)
	cancel()
	wg.Wait()
	return err
}
