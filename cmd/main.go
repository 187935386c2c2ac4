package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/l0p7/toptracks/internal/cache"
	"github.com/l0p7/toptracks/internal/config"
	"github.com/l0p7/toptracks/internal/fulfillment"
	"github.com/l0p7/toptracks/internal/genius"
	"github.com/l0p7/toptracks/internal/logging"
	"github.com/l0p7/toptracks/internal/metrics"
	"github.com/l0p7/toptracks/internal/server"
	"github.com/l0p7/toptracks/internal/telemetry"
	"github.com/l0p7/toptracks/internal/transactions"
)

type configLoader interface {
	Load(context.Context) (config.Config, error)
}

type runnableServer interface {
	Run(context.Context) error
}

var (
	newConfigLoader = func(envPrefix, configFile string) configLoader {
		return config.NewLoader(envPrefix, configFile)
	}
	newHTTPServer = func(cfg config.Config, logger *slog.Logger, handler http.Handler) (runnableServer, error) {
		return server.New(cfg, logger, handler)
	}
)

func main() {
	var (
		configFile = flag.String("config", "", "path to server configuration file (yaml, json or toml)")
		envPrefix  = flag.String("env-prefix", "TOPTRACKS", "environment variable prefix")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *envPrefix, *configFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, envPrefix, configFile string) error {
	cfg, err := newConfigLoader(envPrefix, configFile).Load(ctx)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing)
	if err != nil {
		logger.Warn("tracing setup failed, continuing without traces", slog.Any("error", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Error("tracer shutdown failed", slog.Any("error", err))
		}
	}()

	promRegistry := prometheus.NewRegistry()
	metricsRecorder := metrics.NewRecorder(promRegistry)

	artistCache := buildArtistCache(logger.With(slog.String("agent", "cache_factory")), cfg.Cache)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := artistCache.Close(shutdownCtx); err != nil {
			logger.Error("cache shutdown failed", slog.Any("error", err))
		}
	}()

	store, err := buildTransactionStore(ctx, logger.With(slog.String("agent", "transactions_factory")), cfg.Transactions)
	if err != nil {
		return fmt.Errorf("open transaction store: %w", err)
	}
	txLog := transactions.NewLog(store, cfg.Transactions.TTL())
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := txLog.Close(shutdownCtx); err != nil {
			logger.Error("transaction store shutdown failed", slog.Any("error", err))
		}
	}()

	if expirer, ok := store.(transactions.Expirer); ok {
		sweepCtx, cancelSweep := context.WithCancel(ctx)
		sweepDone := make(chan struct{})
		sweeper := transactions.NewSweeper(expirer, cfg.Transactions.SweepInterval(), logger)
		go func() {
			defer close(sweepDone)
			sweeper.Run(sweepCtx)
		}()
		defer func() {
			cancelSweep()
			<-sweepDone
		}()
	}

	client, err := genius.NewClient(genius.Config{
		BaseURL: cfg.Genius.BaseURL,
		Token:   cfg.Genius.Token,
		Timeout: cfg.Genius.Timeout(),
	})
	if err != nil {
		return fmt.Errorf("configure genius client: %w", err)
	}

	svc, err := fulfillment.NewService(fulfillment.Options{
		Cache:              artistCache,
		CacheTTL:           cfg.Cache.TTL(),
		CacheFailOpen:      cfg.Cache.FailOpen,
		Catalog:            client,
		Transactions:       txLog,
		TransactionBackend: transactionBackend(cfg.Transactions),
		Timeout:            cfg.Server.FulfillTimeout(),
		Logger:             logger,
		Metrics:            metricsRecorder,
		Tracer:             telemetry.Tracer(),
	})
	if err != nil {
		return fmt.Errorf("configure fulfillment: %w", err)
	}

	handler := server.NewRouter(fulfillment.NewHandler(svc, logger, metricsRecorder), server.RouterOptions{
		CorrelationHeader: cfg.Server.Logging.CorrelationHeader,
		Metrics:           metricsRecorder.Handler(),
	})

	srv, err := newHTTPServer(cfg, logger, handler)
	if err != nil {
		return fmt.Errorf("construct server: %w", err)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		return fmt.Errorf("server terminated: %w", err)
	}

	logger.Info("server shutdown complete")
	return nil
}

func buildArtistCache(logger *slog.Logger, cfg config.CacheConfig) cache.Store {
	ttl := cfg.TTL()
	switch cfg.Backend {
	case "", "memory":
		if logger != nil {
			logger.Info("using memory artist cache", slog.Duration("ttl", ttl))
		}
		return cache.NewMemory(ttl)
	case "redis":
		redisCache, err := cache.NewRedis(cache.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: cache.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
			TTL: ttl,
		})
		if err != nil {
			if logger != nil {
				logger.Error("redis cache initialization failed", slog.Any("error", err))
				logger.Info("falling back to memory cache")
			}
			return cache.NewMemory(ttl)
		}
		if logger != nil {
			logger.Info("using redis artist cache", slog.String("address", cfg.Redis.Address), slog.Duration("ttl", ttl))
		}
		return redisCache
	default:
		if logger != nil {
			logger.Warn("unsupported cache backend, defaulting to memory", slog.String("backend", cfg.Backend))
		}
		return cache.NewMemory(ttl)
	}
}

func buildTransactionStore(ctx context.Context, logger *slog.Logger, cfg config.TransactionsConfig) (transactions.Store, error) {
	switch transactionBackend(cfg) {
	case "dynamodb":
		store, err := transactions.NewDynamoDB(ctx, transactions.DynamoDBConfig{
			Region:       cfg.DynamoDB.Region,
			Endpoint:     cfg.DynamoDB.Endpoint,
			Table:        cfg.DynamoDB.Table,
			TTLAttribute: cfg.DynamoDB.TTLAttribute,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("using dynamodb transaction log",
			slog.String("table", cfg.DynamoDB.Table),
			slog.String("region", cfg.DynamoDB.Region),
		)
		return store, nil
	case "postgres":
		store, err := transactions.NewPostgres(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, err
		}
		logger.Info("using postgres transaction log")
		return store, nil
	case "sqlite":
		store, err := transactions.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("using sqlite transaction log", slog.String("path", cfg.SQLite.Path))
		return store, nil
	case "memory":
		logger.Warn("using in-memory transaction log; records are lost on restart")
		return transactions.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported transaction backend %q", cfg.Backend)
	}
}

func transactionBackend(cfg config.TransactionsConfig) string {
	if cfg.Backend == "" {
		return "memory"
	}
	return cfg.Backend
}
