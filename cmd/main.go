package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/l0p7/dreamcache/internal/cache"
	"github.com/l0p7/dreamcache/internal/config"
	"github.com/l0p7/dreamcache/internal/fetch"
	"github.com/l0p7/dreamcache/internal/logging"
	"github.com/l0p7/dreamcache/internal/metrics"
	"github.com/l0p7/dreamcache/internal/server"
	"github.com/l0p7/dreamcache/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var (
		configFile = flag.String("config", "", "path to configuration file (yaml, json or toml)")
		envPrefix  = flag.String("env-prefix", "DREAMCACHE", "environment variable prefix")
		watch      = flag.Bool("watch", true, "reload ttl and label settings when the configuration file changes")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*envPrefix, *configFile)
	cfg, err := loader.Load(ctx)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Server.Logging)
	if err != nil {
		log.Fatalf("failed to configure logger: %v", err)
	}

	backend := buildStorage(logger.With(slog.String("agent", "storage_factory")), cfg.Cache.Storage)

	promRegistry := prometheus.NewRegistry()
	metricsRecorder := metrics.NewRecorder(promRegistry)

	store := cache.New(backend, cache.Options{
		Logger:  logger,
		Metrics: metricsRecorder,
	})
	if err := applyCacheSettings(store, cfg.Cache); err != nil {
		logger.Error("invalid cache settings", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := store.Close(shutdownCtx); err != nil {
			logger.Error("storage shutdown failed", slog.Any("error", err))
		}
	}()

	fetcher := fetch.New(store, logger, metricsRecorder)

	if *watch && *configFile != "" {
		current := cfg.Cache.Storage
		watcher, err := loader.WatchFiles(ctx, func(next config.Config) {
			if next.Cache.Storage != current {
				logger.Warn("storage settings changed; restart required to apply")
			}
			if err := applyCacheSettings(store, next.Cache); err != nil {
				logger.Error("cache settings reload rejected", slog.Any("error", err))
			}
		}, func(err error) {
			if err != nil {
				logger.Error("config watcher error", slog.Any("error", err))
			}
		})
		if err != nil {
			logger.Error("config watcher setup failed", slog.Any("error", err))
		} else {
			defer watcher.Stop()
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsRecorder.Handler())
	mux.Handle("/", server.NewAdminHandler(server.NewStoreAdmin(fetcher)))

	srv, err := server.New(cfg.Server.Listen, logger, mux)
	if err != nil {
		logger.Error("unable to construct server", slog.Any("error", err))
		os.Exit(1)
	}

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated unexpectedly", slog.Any("error", err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger.Info("server shutdown complete")
}

// applyCacheSettings pushes the ttl tiers and label settings into store.
// Nothing is applied unless both parse.
func applyCacheSettings(store *cache.Store, cfg config.CacheConfig) error {
	policy, err := cache.ParsePolicy(cfg.TTL.Short, cfg.TTL.Medium, cfg.TTL.Long)
	if err != nil {
		return err
	}
	labeler, err := cache.NewLabeler(cfg.Label.Template, cfg.Label.Zone)
	if err != nil {
		return err
	}
	store.SetPolicy(policy)
	store.SetLabeler(labeler)
	return nil
}

func buildStorage(logger *slog.Logger, cfg config.StorageConfig) storage.Storage {
	backend := strings.TrimSpace(strings.ToLower(cfg.Backend))
	var (
		built storage.Storage
		err   error
	)
	switch backend {
	case "", "memory":
		logger.Info("using memory storage")
		return storage.NewMemory()
	case "file":
		built, err = storage.NewFile(cfg.File.Dir)
		if err == nil {
			logger.Info("using file storage", slog.String("dir", cfg.File.Dir))
		}
	case "sqlite":
		built, err = storage.NewSQLite(cfg.SQLite.Path)
		if err == nil {
			logger.Info("using sqlite storage", slog.String("path", cfg.SQLite.Path))
		}
	case "redis":
		built, err = storage.NewRedis(storage.RedisConfig{
			Address:  cfg.Redis.Address,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS: storage.RedisTLSConfig{
				Enabled: cfg.Redis.TLS.Enabled,
				CAFile:  cfg.Redis.TLS.CAFile,
			},
		})
		if err == nil {
			logger.Info("using redis storage", slog.String("address", cfg.Redis.Address))
		}
	default:
		logger.Warn("unsupported storage backend, defaulting to memory", slog.String("backend", cfg.Backend))
		return storage.NewMemory()
	}
	if err != nil {
		// The cache is an optimization; an unreachable backend must not stop the daemon.
		logger.Error("storage initialization failed", slog.String("backend", backend), slog.Any("error", err))
		logger.Info("falling back to memory storage")
		return storage.NewMemory()
	}
	return built
}
