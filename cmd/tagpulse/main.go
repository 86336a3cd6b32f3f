package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tagpulse-lab/tagpulse/internal/bucketstore"
	corecfg "github.com/tagpulse-lab/tagpulse/internal/core/config"
	"github.com/tagpulse-lab/tagpulse/internal/core/storage/postgres"
	"github.com/tagpulse-lab/tagpulse/internal/migrations"
	"github.com/tagpulse-lab/tagpulse/internal/recommend"
	"github.com/tagpulse-lab/tagpulse/internal/server"
	"github.com/tagpulse-lab/tagpulse/internal/syncer"
	"github.com/tagpulse-lab/tagpulse/internal/trending"
)

func main() {
	configPath := flag.String("config", "tagpulse.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"store_backend", cfg.Store.Backend,
		"bucket_width", cfg.Buckets.Width,
		"retention", cfg.Buckets.Retention,
		"sync_interval", cfg.Sync.Interval,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Initialize the persistent event log (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}
	if err := dbAdapter.ValidateSchema(); err != nil {
		slog.Error("Database schema validation failed", "error", err)
		os.Exit(1)
	}

	// 3. Initialize the bucket store (fast counting layer)
	var store bucketstore.Store
	switch cfg.Store.Backend {
	case "redis":
		redisStore, err := bucketstore.NewRedisStore(ctx, bucketstore.RedisOptions{
			Addr:        cfg.Store.RedisAddr,
			DB:          cfg.Store.RedisDB,
			BucketWidth: cfg.Buckets.WidthDuration(),
			Retention:   cfg.Buckets.RetentionDuration(),
			BucketTTL:   cfg.Buckets.TTLDuration(),
		})
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		store = redisStore
	default:
		store = bucketstore.NewMemoryStore(bucketstore.MemoryOptions{
			BucketWidth: cfg.Buckets.WidthDuration(),
			Retention:   cfg.Buckets.RetentionDuration(),
		})
	}

	// 4. Initialize the sync coordinator and its scheduler
	coordinator := syncer.New(dbAdapter, store, syncer.Options{
		BucketWidth:     cfg.Buckets.WidthDuration(),
		RetryAttempts:   cfg.Sync.RetryAttempts,
		BackoffMin:      cfg.Sync.BackoffMinDuration(),
		BackoffMax:      cfg.Sync.BackoffMaxDuration(),
		FetchTimeout:    cfg.Sync.FetchTimeoutDuration(),
		InitialLookback: cfg.Sync.InitialLookbackDuration(),
	})

	if cfg.Sync.Enabled {
		scheduler := syncer.NewScheduler(coordinator, cfg.Sync.IntervalDuration())
		go func() {
			if err := scheduler.Start(ctx); err != nil {
				slog.Error("Scheduler stopped with error", "error", err)
			}
		}()
	} else {
		slog.Info("Periodic sync disabled by config, POST /v1/hashtags/sync still available")
	}

	// 5. Initialize the query services
	trendingSvc := trending.NewService(store, coordinator, trending.Options{
		BucketWidth:  cfg.Buckets.WidthDuration(),
		Retention:    cfg.Buckets.RetentionDuration(),
		SyncInterval: cfg.Sync.IntervalDuration(),
		QueryTimeout: cfg.Query.TimeoutDuration(),
	})

	recommendSvc := recommend.New(dbAdapter, recommend.Options{
		Horizon:      cfg.Recommend.HorizonDuration(),
		MinRate:      cfg.Recommend.MinRate,
		MaxResults:   cfg.Recommend.MaxResults,
		QueryTimeout: cfg.Query.TimeoutDuration(),
	})

	// 6. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)
	trendingSvc.RegisterRoutes(srv.Engine)
	recommendSvc.RegisterRoutes(srv.Engine)
	coordinator.RegisterRoutes(srv.Engine)

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
