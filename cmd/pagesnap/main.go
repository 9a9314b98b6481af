// Package main wires together the screenshot service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/pagesnap/pagesnap/internal/api"
	"github.com/pagesnap/pagesnap/internal/cache"
	"github.com/pagesnap/pagesnap/internal/clock/system"
	"github.com/pagesnap/pagesnap/internal/config"
	"github.com/pagesnap/pagesnap/internal/hash/sha256"
	"github.com/pagesnap/pagesnap/internal/id/uuid"
	"github.com/pagesnap/pagesnap/internal/logging"
	"github.com/pagesnap/pagesnap/internal/metrics"
	memorypublisher "github.com/pagesnap/pagesnap/internal/publisher/memory"
	pubsubpublisher "github.com/pagesnap/pagesnap/internal/publisher/pubsub"
	"github.com/pagesnap/pagesnap/internal/renderer/chromedp"
	"github.com/pagesnap/pagesnap/internal/snapshot"
	"github.com/pagesnap/pagesnap/internal/storage/gcs"
	"github.com/pagesnap/pagesnap/internal/storage/local"
	memorystorage "github.com/pagesnap/pagesnap/internal/storage/memory"
	"github.com/pagesnap/pagesnap/internal/storage/postgres"
	"github.com/pagesnap/pagesnap/internal/sweeper"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, restore, err := logging.Install(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer restore()
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clock := system.New()
	hasher := sha256.New()
	idGen := uuid.New()

	artifacts, closeArtifacts, err := buildArtifactStore(ctx, cfg, hasher, clock, logger)
	if err != nil {
		logger.Fatal("artifact store init failed", zap.Error(err))
	}
	defer closeArtifacts()

	records, closeRecords, err := buildRecordStore(ctx, cfg, clock)
	if err != nil {
		logger.Fatal("record store init failed", zap.Error(err))
	}
	defer closeRecords()

	publisher, closePublisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer closePublisher()

	pool, err := chromedp.New(chromedp.Config{
		Timeout:     cfg.RenderTimeout(),
		SettleDelay: cfg.SettleDelay(),
		MaxParallel: cfg.Renderer.MaxParallel,
		UserAgent:   cfg.Renderer.UserAgent,
		Limits:      cfg.Limits(),
	}, logger.Named("renderer"))
	if err != nil {
		logger.Fatal("renderer init failed", zap.Error(err))
	}
	defer pool.Close()

	coordinator := cache.New(
		records,
		artifacts,
		pool,
		publisher,
		clock,
		idGen,
		cache.Config{Limits: cfg.Limits(), Topic: cfg.Publisher.Topic},
		logger.Named("cache"),
	)

	sweep := sweeper.New(records, artifacts, cfg.SweepInterval(), logger.Named("sweeper"))
	go sweep.Run(ctx)

	apiServer := api.NewServer(coordinator, sweep, artifacts, api.Config{
		Limits:         cfg.Limits(),
		RequestTimeout: cfg.RequestTimeout(),
	}, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

func buildArtifactStore(ctx context.Context, cfg config.Config, hasher snapshot.Hasher, clock snapshot.Clock, logger *zap.Logger) (snapshot.ArtifactStore, func(), error) {
	switch cfg.Storage.Provider {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{
			Bucket: cfg.Storage.GCSBucket,
			Prefix: cfg.Storage.Prefix,
		}, hasher, clock, logger.Named("gcs"))
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() { _ = client.Close() }, nil
	case "local":
		store, err := local.New(local.Config{
			BaseDir: cfg.Storage.LocalDir,
			Prefix:  cfg.Storage.Prefix,
		}, hasher, clock, logger.Named("local"))
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case "memory":
		return memorystorage.NewArtifactStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

func buildRecordStore(ctx context.Context, cfg config.Config, clock snapshot.Clock) (snapshot.RecordStore, func(), error) {
	switch cfg.Database.Provider {
	case "postgres":
		store, err := postgres.NewRecordStore(ctx, postgres.RecordStoreConfig{
			DSN:             cfg.Database.DSN,
			Table:           cfg.Database.Table,
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			FreshnessWindow: cfg.FreshnessWindow(),
		}, clock)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "memory":
		return memorystorage.NewRecordStore(cfg.FreshnessWindow(), clock), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown database provider %q", cfg.Database.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (snapshot.Publisher, func(), error) {
	switch cfg.Publisher.Provider {
	case "pubsub":
		client, err := gpubsub.NewClient(ctx, cfg.Publisher.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub client: %w", err)
		}
		pub := pubsubpublisher.New(client)
		return pub, func() {
			pub.Stop()
			_ = client.Close()
		}, nil
	case "memory":
		return memorypublisher.New(), func() {}, nil
	case "none":
		return nil, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown publisher provider %q", cfg.Publisher.Provider)
	}
}
