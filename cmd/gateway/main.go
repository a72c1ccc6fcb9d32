package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/mediagate/internal/api"
	"github.com/hszk-dev/mediagate/internal/api/handler"
	"github.com/hszk-dev/mediagate/internal/browser"
	"github.com/hszk-dev/mediagate/internal/config"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/downloader"
	"github.com/hszk-dev/mediagate/internal/events"
	"github.com/hszk-dev/mediagate/internal/infrastructure/storage"
	"github.com/hszk-dev/mediagate/internal/infrastructure/store"
	"github.com/hszk-dev/mediagate/internal/scraper"
	"github.com/hszk-dev/mediagate/internal/uploader"
	"github.com/hszk-dev/mediagate/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// State store: memory always, Redis preferred when enabled.
	local := store.NewMemoryStore()
	defer local.Close()

	var remote repository.StateStore
	if cfg.Redis.Enabled {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("failed to parse redis url: %w", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		rs := store.NewRedisStore(rootCtx, redis.NewClient(opts), cfg.Redis.KeyPrefix)
		defer rs.Close()
		remote = rs
		logger.Info("redis store enabled", slog.String("prefix", cfg.Redis.KeyPrefix))
	}
	stateStore := store.NewFallbackStore(remote, local, logger)

	// Object storage.
	var objectStorage repository.ObjectStorage
	if cfg.S3.Configured() {
		client, err := storage.NewClient(storage.ClientConfig{
			Endpoint:        cfg.S3.Endpoint,
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			KeyPrefix:       cfg.S3.KeyPrefix,
			CDNURL:          cfg.S3.CDNURL,
			PathStyle:       cfg.S3.PathStyle,
			UseSSL:          cfg.S3.UseSSL,
		})
		if err != nil {
			return err
		}
		validateCtx, cancel := context.WithTimeout(rootCtx, 30*time.Second)
		if err := client.ValidateConnection(validateCtx); err != nil {
			logger.Warn("storage validation failed, continuing without guarantees",
				slog.String("error", err.Error()),
			)
		}
		cancel()
		objectStorage = client
		logger.Info("object storage configured",
			slog.String("endpoint", cfg.S3.Endpoint),
			slog.String("bucket", cfg.S3.Bucket),
		)
	} else {
		objectStorage = storage.NewUnconfiguredClient()
		logger.Warn("object storage not configured, sync operations disabled")
	}

	// Browser pool.
	extraArgs, err := cfg.Browser.ParsedArgs()
	if err != nil {
		return err
	}
	pool := browser.NewPool(browser.Config{
		MaxConcurrency:     cfg.Browser.MaxConcurrency,
		MaxPagesPerBrowser: cfg.Browser.MaxPagesPerSlot,
		TTL:                cfg.Browser.TTL,
		SweepInterval:      cfg.Browser.SweepInterval,
		ExecutablePath:     cfg.Browser.ExecutablePath,
		Headless:           cfg.Browser.Headless,
		ExtraArgs:          extraArgs,
	}, logger)

	bus := events.NewBus()

	// Services.
	urlRepo := store.NewURLRepository(stateStore)
	videoRepo := store.NewVideoRepository(stateStore)
	urlService := usecase.NewURLService(urlRepo, logger)
	videoService := usecase.NewVideoService(videoRepo, objectStorage, logger)

	dl := downloader.New(cfg.Upload, cfg.YTDLP, cfg.Watermark, bus, logger)
	syncService := usecase.NewSyncService(videoService, objectStorage, dl, bus, cfg.Upload.MaxRetries, logger)
	reconciler := usecase.NewReconciler(videoService, objectStorage, logger)

	queue := uploader.NewQueue(rootCtx, func(ctx context.Context, videoID string) error {
		_, err := syncService.SyncVideo(ctx, videoID)
		if errors.Is(err, usecase.ErrAlreadySynced) {
			return nil
		}
		return err
	}, bus, cfg.Upload.MaxConcurrent, logger)
	syncService.SetEnqueuer(func(videoID string, priority int, title, sourceURL, videoURL string) error {
		_, err := queue.Add(videoID, uploader.AddOptions{
			Priority:  priority,
			Title:     title,
			SourceURL: sourceURL,
			VideoURL:  videoURL,
		})
		return err
	})

	sc := scraper.New(pool, cfg.Browser, logger)
	cache := scraper.NewCache(stateStore, cfg.Cache.TTL)

	scrapeHandler := handler.NewScrapeHandler(*cfg, cache, sc, urlService, videoService, logger)
	if cfg.Server.AutoSyncVideos {
		scrapeHandler.SetAutoSync(func(videoID, sourceURL, videoURL string) {
			if _, err := queue.Add(videoID, uploader.AddOptions{
				SourceURL: sourceURL,
				VideoURL:  videoURL,
			}); err != nil {
				logger.Warn("auto-sync enqueue failed",
					slog.String("video_id", videoID),
					slog.String("error", err.Error()),
				)
			}
		})
	}

	router := api.NewRouter(logger, api.Handlers{
		Scrape:    scrapeHandler,
		URLs:      handler.NewURLHandler(urlService, cache),
		Videos:    handler.NewVideoHandler(videoService, syncService, queue, cfg.Upload.StuckTimeout),
		Queue:     handler.NewQueueHandler(queue, syncService),
		Storage:   handler.NewStorageHandler(objectStorage, reconciler),
		Cache:     handler.NewCacheHandler(cache),
		Dashboard: handler.NewDashboardHandler(urlService, videoService, queue, pool, cache),
		Logs:      handler.NewLogsHandler(bus),
		Health:    handler.NewHealth(stateStore, objectStorage),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting gateway",
			slog.String("addr", srv.Addr),
			slog.Bool("auto_sync", cfg.Server.AutoSyncVideos),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-rootCtx.Done():
		logger.Info("shutting down gateway")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", slog.String("error", err.Error()))
	}
	if err := queue.Shutdown(shutdownCtx); err != nil {
		logger.Warn("queue shutdown incomplete, stuck records will be reset on restart",
			slog.String("error", err.Error()),
		)
	}
	pool.CloseAll()

	logger.Info("gateway stopped")
	return nil
}
