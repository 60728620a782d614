package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/iago/report-relay/internal/cache"
	"github.com/iago/report-relay/internal/command"
	"github.com/iago/report-relay/internal/config"
	"github.com/iago/report-relay/internal/events"
	httpserver "github.com/iago/report-relay/internal/http"
	"github.com/iago/report-relay/internal/http/handlers"
	"github.com/iago/report-relay/internal/http/middleware"
	"github.com/iago/report-relay/internal/messaging"
	"github.com/iago/report-relay/internal/notify"
	"github.com/iago/report-relay/internal/queue"
	"github.com/iago/report-relay/internal/repository"
	"github.com/iago/report-relay/internal/service"
	"github.com/iago/report-relay/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func runServe(parent context.Context, cfg config.Config) error {
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, repoCloser := setupRepository(ctx, cfg, logger)
	defer repoCloser()

	producer, consumer, redisClient, queueCloser := setupQueue(ctx, cfg, logger)
	defer queueCloser()

	lineClient := messaging.NewClient(messaging.ClientConfig{
		ChannelAccessToken: cfg.LineChannelAccessToken,
		BaseURL:            cfg.LineAPIBaseURL,
		Timeout:            time.Duration(cfg.LineTimeoutMS) * time.Millisecond,
	})
	if !lineClient.Available() {
		logger.Warn("LINE_CHANNEL_ACCESS_TOKEN not configured, outbound messages will fail")
	}
	if !cfg.AdminConfigured() {
		logger.Warn("ADMIN_USER_ID not configured, every sender is treated as admin and admin alerts are off")
	}

	dispatcher := notify.NewDispatcher(lineClient, notify.Config{
		MaxRetries:   cfg.PushMaxRetries,
		Backoff:      time.Duration(cfg.PushRetryBackoffMS) * time.Millisecond,
		DisableProbe: !cfg.PushProbeEnabled,
	}, logger)
	tasks := worker.NewTasks(logger)

	reportsService := service.NewReportsService(repo, dispatcher, tasks, service.ReportsConfig{
		AdminUserID:        cfg.AdminUserID,
		ReporterAckEnabled: cfg.ReporterAckEnabled,
	}, logger)
	webhookService := service.NewWebhookService(producer)

	interpreter := command.NewInterpreter(command.Config{
		AdminUserID: cfg.AdminUserID,
		Keywords: command.Keywords{
			Done:            cfg.KeywordsDone,
			Status:          cfg.KeywordsStatus,
			Help:            cfg.KeywordsHelp,
			CaseInsensitive: cfg.CommandCaseInsensitive,
		},
		RecentLimit: cfg.StatusRecentLimit,
		Location:    displayLocation(cfg.DisplayTimezone, logger),
	}, repo, dispatcher, lineClient, logger)

	eventRouter := events.NewRouter(
		events.Config{Concurrency: cfg.EventConcurrency},
		interpreter,
		lineClient,
		setupDeduper(cfg, redisClient),
		logger,
	)

	// The worker stops only after the HTTP server, so accepted webhooks are drained.
	workerCtx, stopWorker := context.WithCancel(context.WithoutCancel(ctx))
	defer stopWorker()
	processor := worker.NewProcessor(consumer, eventRouter, logger)
	go processor.Start(workerCtx)

	api := handlers.NewAPI(reportsService, webhookService, cfg.StaticDir, logger)
	if !api.StaticEnabled() {
		logger.WithField("static_dir", cfg.StaticDir).Info("static directory missing, LIFF page disabled")
	}
	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:    api,
		Logger: logger,
		RateLimiter: middleware.NewRateLimiter(ctx, middleware.RateLimitConfig{
			RPS:   cfg.RateLimitRPS,
			Burst: cfg.RateLimitBurst,
		}),
		ChannelSecret: cfg.LineChannelSecret,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.WithField("port", cfg.Port).Info("api listening")
		errChan <- server.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server failed")
			serveErr = err
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("graceful shutdown failed")
	}
	stopWorker()
	if err := processor.Wait(shutdownCtx); err != nil {
		logger.WithError(err).Warn("webhook worker still running at shutdown")
	}
	if err := tasks.WaitContext(shutdownCtx); err != nil {
		logger.WithError(err).Warn("background tasks still running at shutdown")
	}
	return serveErr
}

func setupRepository(
	ctx context.Context,
	cfg config.Config,
	logger *logrus.Logger,
) (repository.ReportsRepository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Info("DATABASE_URL not configured, using in-memory repository")
		return repository.NewMemoryReportsRepository(), func() {}
	}

	pgRepo, err := repository.NewPostgresReportsRepository(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Error("failed to initialize postgres repository, fallback to memory")
		return repository.NewMemoryReportsRepository(), func() {}
	}
	if cfg.DBAutoMigrate {
		if err := pgRepo.ApplySchema(ctx); err != nil {
			logger.WithError(err).Error("failed to apply schema, fallback to memory")
			pgRepo.Close()
			return repository.NewMemoryReportsRepository(), func() {}
		}
	}
	logger.Info("postgres repository initialized")
	return pgRepo, func() {
		pgRepo.Close()
	}
}

func setupQueue(
	ctx context.Context,
	cfg config.Config,
	logger *logrus.Logger,
) (queue.Producer, queue.Consumer, *redis.Client, func()) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not configured, using local queue fallback")
		local := queue.NewLocalQueue(512, cfg.QueueMaxAttempts, logger)
		return local, local, nil, func() {}
	}

	streams, err := queue.NewStreamsQueue(ctx, queue.StreamsConfig{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		Stream:      cfg.RedisStream,
		DLQStream:   cfg.RedisDLQ,
		Group:       cfg.RedisGroup,
		Consumer:    cfg.RedisConsumer,
		MaxAttempts: cfg.QueueMaxAttempts,
		Logger:      logger,
	})
	if err != nil {
		logger.WithError(err).Error("failed to initialize redis streams queue, fallback to local")
		local := queue.NewLocalQueue(512, cfg.QueueMaxAttempts, logger)
		return local, local, nil, func() {}
	}
	logger.Info("redis streams queue initialized")
	return streams, streams, streams.Client(), func() {
		_ = streams.Close()
	}
}

func setupDeduper(cfg config.Config, client *redis.Client) cache.Deduper {
	ttl := time.Duration(cfg.EventDedupeTTLSeconds) * time.Second
	if client != nil {
		return cache.NewRedisDeduper(client, "relay:event:", ttl)
	}
	return cache.NewMemoryDeduper(cache.Config{TTL: ttl, MaxEntries: cfg.EventDedupeMaxEntries})
}

func displayLocation(name string, logger *logrus.Logger) *time.Location {
	location, err := time.LoadLocation(name)
	if err != nil {
		logger.WithError(err).WithField("timezone", name).Warn("unknown display timezone, using UTC+7")
		return time.FixedZone("ICT", 7*60*60)
	}
	return location
}
