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

	"github.com/joho/godotenv"

	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/analytics"
	gwhandler "github.com/Pale-blu/Chronologicon-Engine-Development/internal/gateway/handler"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/gateway/router"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/notify"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/ingestion/tracker"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/insights"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/insights/cache"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/rpcapi"
	"github.com/Pale-blu/Chronologicon-Engine-Development/internal/store"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/config"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/health"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/kafka"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/logger"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/metrics"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/ratelimit"
	pkgredis "github.com/Pale-blu/Chronologicon-Engine-Development/pkg/redis"
	"github.com/Pale-blu/Chronologicon-Engine-Development/pkg/rpc"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults and CHRONO_* env vars when empty)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logCloser, err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	if err := run(cfg); err != nil {
		slog.Error("chronologicon exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("chronologicon stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting chronologicon", "port", cfg.Server.Port, "store", cfg.Store.Driver)

	eventStore, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening event store: %w", err)
	}
	defer eventStore.Close()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		shutdownMetrics := m.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}()
	}

	var (
		querier     insights.Querier = insights.New(eventStore, cfg.Insights.MaxTimelineDepth)
		invalidator notify.Invalidator
		insightsC   *cache.Service
		redisClient *pkgredis.Client
	)
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, insight caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			insightsC = cache.New(querier, redisClient, cfg.Redis.CacheTTL, m)
			querier = insightsC
			invalidator = insightsC
			slog.Info("insight cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var publisher notify.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IngestionJobs)
		defer producer.Close()
		publisher = producer
	}
	jobStats := analytics.NewAggregator()
	notifier := notify.New(invalidator, publisher, notify.WithRecorder(jobStats))

	jobs := tracker.New(eventStore, tracker.Config{
		MaxLineBytes:   cfg.Ingestion.MaxLineBytes,
		StrictEventIDs: cfg.Ingestion.StrictEventIDs,
	}, tracker.WithMetrics(m), tracker.OnFinish(notifier.JobFinished))

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IngestionJobs, notifier.HandleMessage)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				slog.Error("job notification consumer error", "error", err)
			}
		}()
		slog.Info("job notifications enabled", "topic", cfg.Kafka.Topics.IngestionJobs, "instance", notifier.Instance())
	}

	reaper, err := tracker.NewReaper(jobs, cfg.Jobs.ReapSchedule, cfg.Jobs.Retention)
	if err != nil {
		return fmt.Errorf("creating job reaper: %w", err)
	}
	reaper.Start()

	checker := health.NewChecker()
	checker.Register("store", health.PingCheck("store", eventStore, 2*time.Second, false))
	if redisClient != nil {
		checker.Register("redis", health.PingCheck("redis", redisClient, time.Second, true))
	}

	var limiter *ratelimit.Limiter
	if cfg.Ingestion.RateLimitPerMinute > 0 {
		limiter = ratelimit.New(cfg.Ingestion.RateLimitPerMinute, time.Minute)
		defer limiter.Stop()
	}

	h := gwhandler.New(eventStore, querier, jobs, gwhandler.Config{
		UploadDir:      cfg.Ingestion.UploadDir,
		MaxUploadBytes: cfg.Ingestion.MaxUploadBytes,
		StreamInterval: cfg.Ingestion.StreamInterval,
	})
	if insightsC != nil {
		h.WithCache(insightsC)
	}

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router.New(h, router.Options{
			Health:         checker,
			Analytics:      analytics.NewHandler(jobStats),
			Metrics:        m,
			Limiter:        limiter,
			RequestTimeout: cfg.Server.RequestTimeout,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var rpcServer *rpc.Server
	if cfg.RPC.Port > 0 {
		rpcServer = rpc.NewServer(cfg.Server.RequestTimeout)
		rpcapi.Register(rpcServer, eventStore, querier, jobs)
		go func() {
			if err := rpcServer.Serve(fmt.Sprintf(":%d", cfg.RPC.Port)); err != nil {
				slog.Error("rpc server error", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("chronologicon listening", "addr", server.Addr)
	serveErr := server.ListenAndServe()
	if errors.Is(serveErr, http.ErrServerClosed) {
		serveErr = nil
	}
	stop()

	if rpcServer != nil {
		rpcServer.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := jobs.Shutdown(shutdownCtx); err != nil {
		slog.Error("ingestion shutdown error", "error", err)
	}
	if err := reaper.Stop(shutdownCtx); err != nil {
		slog.Error("job reaper shutdown error", "error", err)
	}
	return serveErr
}
