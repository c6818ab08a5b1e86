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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"sentrybot/internal/admin"
	"sentrybot/internal/auditlog"
	"sentrybot/internal/auditlog/diagnostics"
	auditmetrics "sentrybot/internal/auditlog/metrics"
	"sentrybot/internal/auditlog/mirror"
	auditpg "sentrybot/internal/auditlog/store/postgres"
	"sentrybot/internal/auditlog/stream"
	"sentrybot/internal/discord"
	"sentrybot/internal/health"
	"sentrybot/internal/platform/config"
	"sentrybot/internal/platform/httpserver"
	"sentrybot/internal/platform/kafka"
	"sentrybot/internal/platform/logger"
	platformmetrics "sentrybot/internal/platform/metrics"
	"sentrybot/internal/platform/postgres"
	platformredis "sentrybot/internal/platform/redis"
	"sentrybot/internal/platform/tracing"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownTimeout = 10 * time.Second
	shutdownNotice  = "Bot is shutting down."

	trailFailureThreshold = 5
	trailCooldown         = 5 * time.Minute
)

// main wires the gateway session, the audit pipeline and the health server.
func main() {
	if err := run(); err != nil {
		slog.Error("sentrybot stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	path := os.Getenv("SENTRYBOT_CONFIG")
	if path == "" {
		path = config.DefaultPath
	}
	cfg, err := config.Read(path)
	if err != nil {
		return err
	}
	log := logger.New(cfg.Log)
	slog.SetDefault(log)

	provider, err := config.NewProvider(path, log)
	if err != nil {
		return err
	}

	token, err := config.Secret("DISCORD_TOKEN", "DISCORD_TOKEN_FILE")
	if err != nil {
		return err
	}
	dbPassword, err := config.Secret("POSTGRES_PASSWORD", "POSTGRES_PASSWORD_FILE")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := tracing.Init(ctx, cfg.Tracing, version)
	if err != nil {
		return err
	}

	db, err := postgres.Open(ctx, cfg.Database, dbPassword, postgres.WithLogger(log))
	if err != nil {
		return err
	}
	defer db.Close()
	if err := auditpg.Migrate(db, log); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipelineMetrics := auditmetrics.New(registry)
	processMetrics := platformmetrics.New(registry)

	counterOpts := []diagnostics.Option{diagnostics.WithLogger(log)}
	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		log.WarnContext(ctx, "redis unavailable, counters stay in memory", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
		counterOpts = append(counterOpts,
			diagnostics.WithRedis(redisClient),
			diagnostics.WithRedisKey(cfg.Redis.CounterKey),
			diagnostics.WithFlushInterval(cfg.Redis.FlushEvery),
		)
	}
	counters := diagnostics.New(counterOpts...)

	session, err := discord.NewSession(token, log)
	if err != nil {
		return err
	}
	platform := discord.NewPlatform(session)

	store := auditpg.New(db)
	logMirror := mirror.New(platform, provider.LogChannelID, mirror.WithLogger(log))
	notifyMirror := mirror.New(platform, provider.NotifyChannelID, mirror.WithLogger(log))

	publisherOpts := []auditlog.PublisherOption{
		auditlog.WithLogger(log),
		auditlog.WithMetrics(pipelineMetrics),
	}
	kafkaClient, err := kafka.NewClient(cfg.Kafka)
	if err != nil {
		return err
	}
	if kafkaClient != nil {
		defer kafkaClient.Close()
		if err := kafka.EnsureTopic(ctx, kafkaClient, cfg.Kafka, log); err != nil {
			log.WarnContext(ctx, "could not ensure kafka topic", "topic", cfg.Kafka.Topic, "error", err)
		}
		publisherOpts = append(publisherOpts, auditlog.WithStream(stream.NewExporter(kafkaClient, cfg.Kafka.Topic)))
	}
	publisher := auditlog.NewPublisher(store, logMirror, publisherOpts...)

	resolver := auditlog.NewResolver(discord.NewAuditTrail(session),
		auditlog.WithLookupTimeout(cfg.ActorLookupTimeout.Std()),
		auditlog.WithResolverLogger(log),
		auditlog.WithResolverMetrics(pipelineMetrics),
		auditlog.WithCircuitBreaker(trailFailureThreshold, trailCooldown),
	)
	intake, err := auditlog.New(provider, publisher,
		auditlog.WithResolver(resolver),
		auditlog.WithDirectory(discord.NewDirectory(session.State)),
		auditlog.WithCounters(counters),
		auditlog.WithServiceLogger(log),
		auditlog.WithServiceMetrics(pipelineMetrics),
		auditlog.WithTracer(telemetry.Provider.Tracer("sentrybot/auditlog")),
	)
	if err != nil {
		return err
	}

	adapter, err := discord.NewAdapter(intake, discord.WithLogger(log), discord.WithMetrics(processMetrics))
	if err != nil {
		return fmt.Errorf("create gateway adapter: %w", err)
	}
	adapter.Register(session)

	reloader := &countingReloader{provider: provider, metrics: processMetrics}
	adminService := admin.New(provider,
		admin.WithHealthProbe(admin.NewHTTPProbe(cfg.HealthHost, cfg.HealthPort)),
		admin.WithDatabase(store),
		admin.WithCounters(counters, store),
		admin.WithReloader(reloader),
		admin.WithNotifier(logMirror),
		admin.WithMetrics(processMetrics),
		admin.WithLogger(log),
	)
	discord.NewCommands(adminService, func() string { return provider.Current().DevGuildID }, log).Register(session)

	healthOpts := []health.Option{
		health.WithRecords(store),
		health.WithCounters(counters),
		health.WithGatewayReady(adapter.Ready),
		health.WithGatherer(registry),
		health.WithMetrics(processMetrics),
		health.WithLogger(log),
	}
	if redisClient != nil {
		healthOpts = append(healthOpts, health.WithOptional("redis", redisClient.Health))
	}
	if kafkaClient != nil {
		healthOpts = append(healthOpts, health.WithOptional("kafka", func(ctx context.Context) error {
			return kafka.Health(ctx, kafkaClient)
		}))
	}
	srv := httpserver.New(cfg.HealthAddr(), health.New(store, healthOpts...).Router())

	if err := session.Open(); err != nil {
		return fmt.Errorf("open gateway session: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("health server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return counters.Run(gctx)
	})

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				if err := reloader.Reload(); err != nil {
					log.Error("config reload on SIGHUP failed", "error", err)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := notifyMirror.Notify(shutdownCtx, shutdownNotice, auditlog.ColorOrange); err != nil {
			log.Warn("failed to post shutdown notice", "error", err)
		}
		if err := session.Close(); err != nil {
			log.Warn("failed to close gateway session", "error", err)
		}
		if err := counters.Flush(shutdownCtx); err != nil {
			log.Warn("failed to flush received counters", "error", err)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			log.Warn("failed to flush traces", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// countingReloader reloads the configuration and records the outcome.
type countingReloader struct {
	provider *config.Provider
	metrics  *platformmetrics.Metrics
}

func (r *countingReloader) Reload() error {
	if err := r.provider.Reload(); err != nil {
		r.metrics.IncConfigReload("error")
		return err
	}
	r.metrics.IncConfigReload("ok")
	return nil
}
